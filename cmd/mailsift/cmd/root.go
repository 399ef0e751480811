package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/mailsift/mailsift/internal/cache"
	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/credstore"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider"
	"github.com/mailsift/mailsift/internal/provider/gmailrest"
	"github.com/mailsift/mailsift/internal/provider/imapfolder"
	"github.com/mailsift/mailsift/internal/secrets"
)

// keyringService names the OS keyring entry holding the master key.
const keyringService = "mailsift"

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mailsift",
	Short: "Mailbox sampling and triage tool",
	Long: `mailsift samples recent mail from Gmail or IMAP accounts, groups it
by sender and by user-defined rules, scores it with a local AI model,
and bulk-moves unwanted mail to the trash.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.HomeDir, err)
		}
		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// openCredStore unlocks the credential store with the master key from the
// OS keyring (file-backed fallback under the accounts directory).
func openCredStore() (*credstore.Store, error) {
	key, err := secrets.LoadKey(keyringService, cfg.AccountsDir())
	if err != nil {
		return nil, fmt.Errorf("load master key: %w", err)
	}
	cipher, err := secrets.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return credstore.New(cfg.AccountsDir(), cipher), nil
}

// openMailbox resolves an account's credentials and builds the matching
// provider adapter. Gmail token refreshes are persisted back to the store.
func openMailbox(store *credstore.Store, accountID string) (provider.Mailbox, mail.Account, error) {
	acc, err := store.GetAccount(accountID)
	if err != nil {
		return nil, mail.Account{}, err
	}
	creds, err := store.GetCredentials(accountID)
	if err != nil {
		return nil, acc, err
	}

	switch acc.Kind {
	case mail.KindGmail:
		if !cfg.OAuth.Configured() {
			return nil, acc, &provider.NotConfiguredError{What: "OAuth client credentials"}
		}
		if creds.OAuth == nil {
			return nil, acc, fmt.Errorf("account %s has no OAuth token", accountID)
		}
		oauthCfg := gmailrest.OAuthConfig(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret)
		tok := creds.OAuth.Token()
		box := gmailrest.NewClient(oauthCfg, tok, func(refreshed *oauth2.Token) {
			err := store.SaveCredentials(accountID, credstore.Credentials{
				OAuth: credstore.FromToken(refreshed),
			})
			if err != nil {
				logger.Warn("persisting refreshed token failed", "account", accountID, "error", err)
			}
		}, gmailrest.WithLogger(logger))
		return box, acc, nil

	case mail.KindIMAP:
		if creds.IMAP == nil {
			return nil, acc, fmt.Errorf("account %s has no IMAP settings", accountID)
		}
		box := imapfolder.NewClient(imapfolder.Config{
			Host:     creds.IMAP.Host,
			Port:     creds.IMAP.Port,
			Username: creds.IMAP.Username,
			Password: creds.IMAP.Password,
			Security: creds.IMAP.Security,
		}, imapfolder.WithLogger(logger))
		return box, acc, nil

	default:
		return nil, acc, fmt.Errorf("unknown provider kind %q", acc.Kind)
	}
}

// samplingStore returns the cache store for fetch snapshots.
func samplingStore() *cache.SamplingStore {
	return cache.NewSamplingStore(cfg.CacheDir())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default <home>/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Data directory (default ~/.mailsift or MAILSIFT_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
