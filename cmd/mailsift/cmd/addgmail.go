package cmd

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/credstore"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider"
	"github.com/mailsift/mailsift/internal/provider/gmailrest"
)

var addGmailDisplayName string

var addGmailCmd = &cobra.Command{
	Use:   "add-gmail <email>",
	Short: "Add a Gmail account via OAuth",
	Long: `Add a Gmail account by completing the OAuth2 authorization flow.
A browser window opens for consent; the local callback listener receives
the authorization code and exchanges it for a token pair.

Requires OAuth client credentials in the config file:
  [oauth]
  client_id = "..."
  client_secret = "..."`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]

		if !cfg.OAuth.Configured() {
			return &provider.NotConfiguredError{What: "OAuth client credentials"}
		}

		store, err := openCredStore()
		if err != nil {
			return err
		}

		oauthCfg := gmailrest.OAuthConfig(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret)
		tok, err := gmailrest.Authorize(cmd.Context(), oauthCfg, openBrowser)
		if err != nil {
			return fmt.Errorf("authorize %s: %w", email, err)
		}

		acc := mail.Account{
			ID:          credstore.NewAccountID(mail.KindGmail, email),
			Email:       email,
			DisplayName: addGmailDisplayName,
			Kind:        mail.KindGmail,
		}
		creds := credstore.Credentials{OAuth: credstore.FromToken(tok)}
		if err := store.AddAccount(acc, creds); err != nil {
			return fmt.Errorf("save account: %w", err)
		}

		fmt.Printf("Added Gmail account %s (%s)\n", email, acc.ID)
		return nil
	},
}

// openBrowser launches the platform browser for the consent URL. If that
// fails the URL is printed for manual use.
func openBrowser(url string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", url)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		c = exec.Command("xdg-open", url)
	}
	if err := c.Start(); err != nil {
		fmt.Printf("Open this URL in your browser:\n\n  %s\n\n", url)
	}
	return nil
}

func init() {
	addGmailCmd.Flags().StringVar(&addGmailDisplayName, "display-name", "", "Display name for the account (e.g., \"Work\", \"Personal\")")
	rootCmd.AddCommand(addGmailCmd)
}
