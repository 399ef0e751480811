package cmd

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mailsift/mailsift/internal/credstore"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider/imapfolder"
)

var (
	imapHost        string
	imapPort        int
	imapUsername    string
	imapPassword    string
	imapSecurity    string
	imapDisplayName string
	imapSkipVerify  bool
)

var addIMAPCmd = &cobra.Command{
	Use:   "add-imap <email>",
	Short: "Add an IMAP account",
	Long: `Add an IMAP account with explicit server settings. The connection is
verified with a login/logout round trip before the account is saved.

The password is prompted interactively unless --password is given.

Examples:
  mailsift add-imap you@fastmail.com --host imap.fastmail.com
  mailsift add-imap you@corp.example --host mail.corp.example --security starttls --port 143`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]

		if imapHost == "" {
			return fmt.Errorf("--host is required")
		}
		switch imapSecurity {
		case credstore.SecurityTLS, credstore.SecuritySTARTTLS, credstore.SecurityNone:
		default:
			return fmt.Errorf("invalid --security %q (tls, starttls, none)", imapSecurity)
		}

		username := imapUsername
		if username == "" {
			username = email
		}
		password := imapPassword
		if password == "" {
			fmt.Printf("Password for %s: ", username)
			raw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimSpace(string(raw))
		}

		imapCfg := imapfolder.Config{
			Host:     imapHost,
			Port:     imapPort,
			Username: username,
			Password: password,
			Security: imapSecurity,
		}
		if !imapSkipVerify {
			box := imapfolder.NewClient(imapCfg, imapfolder.WithLogger(logger))
			if err := box.CheckConnection(cmd.Context()); err != nil {
				return fmt.Errorf("verify connection to %s: %w", imapCfg.Addr(), err)
			}
			fmt.Printf("Connection to %s verified.\n", imapCfg.Addr())
		}

		store, err := openCredStore()
		if err != nil {
			return err
		}
		acc := mail.Account{
			ID:          credstore.NewAccountID(mail.KindIMAP, email),
			Email:       email,
			DisplayName: imapDisplayName,
			Kind:        mail.KindIMAP,
		}
		creds := credstore.Credentials{IMAP: &credstore.IMAPSettings{
			Host:     imapHost,
			Port:     imapPort,
			Username: username,
			Password: password,
			Security: imapSecurity,
		}}
		if err := store.AddAccount(acc, creds); err != nil {
			return fmt.Errorf("save account: %w", err)
		}

		fmt.Printf("Added IMAP account %s (%s)\n", email, acc.ID)
		return nil
	},
}

func init() {
	addIMAPCmd.Flags().StringVar(&imapHost, "host", "", "IMAP server hostname")
	addIMAPCmd.Flags().IntVar(&imapPort, "port", 0, "IMAP server port (default 993 for tls, 143 otherwise)")
	addIMAPCmd.Flags().StringVar(&imapUsername, "username", "", "Login username (default the account email)")
	addIMAPCmd.Flags().StringVar(&imapPassword, "password", "", "Login password (prompted when omitted)")
	addIMAPCmd.Flags().StringVar(&imapSecurity, "security", credstore.SecurityTLS, "Transport security: tls, starttls, none")
	addIMAPCmd.Flags().StringVar(&imapDisplayName, "display-name", "", "Display name for the account")
	addIMAPCmd.Flags().BoolVar(&imapSkipVerify, "skip-verify", false, "Skip the connection round trip before saving")
	rootCmd.AddCommand(addIMAPCmd)
}
