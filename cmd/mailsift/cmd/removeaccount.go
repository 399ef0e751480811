package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/mail"
)

var removeAccountCmd = &cobra.Command{
	Use:   "remove-account <account-id>",
	Short: "Remove an account and its cached data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := args[0]

		store, err := openCredStore()
		if err != nil {
			return err
		}
		acc, err := store.GetAccount(accountID)
		if err != nil {
			return err
		}
		if err := store.RemoveAccount(accountID); err != nil {
			return fmt.Errorf("remove account: %w", err)
		}

		// Cached snapshots and rules go with the account. Judgments stay:
		// the content-hash cache is account-independent.
		if err := samplingStore().Remove(accountID); err != nil {
			logger.Warn("removing cached samplings failed", "account", accountID, "error", err)
		}
		if err := os.Remove(cfg.RulesPath(accountID)); err != nil && !os.IsNotExist(err) {
			logger.Warn("removing rules failed", "account", accountID, "error", err)
		}

		fmt.Printf("Removed %s account %s (%s)\n", kindName(acc.Kind), acc.Email, accountID)
		return nil
	},
}

func kindName(k mail.ProviderKind) string {
	if k == mail.KindGmail {
		return "Gmail"
	}
	return "IMAP"
}

func init() {
	rootCmd.AddCommand(removeAccountCmd)
}
