package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listAccountsJSON bool

var listAccountsCmd = &cobra.Command{
	Use:   "list-accounts",
	Short: "List configured accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCredStore()
		if err != nil {
			return err
		}
		accounts, err := store.ListAccounts()
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}

		if listAccountsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(accounts)
		}

		if len(accounts) == 0 {
			fmt.Println("No accounts configured. Use add-gmail or add-imap to add one.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tKIND\tNAME")
		for _, acc := range accounts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", acc.ID, acc.Email, acc.Kind, acc.DisplayName)
		}
		return w.Flush()
	},
}

func init() {
	listAccountsCmd.Flags().BoolVar(&listAccountsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(listAccountsCmd)
}
