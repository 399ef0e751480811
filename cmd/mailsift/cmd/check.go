package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <account-id>",
	Short: "Verify an account's connection and credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCredStore()
		if err != nil {
			return err
		}
		box, acc, err := openMailbox(store, args[0])
		if err != nil {
			return err
		}
		defer box.Close()

		if err := box.CheckConnection(cmd.Context()); err != nil {
			return fmt.Errorf("connection check for %s failed: %w", acc.Email, err)
		}
		fmt.Printf("%s: connection OK\n", acc.Email)
		return nil
	},
}

var foldersCmd = &cobra.Command{
	Use:   "folders <account-id>",
	Short: "List an account's labels or mailboxes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCredStore()
		if err != nil {
			return err
		}
		box, _, err := openMailbox(store, args[0])
		if err != nil {
			return err
		}
		defer box.Close()

		folders, err := box.ListFolders(cmd.Context())
		if err != nil {
			return fmt.Errorf("list folders: %w", err)
		}
		for _, f := range folders {
			if f.Role != "" {
				fmt.Printf("%s\t%s\t(%s)\n", f.ID, f.Name, f.Role)
				continue
			}
			fmt.Printf("%s\t%s\n", f.ID, f.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(foldersCmd)
}
