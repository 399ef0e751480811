package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage an account's grouping rules",
	Long: `Manage the rule text used for rule grouping and rule-based deletion.

Each non-blank, non-# line is one rule: an optional subject: or body:
prefix, then a quoted regex or an array of quoted regexes (AND-ed).
Lines are tried in order; the first fully matching line claims a message.

Example rules file:
  subject:"invoice|receipt"
  body:["unsubscribe","view in browser"]
  "weekly digest"`,
}

var rulesShowCmd = &cobra.Command{
	Use:   "show <account-id>",
	Short: "Print the account's rule text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := rules.LoadText(cfg.RulesPath(args[0]))
		if err != nil {
			return err
		}
		if text == "" {
			fmt.Println("No rules defined.")
			return nil
		}
		fmt.Print(text)
		if text[len(text)-1] != '\n' {
			fmt.Println()
		}
		return nil
	},
}

var rulesSetCmd = &cobra.Command{
	Use:   "set <account-id> [file]",
	Short: "Replace the account's rule text from a file or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 2 && args[1] != "-" {
			data, err = os.ReadFile(args[1])
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("read rule text: %w", err)
		}

		text := string(data)
		parsed := rules.Parse(text)
		if errs := rules.Validate(parsed); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "warning: %v\n", e)
			}
		}
		if err := rules.SaveText(cfg.RulesPath(args[0]), text); err != nil {
			return err
		}
		fmt.Printf("Saved %d rule line(s).\n", len(parsed.Lines))
		return nil
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <account-id>",
	Short: "Check the account's rules for regex errors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := rules.LoadText(cfg.RulesPath(args[0]))
		if err != nil {
			return err
		}
		parsed := rules.Parse(text)
		errs := rules.Validate(parsed)
		if len(errs) == 0 {
			fmt.Printf("%d rule line(s), all valid.\n", len(parsed.Lines))
			return nil
		}
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "%v\n", e)
		}
		return fmt.Errorf("%d invalid rule line(s)", len(errs))
	},
}

func init() {
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesSetCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}
