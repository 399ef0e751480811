package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/cache"
	"github.com/mailsift/mailsift/internal/deletion"
	"github.com/mailsift/mailsift/internal/groups"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider"
	"github.com/mailsift/mailsift/internal/rules"
)

var (
	sweepFrom             []string
	sweepRuleLine         int
	sweepMode             string
	sweepDays             int
	sweepExcludeImportant bool
	sweepExcludeStarred   bool
	sweepYes              bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <account-id>",
	Short: "Move unwanted mail to the trash",
	Long: `Bulk-move mail to the provider trash.

Two selection modes:
  --from     search the provider for mail from the given sender(s)
  --rule     take the messages matched by one rule line of the cached sample

Messages flagged important or starred are kept according to the
[deletion] config section; --exclude-important / --exclude-starred
override it for one run. Moves are best-effort per message.

Examples:
  mailsift sweep gmail-a1b2c3d4e5f6 --from promo@shop.example
  mailsift sweep gmail-a1b2c3d4e5f6 --from a@x.com --from b@y.com --days 90
  mailsift sweep imap-f6e5d4c3b2a1 --rule 0 --mode days`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := args[0]

		byCriterion := len(sweepFrom) > 0
		byRule := cmd.Flags().Changed("rule")
		if byCriterion == byRule {
			return fmt.Errorf("exactly one of --from and --rule is required")
		}
		if _, err := modeFlagValue(sweepMode); err != nil {
			return err
		}

		policy := deletion.Policy{
			ExcludeImportant: cfg.Deletion.ExcludeImportant,
			ExcludeStarred:   cfg.Deletion.ExcludeStarred,
		}
		if cmd.Flags().Changed("exclude-important") {
			policy.ExcludeImportant = sweepExcludeImportant
		}
		if cmd.Flags().Changed("exclude-starred") {
			policy.ExcludeStarred = sweepExcludeStarred
		}

		store, err := openCredStore()
		if err != nil {
			return err
		}
		box, acc, err := openMailbox(store, accountID)
		if err != nil {
			return err
		}
		defer box.Close()

		coord := deletion.New(policy, deletion.WithLogger(logger))

		var result mail.DeleteResult
		if byCriterion {
			if !sweepYes && !confirm(fmt.Sprintf("Trash all mail from %s in %s?",
				strings.Join(sweepFrom, ", "), acc.Email)) {
				fmt.Println("Aborted.")
				return nil
			}
			q := provider.Query{From: sweepFrom}
			if sweepDays > 0 {
				now := time.Now().UTC()
				q.End = now
				q.Start = now.AddDate(0, 0, -sweepDays)
			}
			result, err = coord.ByCriterion(cmd.Context(), box, q)
		} else {
			msgs, rerr := ruleMessages(accountID, sweepRuleLine)
			if rerr != nil {
				return rerr
			}
			if len(msgs) == 0 {
				fmt.Println("Rule matches no cached messages.")
				return nil
			}
			if !sweepYes && !confirm(fmt.Sprintf("Trash %d message(s) matched by rule %d in %s?",
				len(msgs), sweepRuleLine, acc.Email)) {
				fmt.Println("Aborted.")
				return nil
			}
			result, err = coord.ByMessages(cmd.Context(), box, msgs)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Trashed %d, excluded %d, errors %d\n",
			result.Trashed, result.Excluded, result.Errors)
		return nil
	},
}

// ruleMessages resolves one rule line of the cached sample to its matched
// messages.
func ruleMessages(accountID string, lineIndex int) ([]*mail.Message, error) {
	result, _, err := samplingStore().Load(accountID, sweepMode)
	if errors.Is(err, cache.ErrNoCache) {
		return nil, fmt.Errorf("no cached %s sample for %s; run \"mailsift sample\" first", sweepMode, accountID)
	}
	if err != nil {
		return nil, err
	}

	text, err := rules.LoadText(cfg.RulesPath(accountID))
	if err != nil {
		return nil, err
	}
	parsed := rules.Parse(text)
	if lineIndex < 0 || lineIndex >= len(parsed.Lines) {
		return nil, fmt.Errorf("rule line %d does not exist (%d line(s) defined)", lineIndex, len(parsed.Lines))
	}

	for _, g := range groups.ByRules(parsed, result.Messages, result.BodyParts, result.PeriodDays()) {
		if g.LineIndex == lineIndex {
			return g.Messages, nil
		}
	}
	return nil, nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func init() {
	sweepCmd.Flags().StringSliceVar(&sweepFrom, "from", nil, "Sender address to sweep (repeatable)")
	sweepCmd.Flags().IntVar(&sweepRuleLine, "rule", 0, "Rule line index from the cached sample")
	sweepCmd.Flags().StringVar(&sweepMode, "mode", mail.ModeDays, "Cached window kind for --rule: days or range")
	sweepCmd.Flags().IntVar(&sweepDays, "days", 0, "Limit --from sweeps to the last N days")
	sweepCmd.Flags().BoolVar(&sweepExcludeImportant, "exclude-important", false, "Keep messages flagged important")
	sweepCmd.Flags().BoolVar(&sweepExcludeStarred, "exclude-starred", false, "Keep starred messages")
	sweepCmd.Flags().BoolVarP(&sweepYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(sweepCmd)
}
