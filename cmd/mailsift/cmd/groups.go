package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/cache"
	"github.com/mailsift/mailsift/internal/groups"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/rules"
)

var (
	groupsMode    string
	groupsByRules bool
)

var groupsCmd = &cobra.Command{
	Use:   "groups <account-id>",
	Short: "Show sender groups from the cached sample",
	Long: `Show the cached sample grouped by sender, or by the account's rules
with --rules. Run "sample" first to populate the cache.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := args[0]
		mode, err := modeFlagValue(groupsMode)
		if err != nil {
			return err
		}

		result, _, err := samplingStore().Load(accountID, mode)
		if errors.Is(err, cache.ErrNoCache) {
			return fmt.Errorf("no cached %s sample for %s; run \"mailsift sample\" first", mode, accountID)
		}
		if err != nil {
			return err
		}

		if groupsByRules {
			return printRuleGroups(accountID, result)
		}

		groups.RefreshFromGroups(result.FromGroups)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SENDER\tCOUNT\tPER DAY\tAI M\tAI S\tLATEST")
		for _, g := range result.FromGroups {
			fmt.Fprintf(w, "%s\t%d\t%.1f\t%s\t%s\t%s\n",
				g.FromAddress, g.Count, g.Frequency,
				rangeText(g.MarketingRange), rangeText(g.SpamRange),
				g.LatestSubject)
		}
		return w.Flush()
	},
}

func printRuleGroups(accountID string, result *mail.SamplingResult) error {
	text, err := rules.LoadText(cfg.RulesPath(accountID))
	if err != nil {
		return err
	}
	parsed := rules.Parse(text)
	if len(parsed.Lines) == 0 {
		fmt.Println("No rules defined. Use \"mailsift rules set\" to add some.")
		return nil
	}

	ruleGroups := groups.ByRules(parsed, result.Messages, result.BodyParts, result.PeriodDays())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tRULE\tFROM\tCOUNT\tPER DAY\tAI M\tAI S\tLATEST")
	for _, g := range ruleGroups {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.1f\t%s\t%s\t%s\n",
			g.LineIndex, parsed.Lines[g.LineIndex].Raw, g.RefFrom,
			g.Count, g.Frequency,
			rangeText(g.MarketingRange), rangeText(g.SpamRange),
			g.RefSubject)
	}
	return w.Flush()
}

// rangeText renders a score range, or a dash for unjudged groups.
func rangeText(r mail.ScoreRange) string {
	if r == mail.UnjudgedRange {
		return "-"
	}
	if r.Min == r.Max {
		return fmt.Sprintf("%d", r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

func init() {
	groupsCmd.Flags().StringVar(&groupsMode, "mode", mail.ModeDays, "Cached window kind: days or range")
	groupsCmd.Flags().BoolVar(&groupsByRules, "rules", false, "Group by the account's rules instead of sender")
	rootCmd.AddCommand(groupsCmd)
}
