package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/fetch"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/progress"
	"github.com/mailsift/mailsift/internal/provider"
)

var (
	sampleDays    int
	sampleStart   string
	sampleEnd     string
	sampleMax     int
	sampleFolders []string
	sampleUnread  bool
	sampleRead    bool
)

var sampleCmd = &cobra.Command{
	Use:   "sample <account-id>",
	Short: "Fetch a message sample and cache it",
	Long: `Fetch message headers for a time window and cache the snapshot.

By default the window is the last N days from the config ([sampling] days).
Pass --start and --end for an explicit date range instead; the two window
kinds keep separate caches and never overwrite each other.

Examples:
  mailsift sample gmail-a1b2c3d4e5f6
  mailsift sample gmail-a1b2c3d4e5f6 --days 7 --unread
  mailsift sample imap-f6e5d4c3b2a1 --start 2026-07-01 --end 2026-07-31`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := resolveWindowFlags()
		if err != nil {
			return err
		}
		if sampleUnread && sampleRead {
			return fmt.Errorf("--unread and --read are mutually exclusive")
		}
		var unread *bool
		if sampleUnread || sampleRead {
			v := sampleUnread
			unread = &v
		}

		store, err := openCredStore()
		if err != nil {
			return err
		}
		box, acc, err := openMailbox(store, args[0])
		if err != nil {
			return err
		}
		defer box.Close()

		maxResults := sampleMax
		if maxResults == 0 {
			maxResults = cfg.Sampling.MaxResults
		}

		orch := fetch.New(samplingStore(),
			fetch.WithLogger(logger),
			fetch.WithBatchSize(cfg.Sampling.BatchSize))

		result, err := orch.Sample(cmd.Context(), box, fetch.Params{
			AccountID:  args[0],
			Window:     window,
			MaxResults: maxResults,
			Folders:    sampleFolders,
			Unread:     unread,
		}, newCLIProgress())
		fmt.Fprintln(os.Stderr)
		if provider.IsCancelled(err) {
			fmt.Println("Sampling cancelled.")
			return err
		}
		if err != nil {
			return err
		}

		fmt.Printf("Sampled %d messages for %s (%s to %s), %d senders\n",
			result.TotalCount, acc.Email,
			result.PeriodStart.Format("2006-01-02"),
			result.PeriodEnd.AddDate(0, 0, -1).Format("2006-01-02"),
			len(result.FromGroups))
		return nil
	},
}

// resolveWindowFlags maps the sample flags onto a fetch window. --days and
// --start/--end are mutually exclusive.
func resolveWindowFlags() (fetch.Window, error) {
	rangeMode := sampleStart != "" || sampleEnd != ""
	if rangeMode {
		if sampleDays > 0 {
			return fetch.Window{}, fmt.Errorf("--days cannot be combined with --start/--end")
		}
		if sampleStart == "" || sampleEnd == "" {
			return fetch.Window{}, fmt.Errorf("--start and --end must be given together")
		}
		start, err := time.Parse("2006-01-02", sampleStart)
		if err != nil {
			return fetch.Window{}, fmt.Errorf("invalid --start: %w", err)
		}
		end, err := time.Parse("2006-01-02", sampleEnd)
		if err != nil {
			return fetch.Window{}, fmt.Errorf("invalid --end: %w", err)
		}
		if end.Before(start) {
			return fetch.Window{}, fmt.Errorf("--end is before --start")
		}
		return fetch.Window{Start: start, End: end}, nil
	}

	days := sampleDays
	if days == 0 {
		days = cfg.Sampling.Days
	}
	return fetch.Window{UseDays: true, Days: days}, nil
}

// cliProgress renders {current,total,message} updates as a single
// rewritten terminal line, throttled to avoid flooding slow terminals.
type cliProgress struct {
	lastPrint time.Time
}

func newCLIProgress() progress.Sink {
	p := &cliProgress{}
	return progress.Func(p.report)
}

func (p *cliProgress) report(current, total int, message string) {
	if total > 0 && current < total && time.Since(p.lastPrint) < 200*time.Millisecond {
		return
	}
	p.lastPrint = time.Now()
	if total > 0 {
		fmt.Fprintf(os.Stderr, "\r%s: %d/%d", message, current, total)
		return
	}
	fmt.Fprintf(os.Stderr, "\r%s", message)
}

// modeFlagValue validates a --mode flag.
func modeFlagValue(mode string) (string, error) {
	switch mode {
	case mail.ModeDays, mail.ModeRange:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid --mode %q (days, range)", mode)
	}
}

func init() {
	sampleCmd.Flags().IntVar(&sampleDays, "days", 0, "Sample the last N days (default from config)")
	sampleCmd.Flags().StringVar(&sampleStart, "start", "", "Range start date (YYYY-MM-DD)")
	sampleCmd.Flags().StringVar(&sampleEnd, "end", "", "Range end date (YYYY-MM-DD, inclusive)")
	sampleCmd.Flags().IntVar(&sampleMax, "max", 0, "Result cap (default from config)")
	sampleCmd.Flags().StringSliceVar(&sampleFolders, "folder", nil, "Restrict to label/folder (repeatable)")
	sampleCmd.Flags().BoolVar(&sampleUnread, "unread", false, "Only unread messages")
	sampleCmd.Flags().BoolVar(&sampleRead, "read", false, "Only read messages")
	rootCmd.AddCommand(sampleCmd)
}
