package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/fetch"
	"github.com/mailsift/mailsift/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run scheduled re-sampling in the foreground",
	Long: `Run the re-sampling scheduler until interrupted. Accounts come from
the [[accounts]] config section:

  [[accounts]]
  account_id = "gmail-a1b2c3d4e5f6"
  schedule = "0 */6 * * *"
  enabled = true

Each tick re-runs the default "last N days" sample for the account.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scheduled := cfg.ScheduledAccounts()
		if len(scheduled) == 0 {
			return fmt.Errorf("no enabled account schedules in config")
		}

		store, err := openCredStore()
		if err != nil {
			return err
		}

		orch := fetch.New(samplingStore(),
			fetch.WithLogger(logger),
			fetch.WithBatchSize(cfg.Sampling.BatchSize))

		sched := scheduler.New(func(ctx context.Context, accountID string) error {
			box, _, err := openMailbox(store, accountID)
			if err != nil {
				return err
			}
			defer box.Close()

			_, err = orch.Sample(ctx, box, fetch.Params{
				AccountID:  accountID,
				Window:     fetch.Window{UseDays: true, Days: cfg.Sampling.Days},
				MaxResults: cfg.Sampling.MaxResults,
			}, nil)
			return err
		}, scheduler.WithLogger(logger))

		for _, acc := range scheduled {
			if err := sched.Add(acc.AccountID, acc.Schedule); err != nil {
				return err
			}
		}

		sched.Start()
		fmt.Printf("Scheduler running with %d account(s). Ctrl-C to stop.\n", len(scheduled))
		<-cmd.Context().Done()

		<-sched.Stop().Done()
		fmt.Println("Scheduler stopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
