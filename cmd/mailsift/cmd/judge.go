package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/cache"
	"github.com/mailsift/mailsift/internal/groups"
	"github.com/mailsift/mailsift/internal/judge"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider"
)

var judgeMode string

var judgeCmd = &cobra.Command{
	Use:   "judge <account-id>",
	Short: "Score the cached sample with the AI model",
	Long: `Run the AI judgment pipeline over the cached sample. Each message gets
a marketing score and a spam score (0-10). Identical content is resolved
from the judgment cache instead of re-querying the model.

Requires an Ollama-compatible server in the config:
  [ai]
  server = "http://localhost:11434"
  model = "llama3.2"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := args[0]
		mode, err := modeFlagValue(judgeMode)
		if err != nil {
			return err
		}

		result, meta, err := samplingStore().Load(accountID, mode)
		if errors.Is(err, cache.ErrNoCache) {
			return fmt.Errorf("no cached %s sample for %s; run \"mailsift sample\" first", mode, accountID)
		}
		if err != nil {
			return err
		}
		if len(result.Messages) == 0 {
			fmt.Println("Nothing to judge.")
			return nil
		}

		gen, err := judge.NewClient(cfg.AI.Server, cfg.AI.Model,
			time.Duration(cfg.AI.TimeoutSecs)*time.Second)
		if err != nil {
			return err
		}

		store, err := openCredStore()
		if err != nil {
			return err
		}
		box, _, err := openMailbox(store, accountID)
		if err != nil {
			return err
		}
		defer box.Close()

		jc := cache.LoadJudgments(filepath.Join(cfg.CacheDir(), "judgments.json"), time.Now())
		runner := judge.NewRunner(gen, jc,
			judge.WithConcurrency(cfg.AI.Concurrency),
			judge.WithLanguages(cfg.AI.Languages),
			judge.WithLogger(logger))

		outcome, err := runner.Run(cmd.Context(), box, result, newCLIProgress())
		fmt.Fprintln(os.Stderr)
		if provider.IsCancelled(err) {
			fmt.Println("Judgment run cancelled; nothing was saved.")
			return err
		}
		if err != nil {
			return err
		}

		// Persist the annotated snapshot so groups can show score ranges.
		groups.RefreshFromGroups(result.FromGroups)
		if err := samplingStore().Save(accountID, mode, result, meta); err != nil {
			return fmt.Errorf("persisting judged sample: %w", err)
		}

		fmt.Printf("Judged %d message(s): %d from model, %d from cache, %d failed\n",
			outcome.Judged+outcome.Cached, outcome.Judged, outcome.Cached, outcome.Failed)
		return nil
	},
}

func init() {
	judgeCmd.Flags().StringVar(&judgeMode, "mode", mail.ModeDays, "Cached window kind: days or range")
	rootCmd.AddCommand(judgeCmd)
}
