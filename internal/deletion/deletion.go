// Package deletion moves selected mail to the provider trash, applying
// the configured exclusion policy and aggregating per-item outcomes.
package deletion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/provider"
)

// Policy controls which flagged messages survive a bulk deletion.
type Policy struct {
	ExcludeImportant bool
	ExcludeStarred   bool
}

func (p Policy) active() bool {
	return p.ExcludeImportant || p.ExcludeStarred
}

// Coordinator executes bulk deletions against a mailbox.
type Coordinator struct {
	policy Policy
	logger *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// New creates a Coordinator enforcing policy.
func New(policy Policy, opts ...Option) *Coordinator {
	c := &Coordinator{policy: policy, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ByCriterion searches the provider for mail matching q and trashes it.
// When the policy excludes flagged mail, the excluded count is the
// difference between an unfiltered and a filtered search pass. The move
// itself is best-effort per item; only auth or connection failures abort.
func (c *Coordinator) ByCriterion(ctx context.Context, box provider.Mailbox, q provider.Query) (mail.DeleteResult, error) {
	var result mail.DeleteResult

	filtered := q
	filtered.ExcludeImportant = c.policy.ExcludeImportant
	filtered.ExcludeStarred = c.policy.ExcludeStarred

	if c.policy.active() {
		unfilteredIDs, err := box.SearchIDs(ctx, q, 0)
		if err != nil {
			return result, fmt.Errorf("searching messages: %w", err)
		}
		ids, err := box.SearchIDs(ctx, filtered, 0)
		if err != nil {
			return result, fmt.Errorf("searching messages: %w", err)
		}
		result.Excluded = len(unfilteredIDs) - len(ids)
		return c.trash(ctx, box, ids, result)
	}

	ids, err := box.SearchIDs(ctx, filtered, 0)
	if err != nil {
		return result, fmt.Errorf("searching messages: %w", err)
	}
	return c.trash(ctx, box, ids, result)
}

// ByMessages trashes an already-resolved message set. Exclusion runs
// client-side against the known flags before any provider call.
func (c *Coordinator) ByMessages(ctx context.Context, box provider.Mailbox, msgs []*mail.Message) (mail.DeleteResult, error) {
	var result mail.DeleteResult
	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if c.policy.ExcludeImportant && msg.IsImportant {
			result.Excluded++
			continue
		}
		if c.policy.ExcludeStarred && msg.IsStarred {
			result.Excluded++
			continue
		}
		ids = append(ids, msg.ID)
	}
	return c.trash(ctx, box, ids, result)
}

func (c *Coordinator) trash(ctx context.Context, box provider.Mailbox, ids []string, result mail.DeleteResult) (mail.DeleteResult, error) {
	if len(ids) == 0 {
		return result, nil
	}
	trashed, failed, err := box.TrashMessages(ctx, ids)
	result.Trashed = trashed
	result.Errors = failed
	if err != nil {
		return result, fmt.Errorf("trashing messages: %w", err)
	}
	c.logger.Info("bulk deletion complete",
		"trashed", result.Trashed, "excluded", result.Excluded, "errors", result.Errors)
	return result, nil
}
