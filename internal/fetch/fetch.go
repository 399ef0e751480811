// Package fetch orchestrates message sampling: it resolves the requested
// window, searches the provider, retrieves headers in batches, runs sender
// grouping, and persists the snapshot pair.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailsift/mailsift/internal/cache"
	"github.com/mailsift/mailsift/internal/groups"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/progress"
	"github.com/mailsift/mailsift/internal/provider"
)

const defaultBatchSize = 20

// Window selects the sampling period: either the last Days days or the
// explicit [Start, End] date range. UseDays picks which pair applies.
type Window struct {
	UseDays bool
	Days    int
	Start   time.Time
	End     time.Time
}

// Mode returns the cache mode the window maps to.
func (w Window) Mode() string {
	if w.UseDays {
		return mail.ModeDays
	}
	return mail.ModeRange
}

// resolve turns the window into half-open UTC day bounds. Days mode ends
// at the midnight after now; range mode includes the End date.
func (w Window) resolve(now time.Time) (start, end time.Time) {
	if w.UseDays {
		days := w.Days
		if days < 1 {
			days = 1
		}
		end = midnightAfter(now.UTC())
		return end.AddDate(0, 0, -days), end
	}
	start = midnightOf(w.Start.UTC())
	end = midnightOf(w.End.UTC()).AddDate(0, 0, 1)
	return start, end
}

func midnightOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func midnightAfter(t time.Time) time.Time {
	return midnightOf(t).AddDate(0, 0, 1)
}

// Params describes one sampling run.
type Params struct {
	AccountID  string
	Window     Window
	MaxResults int

	// Folders restricts the search; empty means the provider default.
	Folders []string

	// Unread filters by read state when non-nil.
	Unread *bool
}

// Orchestrator drives sampling runs against a mailbox and persists the
// results.
type Orchestrator struct {
	store     *cache.SamplingStore
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithBatchSize bounds how many headers are fetched per batch.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// New creates an Orchestrator writing snapshots to store.
func New(store *cache.SamplingStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sample runs one fetch end to end. Any provider failure discards the run
// without touching the cache; a cancelled run reports ErrCancelled. On
// success the snapshot pair for (account, mode) is overwritten.
func (o *Orchestrator) Sample(ctx context.Context, box provider.Mailbox, p Params, sink progress.Sink) (*mail.SamplingResult, error) {
	if sink == nil {
		sink = progress.Discard
	}
	start, end := p.Window.resolve(o.now())
	mode := p.Window.Mode()

	o.logger.Info("sampling messages",
		"account", p.AccountID,
		"mode", mode,
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
		"max", p.MaxResults)

	sink.Report(0, 0, "searching messages")
	ids, err := box.SearchIDs(ctx, provider.Query{
		Start:   start,
		End:     end,
		Folders: p.Folders,
		Unread:  p.Unread,
	}, p.MaxResults)
	if err != nil {
		return nil, cancelOr(ctx, fmt.Errorf("searching messages: %w", err))
	}

	messages, err := o.fetchBatched(ctx, box, ids, sink)
	if err != nil {
		return nil, err
	}

	result := &mail.SamplingResult{
		Messages:    messages,
		FromGroups:  groups.BySender(messages, periodDays(start, end)),
		PeriodStart: start,
		PeriodEnd:   end,
		TotalCount:  len(messages),
	}
	meta := &mail.SamplingMeta{
		Mode:       mode,
		StartDate:  start,
		EndDate:    end,
		FetchedAt:  o.now().UTC(),
		FolderIDs:  p.Folders,
		TotalCount: len(messages),
	}
	if err := o.store.Save(p.AccountID, mode, result, meta); err != nil {
		return nil, fmt.Errorf("persisting sampling: %w", err)
	}

	o.logger.Info("sampling complete", "account", p.AccountID, "messages", len(messages))
	return result, nil
}

// fetchBatched retrieves headers in index order. Batches are not isolated
// from each other: the first failure aborts the whole fetch so no partial
// snapshot can be cached.
func (o *Orchestrator) fetchBatched(ctx context.Context, box provider.Mailbox, ids []string, sink progress.Sink) ([]*mail.Message, error) {
	messages := make([]*mail.Message, 0, len(ids))
	total := len(ids)
	for offset := 0; offset < total; offset += o.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, provider.ErrCancelled
		}
		batchEnd := offset + o.batchSize
		if batchEnd > total {
			batchEnd = total
		}
		batch, err := box.FetchHeaders(ctx, ids[offset:batchEnd])
		if err != nil {
			return nil, cancelOr(ctx, fmt.Errorf("fetching headers: %w", err))
		}
		messages = append(messages, batch...)
		sink.Report(len(messages), total, "fetching messages")
	}
	return messages, nil
}

// cancelOr maps context cancellation onto the distinguished cancelled
// condition; other errors pass through.
func cancelOr(ctx context.Context, err error) error {
	if provider.IsCancelled(err) || errors.Is(ctx.Err(), context.Canceled) {
		return provider.ErrCancelled
	}
	return err
}

func periodDays(start, end time.Time) int {
	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

// Load returns the cached snapshot for (account, mode), recomputing
// nothing. Callers get cache.ErrNoCache when no complete pair exists.
func (o *Orchestrator) Load(accountID, mode string) (*mail.SamplingResult, *mail.SamplingMeta, error) {
	return o.store.Load(accountID, mode)
}
