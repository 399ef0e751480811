// Package judge scores sampled messages with an inference model. Results
// are cached by content hash so identical mail is never judged twice,
// within or across runs.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mailsift/mailsift/internal/cache"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/progress"
	"github.com/mailsift/mailsift/internal/provider"
)

// State tracks where a judgment run is in its lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateJudging   State = "judging"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

const defaultConcurrency = 4

// Generator produces one model completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// item is one queued inference: a unique content hash and every message
// that resolves to it. One call serves them all.
type item struct {
	msgIDs []string
	key    string
	prompt string
}

// Outcome summarizes a completed run.
type Outcome struct {
	// Judgments maps message ID to its judgment, cached hits included.
	Judgments map[string]mail.Judgment

	Cached int // resolved from the content-hash cache
	Judged int // freshly judged this run
	Failed int // still failing after the one retry
}

// Runner drives judgment runs. A Runner is not safe for concurrent runs.
type Runner struct {
	gen         Generator
	cache       *cache.JudgmentCache
	concurrency int
	languages   []string
	logger      *slog.Logger
	now         func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets the inference batch size.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLanguages sets the allowed-language codes included in prompts and
// cache keys.
func WithLanguages(codes []string) Option {
	return func(r *Runner) { r.languages = codes }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a Runner judging through gen and caching in jc.
func NewRunner(gen Generator, jc *cache.JudgmentCache, opts ...Option) *Runner {
	r := &Runner{
		gen:         gen,
		cache:       jc,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current run state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run judges every message in result. Bodies and raw sources are fetched
// through box when result does not already carry them, and are written
// back into result for reuse. On success the judgments are attached to
// result's messages and the content-hash cache is flushed once.
// Cancellation discards all partial results.
func (r *Runner) Run(ctx context.Context, box provider.Mailbox, result *mail.SamplingResult, sink progress.Sink) (*Outcome, error) {
	if sink == nil {
		sink = progress.Discard
	}

	r.setState(StatePreparing)
	outcome := &Outcome{Judgments: make(map[string]mail.Judgment)}
	queue, err := r.prepare(ctx, box, result, outcome, sink)
	if err != nil {
		return nil, r.fail(err)
	}

	r.setState(StateJudging)
	if err := r.runBatches(ctx, queue, outcome, sink); err != nil {
		return nil, r.fail(err)
	}

	for _, msg := range result.Messages {
		if j, ok := outcome.Judgments[msg.ID]; ok {
			judgment := j
			msg.Judgment = &judgment
		}
	}
	if err := r.cache.Save(); err != nil {
		return nil, r.fail(fmt.Errorf("flushing judgment cache: %w", err))
	}

	r.setState(StateCompleted)
	r.logger.Info("judgment run complete",
		"judged", outcome.Judged, "cached", outcome.Cached, "failed", outcome.Failed)
	return outcome, nil
}

func (r *Runner) fail(err error) error {
	if provider.IsCancelled(err) {
		r.setState(StateCancelled)
	} else {
		r.setState(StateFailed)
	}
	return err
}

// prepare walks the messages in order, resolving each from the cache or
// queueing it for inference. Messages sharing a cache key share one queue
// entry, so identical content is judged at most once per run. Body and raw
// fetches run sequentially; they share the provider session with the fetch
// layer. A fetch failure for one message counts against the run but does
// not abort it.
func (r *Runner) prepare(ctx context.Context, box provider.Mailbox, result *mail.SamplingResult, outcome *Outcome, sink progress.Sink) ([]*item, error) {
	if result.BodyParts == nil {
		result.BodyParts = make(map[string]mail.BodyParts)
	}
	if result.RawBodies == nil {
		result.RawBodies = make(map[string][]byte)
	}

	var queue []*item
	queued := make(map[string]*item)
	total := len(result.Messages)
	for i, msg := range result.Messages {
		if ctx.Err() != nil {
			return nil, provider.ErrCancelled
		}

		parts, ok := result.BodyParts[msg.ID]
		if !ok {
			var err error
			parts, err = box.FetchBody(ctx, msg.ID)
			if err != nil {
				if abortWorthy(ctx, err) {
					return nil, cancelOr(ctx, err)
				}
				r.logger.Warn("body fetch failed", "id", msg.ID, "error", err)
				outcome.Failed++
				sink.Report(i+1, total, "preparing messages")
				continue
			}
			result.BodyParts[msg.ID] = parts
		}

		raw, ok := result.RawBodies[msg.ID]
		if !ok {
			var err error
			raw, err = box.FetchRaw(ctx, msg.ID)
			if err != nil {
				if abortWorthy(ctx, err) {
					return nil, cancelOr(ctx, err)
				}
				r.logger.Warn("raw fetch failed", "id", msg.ID, "error", err)
				raw = nil
			} else {
				result.RawBodies[msg.ID] = raw
			}
		}

		body := SelectBody(parts)
		key := CacheKey(msg.Subject, body, r.languages, AttachmentFingerprints(raw))
		if j, ok := r.cache.Get(key); ok {
			outcome.Judgments[msg.ID] = j
			outcome.Cached++
		} else if it, ok := queued[key]; ok {
			it.msgIDs = append(it.msgIDs, msg.ID)
		} else {
			it := &item{
				msgIDs: []string{msg.ID},
				key:    key,
				prompt: buildPrompt(msg.Subject, body, r.languages),
			}
			queued[key] = it
			queue = append(queue, it)
		}
		sink.Report(i+1, total, "preparing messages")
	}
	return queue, nil
}

// runBatches processes the queue in concurrency-sized batches. Each
// batch's failures get exactly one retry as a second sub-batch; items
// still failing are counted but never abort the run.
func (r *Runner) runBatches(ctx context.Context, queue []*item, outcome *Outcome, sink progress.Sink) error {
	done := 0
	total := len(queue)
	for offset := 0; offset < total; offset += r.concurrency {
		if ctx.Err() != nil {
			return provider.ErrCancelled
		}
		batchEnd := offset + r.concurrency
		if batchEnd > total {
			batchEnd = total
		}
		batch := queue[offset:batchEnd]

		failed := r.judgeBatch(ctx, batch, outcome)
		if len(failed) > 0 {
			if ctx.Err() != nil {
				return provider.ErrCancelled
			}
			failed = r.judgeBatch(ctx, failed, outcome)
			for _, it := range failed {
				outcome.Failed += len(it.msgIDs)
			}
		}

		done += len(batch)
		msg := "judging messages"
		if outcome.Failed > 0 {
			msg = fmt.Sprintf("judging messages (%d failed)", outcome.Failed)
		}
		sink.Report(done, total, msg)
	}
	return nil
}

// judgeBatch runs one batch of inferences concurrently and returns the
// items that failed. Completion order within the batch is unspecified;
// results key by message ID. A success fans out to every message sharing
// the item's content hash.
func (r *Runner) judgeBatch(ctx context.Context, batch []*item, outcome *Outcome) []*item {
	type slot struct {
		judgment mail.Judgment
		err      error
	}
	slots := make([]slot, len(batch))

	var wg sync.WaitGroup
	for i, it := range batch {
		wg.Add(1)
		go func(i int, it *item) {
			defer wg.Done()
			response, err := r.gen.Generate(ctx, it.prompt)
			if err != nil {
				slots[i].err = err
				return
			}
			marketing, spam, err := ParseScores(response)
			if err != nil {
				slots[i].err = err
				return
			}
			slots[i].judgment = mail.Judgment{
				Marketing: marketing,
				Spam:      spam,
				JudgedAt:  r.now().UTC(),
			}
		}(i, it)
	}
	wg.Wait()

	var failed []*item
	for i, it := range batch {
		if slots[i].err != nil {
			r.logger.Warn("judgment failed", "id", it.msgIDs[0], "error", slots[i].err)
			failed = append(failed, it)
			continue
		}
		for _, msgID := range it.msgIDs {
			outcome.Judgments[msgID] = slots[i].judgment
			outcome.Judged++
		}
		r.cache.Put(it.key, slots[i].judgment)
	}
	return failed
}

// abortWorthy reports whether a prepare-phase fetch error should end the
// run instead of counting as a per-item failure.
func abortWorthy(ctx context.Context, err error) bool {
	if ctx.Err() != nil || provider.IsCancelled(err) {
		return true
	}
	var ae *provider.AuthError
	return errors.As(err, &ae)
}

// cancelOr maps cancellation onto the distinguished cancelled condition.
func cancelOr(ctx context.Context, err error) error {
	if provider.IsCancelled(err) || ctx.Err() != nil {
		return provider.ErrCancelled
	}
	return err
}
