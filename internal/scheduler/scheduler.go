// Package scheduler runs periodic re-sampling for accounts on cron
// schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SampleFunc re-samples one account. It receives the account ID and runs
// a full fetch for that account's configured window.
type SampleFunc func(ctx context.Context, accountID string) error

// Status reports one scheduled account.
type Status struct {
	AccountID string    `json:"accountId"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	NextRun   time.Time `json:"nextRun"`
	LastError string    `json:"lastError,omitempty"`
}

// Scheduler owns the cron runtime and per-account job state. A sampling
// run never overlaps itself; a tick that fires while the previous run is
// still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	sample SampleFunc
	logger *slog.Logger

	mu        sync.RWMutex
	entries   map[string]cron.EntryID
	schedules map[string]string
	running   map[string]bool
	lastRun   map[string]time.Time
	lastErr   map[string]error
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a Scheduler that invokes sample on each tick. Schedules use
// standard five-field cron expressions.
func New(sample SampleFunc, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		sample:    sample,
		logger:    slog.Default(),
		entries:   make(map[string]cron.EntryID),
		schedules: make(map[string]string),
		running:   make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		lastErr:   make(map[string]error),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add schedules re-sampling for an account, replacing any existing
// schedule. The cron expression is validated here.
func (s *Scheduler) Add(accountID, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[accountID]; ok {
		s.cron.Remove(id)
		delete(s.entries, accountID)
		delete(s.schedules, accountID)
	}

	id, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		if s.stopped || s.running[accountID] {
			s.mu.Unlock()
			return
		}
		s.running[accountID] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.run(accountID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.entries[accountID] = id
	s.schedules[accountID] = cronExpr
	s.logger.Info("scheduled re-sampling",
		"account", accountID,
		"schedule", cronExpr,
		"nextRun", s.cron.Entry(id).Next)
	return nil
}

// Remove drops an account's schedule if present.
func (s *Scheduler) Remove(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[accountID]; ok {
		s.cron.Remove(id)
		delete(s.entries, accountID)
		delete(s.schedules, accountID)
		s.logger.Info("removed schedule", "account", accountID)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entries))
}

// Stop halts the cron runtime, cancels in-flight runs, and returns a
// context that is done once everything has drained.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, done := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		done()
	}()
	return ctx
}

// Trigger runs an account's sampling immediately, outside its schedule.
func (s *Scheduler) Trigger(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if _, ok := s.entries[accountID]; !ok {
		return fmt.Errorf("account %s is not scheduled", accountID)
	}
	if s.running[accountID] {
		return fmt.Errorf("sampling already running for %s", accountID)
	}

	s.running[accountID] = true
	s.wg.Add(1)
	go s.run(accountID)
	return nil
}

// Statuses returns the state of every scheduled account, sorted by ID.
func (s *Scheduler) Statuses() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]Status, 0, len(s.entries))
	for accountID, id := range s.entries {
		st := Status{
			AccountID: accountID,
			Schedule:  s.schedules[accountID],
			Running:   s.running[accountID],
			LastRun:   s.lastRun[accountID],
			NextRun:   s.cron.Entry(id).Next,
		}
		if err := s.lastErr[accountID]; err != nil {
			st.LastError = err.Error()
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].AccountID < statuses[j].AccountID
	})
	return statuses
}

// run executes one sampling pass. The caller holds wg.Add and the running
// flag.
func (s *Scheduler) run(accountID string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[accountID] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled sampling", "account", accountID)
	start := time.Now()

	err := s.sample(s.ctx, accountID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr[accountID] = err
		s.logger.Error("scheduled sampling failed",
			"account", accountID,
			"duration", time.Since(start),
			"error", err)
		return
	}
	s.lastRun[accountID] = time.Now()
	s.lastErr[accountID] = nil
	s.logger.Info("scheduled sampling completed",
		"account", accountID,
		"duration", time.Since(start))
}
