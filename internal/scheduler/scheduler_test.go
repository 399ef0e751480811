package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAddValidatesCronExpression(t *testing.T) {
	s := New(func(ctx context.Context, accountID string) error { return nil })
	if err := s.Add("acct", "not a cron line"); err == nil {
		t.Error("expected error for invalid expression")
	}
	if err := s.Add("acct", "*/5 * * * *"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
}

func TestAddReplacesExistingSchedule(t *testing.T) {
	s := New(func(ctx context.Context, accountID string) error { return nil })
	if err := s.Add("acct", "0 * * * *"); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("acct", "30 * * * *"); err != nil {
		t.Fatal(err)
	}
	statuses := s.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	if statuses[0].Schedule != "30 * * * *" {
		t.Errorf("schedule = %q, want replacement", statuses[0].Schedule)
	}
}

func TestTriggerRunsSampling(t *testing.T) {
	var mu sync.Mutex
	ran := make(map[string]int)
	done := make(chan struct{}, 1)

	s := New(func(ctx context.Context, accountID string) error {
		mu.Lock()
		ran[accountID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	if err := s.Add("acct", "0 0 1 1 *"); err != nil {
		t.Fatal(err)
	}
	if err := s.Trigger("acct"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sampling never ran")
	}
	<-s.Stop().Done()

	mu.Lock()
	defer mu.Unlock()
	if ran["acct"] != 1 {
		t.Errorf("runs = %d, want 1", ran["acct"])
	}
}

func TestTriggerUnknownAccount(t *testing.T) {
	s := New(func(ctx context.Context, accountID string) error { return nil })
	if err := s.Trigger("nope"); err == nil {
		t.Error("expected error for unscheduled account")
	}
}

func TestStatusRecordsLastError(t *testing.T) {
	done := make(chan struct{}, 1)
	s := New(func(ctx context.Context, accountID string) error {
		defer func() { done <- struct{}{} }()
		return errors.New("provider down")
	})
	if err := s.Add("acct", "0 0 1 1 *"); err != nil {
		t.Fatal(err)
	}
	if err := s.Trigger("acct"); err != nil {
		t.Fatal(err)
	}
	<-done
	<-s.Stop().Done()

	statuses := s.Statuses()
	if statuses[0].LastError != "provider down" {
		t.Errorf("lastError = %q", statuses[0].LastError)
	}
	if !statuses[0].LastRun.IsZero() {
		t.Error("failed run must not update lastRun")
	}
}

func TestStopRejectsNewTriggers(t *testing.T) {
	s := New(func(ctx context.Context, accountID string) error { return nil })
	if err := s.Add("acct", "0 0 1 1 *"); err != nil {
		t.Fatal(err)
	}
	<-s.Stop().Done()
	if err := s.Trigger("acct"); err == nil {
		t.Error("expected error after Stop")
	}
}
