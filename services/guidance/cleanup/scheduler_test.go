// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cleanup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

// countingSessions counts ExpirePending calls.
type countingSessions struct {
	store.SessionStore

	mu    sync.Mutex
	calls int
}

func (f *countingSessions) ExpirePending(context.Context, time.Time, int) ([]store.GuidanceSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, nil
}

func (f *countingSessions) ListRefundDue(context.Context, int) ([]store.GuidanceSession, error) {
	return nil, nil
}

func (f *countingSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestScheduler(t *testing.T, sessions store.SessionStore, interval time.Duration) *Scheduler {
	t.Helper()
	cleaner, err := NewCleaner(sessions, &fakeUsers{}, nil, nil, quietLogger())
	if err != nil {
		t.Fatalf("NewCleaner: %v", err)
	}
	return NewScheduler(cleaner, SchedulerConfig{Interval: interval}, quietLogger())
}

func TestSchedulerRunsInitialCycle(t *testing.T) {
	sessions := &countingSessions{}
	scheduler := newTestScheduler(t, sessions, time.Hour)

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer scheduler.Stop()

	deadline := time.After(2 * time.Second)
	for sessions.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial cleanup cycle never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSchedulerRejectsDoubleStart(t *testing.T) {
	scheduler := newTestScheduler(t, &countingSessions{}, time.Hour)

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer scheduler.Stop()

	if err := scheduler.Start(context.Background()); err == nil {
		t.Fatal("expected error on second Start")
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	scheduler := newTestScheduler(t, &countingSessions{}, time.Hour)

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := scheduler.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := scheduler.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestSchedulerCanRestartAfterStop(t *testing.T) {
	sessions := &countingSessions{}
	scheduler := newTestScheduler(t, sessions, time.Hour)

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := scheduler.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer scheduler.Stop()
}

func TestSchedulerRunNow(t *testing.T) {
	sessions := &countingSessions{}
	scheduler := newTestScheduler(t, sessions, time.Hour)

	result, err := scheduler.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if result.SessionsExpired != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if sessions.count() != 1 {
		t.Fatalf("expected one cycle, got %d", sessions.count())
	}
}
