// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig holds configuration for the cleanup scheduler.
//
// # Fields
//
//   - Interval: How often to run cleanup cycles. Default: 5 minutes.
type SchedulerConfig struct {
	Interval time.Duration
}

// DefaultSchedulerConfig returns production defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: 5 * time.Minute,
	}
}

// Scheduler runs the Cleaner on a fixed interval.
//
// # Description
//
// Manages the lifecycle of a background goroutine that periodically
// expires abandoned sessions. Uses the ticker + done channel pattern
// for graceful shutdown.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Scheduler struct {
	cleaner *Cleaner
	config  SchedulerConfig
	logger  *slog.Logger
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a cleanup scheduler, ready to Start.
func NewScheduler(cleaner *Cleaner, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cleaner: cleaner,
		config:  config,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start begins the background cleanup loop. An initial cycle runs
// immediately so a restart after a crash releases stuck charges without
// waiting a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // reset for restart
	s.mu.Unlock()

	s.logger.Info("session cleanup scheduler starting",
		"interval", s.config.Interval.String())

	go s.runLoop(ctx)
	return nil
}

// Stop signals the scheduler to stop. Safe to call multiple times.
// Does not interrupt an in-progress cycle.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.logger.Info("session cleanup scheduler stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow triggers an immediate cleanup cycle without affecting the
// scheduled timing.
func (s *Scheduler) RunNow(ctx context.Context) (CleanupResult, error) {
	return s.cleaner.Run(ctx)
}

func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.executeCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session cleanup scheduler stopped (context cancelled)")
			return
		case <-s.done:
			s.logger.Info("session cleanup scheduler stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeCycle(ctx)
		}
	}
}

func (s *Scheduler) executeCycle(ctx context.Context) {
	result, err := s.cleaner.Run(ctx)
	if err != nil {
		s.logger.Error("cleanup cycle failed", "error", err)
		return
	}
	if result.SessionsExpired > 0 || result.RefundFailures > 0 {
		s.logger.Info("cleanup cycle finished",
			"sessions_expired", result.SessionsExpired,
			"credits_refunded", result.CreditsRefunded,
			"refund_failures", result.RefundFailures,
			"duration", result.Duration.String())
	}
}
