// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cleanup expires abandoned guidance sessions and returns their
// credits. A session stuck in pending (service crash mid-generation,
// lost client) would otherwise hold the user's charge forever.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/JyotiFlowAI/jyotiflow/pkg/artifacts"
	"github.com/JyotiFlowAI/jyotiflow/pkg/events"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/observability"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
	"github.com/JyotiFlowAI/jyotiflow/services/media"
)

// CleanupResult summarizes one cleanup cycle.
type CleanupResult struct {
	SessionsExpired  int
	CreditsRefunded  int
	RefundFailures   int
	ArtifactsDeleted int
	Duration         time.Duration
}

// Cleaner expires stale pending sessions and refunds their charges.
//
// # Description
//
// Each cycle flips pending sessions older than MaxPendingAge to expired,
// marking charged rows refund-due in the same update, then refunds every
// refund-due session (including rows the engine flagged after a failed
// inline refund). The refund and the marker clear commit in one
// transaction, so a refund that fails leaves the marker set and the next
// cycle retries it.
//
// # Thread Safety
//
// Run is safe to call concurrently, but the scheduler runs cycles
// sequentially; concurrent cycles would only compete for the same rows.
type Cleaner struct {
	sessions  store.SessionStore
	users     store.UserStore
	publisher events.Publisher
	artifacts artifacts.Store
	metrics   *observability.GuidanceMetrics
	logger    *slog.Logger

	maxPendingAge time.Duration
	batchSize     int

	// overridable for tests
	now func() time.Time
}

// CleanerOption configures a Cleaner.
type CleanerOption func(*Cleaner)

// WithMaxPendingAge sets how old a pending session must be before it is
// expired. Defaults to 30 minutes, well past the longest media timeout.
func WithMaxPendingAge(age time.Duration) CleanerOption {
	return func(c *Cleaner) { c.maxPendingAge = age }
}

// WithBatchSize caps how many sessions one cycle expires.
func WithBatchSize(n int) CleanerOption {
	return func(c *Cleaner) { c.batchSize = n }
}

// WithArtifactStore enables removal of stored media for expired sessions.
func WithArtifactStore(s artifacts.Store) CleanerOption {
	return func(c *Cleaner) { c.artifacts = s }
}

// NewCleaner builds a Cleaner. sessions and users are required; the
// publisher, metrics, and logger may be nil.
func NewCleaner(sessions store.SessionStore, users store.UserStore,
	publisher events.Publisher, metrics *observability.GuidanceMetrics,
	logger *slog.Logger, opts ...CleanerOption) (*Cleaner, error) {

	if sessions == nil || users == nil {
		return nil, fmt.Errorf("session and user stores are required")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cleaner{
		sessions:      sessions,
		users:         users,
		publisher:     publisher,
		metrics:       metrics,
		logger:        logger,
		maxPendingAge: 30 * time.Minute,
		batchSize:     100,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run performs one cleanup cycle.
func (c *Cleaner) Run(ctx context.Context) (CleanupResult, error) {
	start := c.now()
	cutoff := start.Add(-c.maxPendingAge)

	expired, err := c.sessions.ExpirePending(ctx, cutoff, c.batchSize)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("expire pending sessions: %w", err)
	}

	result := CleanupResult{SessionsExpired: len(expired)}
	for i := range expired {
		session := &expired[i]
		result.ArtifactsDeleted += c.purgeArtifacts(ctx, session.ID)

		if c.metrics != nil {
			c.metrics.RecordSession(session.ServiceType, store.StatusExpired, 0)
		}
		c.publish(ctx, events.KeySessionFailed, events.SessionEvent{
			SessionID:   session.ID,
			UserID:      session.UserID,
			ServiceType: session.ServiceType,
			Status:      store.StatusExpired,
			Credits:     session.CreditsCharged,
			At:          c.now(),
		})
	}

	if err := c.refundDue(ctx, &result); err != nil {
		return result, err
	}

	result.Duration = c.now().Sub(start)
	return result, nil
}

// refundDue returns credits for every session flagged refund-due. The
// marker clears in the refund transaction; a failed refund keeps it set
// for the next cycle.
func (c *Cleaner) refundDue(ctx context.Context, result *CleanupResult) error {
	due, err := c.sessions.ListRefundDue(ctx, c.batchSize)
	if err != nil {
		return fmt.Errorf("list refund-due sessions: %w", err)
	}

	for i := range due {
		session := &due[i]
		balance, err := c.users.RefundCredits(ctx, session.UserID, session.CreditsCharged,
			func(tx *gorm.DB) error {
				return c.sessions.ClearRefundDueTx(tx, session.ID)
			})
		if err != nil {
			result.RefundFailures++
			c.logger.Error("session refund failed, will retry",
				"session_id", session.ID,
				"user_id", session.UserID,
				"credits", session.CreditsCharged,
				"error", err)
			continue
		}
		result.CreditsRefunded += session.CreditsCharged

		if c.metrics != nil {
			c.metrics.RecordRefund(session.CreditsCharged)
		}
		c.publish(ctx, events.KeyCreditsRefunded, events.CreditEvent{
			UserID:    session.UserID,
			SessionID: session.ID,
			Amount:    session.CreditsCharged,
			Balance:   balance,
			At:        c.now(),
		})
	}
	return nil
}

// purgeArtifacts removes any media an expired session left behind and
// returns how many objects were deleted. Absent keys are the norm:
// expired sessions rarely got as far as media generation.
func (c *Cleaner) purgeArtifacts(ctx context.Context, sessionID string) int {
	if c.artifacts == nil {
		return 0
	}
	deleted := 0
	for _, key := range media.SessionArtifactKeys(sessionID) {
		err := c.artifacts.Delete(ctx, key)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, artifacts.ErrNotFound):
		default:
			c.logger.Warn("artifact purge failed", "key", key, "error", err)
		}
	}
	return deleted
}

func (c *Cleaner) publish(ctx context.Context, key string, value interface{}) {
	if err := c.publisher.Publish(ctx, key, value); err != nil {
		c.logger.Warn("cleanup event publish failed", "key", key, "error", err)
	}
}
