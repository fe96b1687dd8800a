// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SessionStore is the guidance-session repository contract.
type SessionStore interface {
	// CreateTx inserts a session inside an existing transaction (used by
	// UserStore.DebitCredits so the debit and the row commit together).
	CreateTx(tx *gorm.DB, session *GuidanceSession) error

	// ByID returns the session when it belongs to userID. Foreign or
	// unknown ids both return ErrNotFound.
	ByID(ctx context.Context, userID uint, id string) (*GuidanceSession, error)

	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]GuidanceSession, error)
	ListRecent(ctx context.Context, limit, offset int) ([]GuidanceSession, error)

	UpdateStatus(ctx context.Context, id, status, failureReason string) error
	AttachText(ctx context.Context, id, text, chartData string) error
	AttachMedia(ctx context.Context, id, audioURL, videoURL string) error
	Complete(ctx context.Context, id, status string) error
	Delete(ctx context.Context, userID uint, id string) error

	// ExpirePending flips pending sessions older than cutoff to expired
	// and returns them (bounded by limit). Charged rows are marked
	// refund-due in the same update; ListRefundDue picks them up.
	ExpirePending(ctx context.Context, cutoff time.Time, limit int) ([]GuidanceSession, error)

	// MarkRefundDue flags a session whose refund did not land so a later
	// cleanup cycle can retry it.
	MarkRefundDue(ctx context.Context, id string) error

	// ListRefundDue returns sessions with an outstanding refund, oldest
	// first, bounded by limit.
	ListRefundDue(ctx context.Context, limit int) ([]GuidanceSession, error)

	// ClearRefundDueTx unmarks a session inside an existing transaction
	// (used by UserStore.RefundCredits so the credit and the clear
	// commit together).
	ClearRefundDueTx(tx *gorm.DB, id string) error

	CountByStatus(ctx context.Context) (map[string]int64, error)
	CreditsCharged(ctx context.Context) (int64, error)
}

type gormSessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) SessionStore {
	return &gormSessionStore{db: db}
}

func (s *gormSessionStore) CreateTx(tx *gorm.DB, session *GuidanceSession) error {
	if err := tx.Create(session).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *gormSessionStore) ByID(ctx context.Context, userID uint, id string) (*GuidanceSession, error) {
	var session GuidanceSession
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &session, nil
}

func (s *gormSessionStore) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]GuidanceSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var sessions []GuidanceSession
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *gormSessionStore) ListRecent(ctx context.Context, limit, offset int) ([]GuidanceSession, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var sessions []GuidanceSession
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list recent sessions: %w", err)
	}
	return sessions, nil
}

func (s *gormSessionStore) UpdateStatus(ctx context.Context, id, status, failureReason string) error {
	updates := map[string]interface{}{"status": status}
	if failureReason != "" {
		updates["failure_reason"] = failureReason
	}
	res := s.db.WithContext(ctx).Model(&GuidanceSession{}).
		Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update session status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormSessionStore) AttachText(ctx context.Context, id, text, chartData string) error {
	res := s.db.WithContext(ctx).Model(&GuidanceSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"guidance_text": text,
			"chart_data":    chartData,
		})
	if res.Error != nil {
		return fmt.Errorf("attach guidance text: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormSessionStore) AttachMedia(ctx context.Context, id, audioURL, videoURL string) error {
	updates := map[string]interface{}{}
	if audioURL != "" {
		updates["audio_url"] = audioURL
	}
	if videoURL != "" {
		updates["video_url"] = videoURL
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&GuidanceSession{}).
		Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("attach media: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormSessionStore) Complete(ctx context.Context, id, status string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&GuidanceSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": &now,
		})
	if res.Error != nil {
		return fmt.Errorf("complete session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormSessionStore) Delete(ctx context.Context, userID uint, id string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&GuidanceSession{})
	if res.Error != nil {
		return fmt.Errorf("delete session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormSessionStore) ExpirePending(ctx context.Context, cutoff time.Time, limit int) ([]GuidanceSession, error) {
	if limit <= 0 {
		limit = 100
	}

	var expired []GuidanceSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status = ? AND created_at < ?", StatusPending, cutoff).
			Order("created_at ASC").
			Limit(limit).
			Find(&expired).Error; err != nil {
			return fmt.Errorf("find stale sessions: %w", err)
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]string, len(expired))
		for i := range expired {
			ids[i] = expired[i].ID
		}
		if err := tx.Model(&GuidanceSession{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     StatusExpired,
				"refund_due": gorm.Expr("credits_charged > 0"),
			}).Error; err != nil {
			return fmt.Errorf("expire sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func (s *gormSessionStore) MarkRefundDue(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&GuidanceSession{}).
		Where("id = ?", id).
		Update("refund_due", true)
	if res.Error != nil {
		return fmt.Errorf("mark refund due: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormSessionStore) ListRefundDue(ctx context.Context, limit int) ([]GuidanceSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var sessions []GuidanceSession
	err := s.db.WithContext(ctx).
		Where("refund_due AND credits_charged > 0").
		Order("created_at ASC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list refund-due sessions: %w", err)
	}
	return sessions, nil
}

func (s *gormSessionStore) ClearRefundDueTx(tx *gorm.DB, id string) error {
	if err := tx.Model(&GuidanceSession{}).
		Where("id = ?", id).
		Update("refund_due", false).Error; err != nil {
		return fmt.Errorf("clear refund due: %w", err)
	}
	return nil
}

func (s *gormSessionStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&GuidanceSession{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count sessions by status: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

func (s *gormSessionStore) CreditsCharged(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&GuidanceSession{}).
		Where("status <> ?", StatusFailed).
		Select("COALESCE(SUM(credits_charged), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum credits charged: %w", err)
	}
	return total, nil
}
