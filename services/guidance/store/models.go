// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store holds the gorm models and repositories for the guidance
// service: users with credit balances and guidance sessions.
package store

import (
	"time"
)

// Session lifecycle states.
const (
	StatusPending    = "pending"    // debited, generation not finished
	StatusGenerating = "generating" // text done, media generation running
	StatusCompleted  = "completed"  // all requested outputs produced
	StatusDegraded   = "degraded"   // text produced, some media failed
	StatusFailed     = "failed"     // nothing produced, credits refunded
	StatusExpired    = "expired"    // abandoned pending session, refunded
)

// Roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	Email        string `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `json:"-" gorm:"size:100;not null"`
	FullName     string `json:"full_name" gorm:"size:255"`
	Role         string `json:"role" gorm:"size:16;default:user"`
	Credits      int    `json:"credits" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// GuidanceSession is one paid guidance interaction. BirthDetails and
// ChartData are stored as JSON blobs; the schema does not interpret them.
type GuidanceSession struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	UserID      uint   `json:"user_id" gorm:"index;not null"`
	ServiceType string `json:"service_type" gorm:"size:32;index;not null"`
	Status      string `json:"status" gorm:"size:16;index;not null"`
	Question    string `json:"question" gorm:"type:text"`

	BirthDetails string `json:"birth_details,omitempty" gorm:"type:jsonb"`
	ChartData    string `json:"chart_data,omitempty" gorm:"type:jsonb"`

	CreditsCharged int `json:"credits_charged" gorm:"not null"`

	// RefundDue marks a failed or expired session whose charge has not
	// been returned yet. The cleanup cycle scans for it and clears it
	// in the same transaction as the refund.
	RefundDue bool `json:"-" gorm:"index;not null;default:false"`

	GuidanceText string `json:"guidance_text,omitempty" gorm:"type:text"`
	AudioURL       string `json:"audio_url,omitempty" gorm:"size:512"`
	VideoURL       string `json:"video_url,omitempty" gorm:"size:512"`
	FailureReason  string `json:"failure_reason,omitempty" gorm:"size:512"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (GuidanceSession) TableName() string {
	return "guidance_sessions"
}

// Terminal reports whether the session is in a final state.
func (s *GuidanceSession) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusDegraded, StatusFailed, StatusExpired:
		return true
	}
	return false
}
