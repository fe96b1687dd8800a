// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package events publishes and consumes guidance lifecycle events over
// Kafka. The guidance service emits one event per session state change;
// the analytics worker consumes them into InfluxDB.
package events

import "time"

// Event keys. The Kafka message key selects the consumer handler.
const (
	KeySessionCreated   = "session.created"
	KeySessionCompleted = "session.completed"
	KeySessionFailed    = "session.failed"
	KeyCreditsDebited   = "credits.debited"
	KeyCreditsRefunded  = "credits.refunded"
)

// SessionEvent is the payload for session.* keys.
type SessionEvent struct {
	SessionID   string    `json:"session_id"`
	UserID      uint      `json:"user_id"`
	ServiceType string    `json:"service_type"`
	Status      string    `json:"status"`
	Credits     int       `json:"credits"`
	DurationMs  int64     `json:"duration_ms,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	Degraded    bool      `json:"degraded,omitempty"`
	At          time.Time `json:"at"`
}

// CreditEvent is the payload for credits.* keys.
type CreditEvent struct {
	UserID    uint      `json:"user_id"`
	SessionID string    `json:"session_id"`
	Amount    int       `json:"amount"`
	Balance   int       `json:"balance"`
	At        time.Time `json:"at"`
}
