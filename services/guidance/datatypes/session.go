// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains request and response types for guidance session
// endpoints. For authentication types, see auth.go.
package datatypes

import (
	"encoding/json"
	"time"

	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

// =============================================================================
// Session Request Types
// =============================================================================

// BirthDetails carries the birth data a chart is computed from.
//
// # Fields
//
//   - DateTime: Required. ISO-8601 with numeric offset, e.g.
//     "1990-05-12T06:30:00+05:30". The offset encodes the birth timezone.
//   - Latitude/Longitude: Required. Decimal degrees of the birth place.
type BirthDetails struct {
	DateTime  string  `json:"datetime" validate:"required,isodatetime"`
	Latitude  float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

// CreateSessionRequest is the body for POST /v1/sessions and
// POST /v1/sessions/stream.
//
// # Description
//
// Starts a guidance session. The service type selects the persona
// template and the credit price; birth details feed the astrology
// provider. Every request includes a unique ID for audit trails.
//
// # Validation
//
//   - RequestID: optional, UUID v4 when present (generated when absent)
//   - ServiceType: required, one of the configured service types
//   - Question: required, max 8KB
//   - BirthDetails: required, each field validated
type CreateSessionRequest struct {
	RequestID    string       `json:"request_id" validate:"omitempty,uuid4"`
	ServiceType  string       `json:"service_type" validate:"required,min=1,max=64"`
	Question     string       `json:"question" validate:"required,maxbytes"`
	BirthDetails BirthDetails `json:"birth_details" validate:"required"`
}

// Validate validates the CreateSessionRequest fields.
func (r *CreateSessionRequest) Validate() error {
	return validate.Struct(r)
}

// EnsureDefaults populates RequestID when the client omitted it.
func (r *CreateSessionRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
}

// =============================================================================
// Session Response Types
// =============================================================================

// SessionResponse is the API view of a guidance session.
//
// ChartData is returned as stored (provider JSON); clients render it
// directly. FailureReason is populated only for failed or degraded
// sessions and never contains upstream payloads.
type SessionResponse struct {
	SessionID      string     `json:"session_id"`
	ServiceType    string     `json:"service_type"`
	Status         string     `json:"status"`
	Question       string     `json:"question"`
	GuidanceText   string     `json:"guidance_text,omitempty"`
	ChartData      any        `json:"chart_data,omitempty"`
	AudioURL       string     `json:"audio_url,omitempty"`
	VideoURL       string     `json:"video_url,omitempty"`
	CreditsCharged int        `json:"credits_charged"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// SessionListResponse is the body for GET /v1/sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
}

// LiveTokenResponse is the body for GET /v1/sessions/:id/live/token.
type LiveTokenResponse struct {
	Token     string `json:"token"`
	Channel   string `json:"channel"`
	UID       string `json:"uid"`
	AppID     string `json:"app_id"`
	ExpiresIn int64  `json:"expires_in"`
}

// =============================================================================
// Admin Types
// =============================================================================

// AdminOverviewResponse is the body for GET /v1/admin/overview.
// Counts are grouped by session status.
type AdminOverviewResponse struct {
	Users          int64            `json:"users"`
	SessionsByStat map[string]int64 `json:"sessions_by_status"`
	CreditsCharged int64            `json:"credits_charged"`
}

// =============================================================================
// Conversions
// =============================================================================

// NewSessionResponse maps a stored session to its API view.
func NewSessionResponse(s *store.GuidanceSession) SessionResponse {
	resp := SessionResponse{
		SessionID:      s.ID,
		ServiceType:    s.ServiceType,
		Status:         s.Status,
		Question:       s.Question,
		GuidanceText:   s.GuidanceText,
		AudioURL:       s.AudioURL,
		VideoURL:       s.VideoURL,
		CreditsCharged: s.CreditsCharged,
		FailureReason:  s.FailureReason,
		CreatedAt:      s.CreatedAt,
		CompletedAt:    s.CompletedAt,
	}
	if len(s.ChartData) > 0 {
		resp.ChartData = json.RawMessage(s.ChartData)
	}
	return resp
}
