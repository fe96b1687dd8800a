// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"
	"time"

	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

func validCreateRequest() CreateSessionRequest {
	return CreateSessionRequest{
		ServiceType: "birth_chart",
		Question:    "What does my career path look like?",
		BirthDetails: BirthDetails{
			DateTime:  "1990-05-12T06:30:00+05:30",
			Latitude:  13.0827,
			Longitude: 80.2707,
		},
	}
}

func TestCreateSessionRequestValid(t *testing.T) {
	req := validCreateRequest()
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestCreateSessionRequestRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateSessionRequest)
	}{
		{"empty service type", func(r *CreateSessionRequest) { r.ServiceType = "" }},
		{"empty question", func(r *CreateSessionRequest) { r.Question = "" }},
		{"oversized question", func(r *CreateSessionRequest) {
			r.Question = strings.Repeat("a", MaxQuestionBytes+1)
		}},
		{"bad datetime", func(r *CreateSessionRequest) {
			r.BirthDetails.DateTime = "12-05-1990 06:30"
		}},
		{"datetime without offset", func(r *CreateSessionRequest) {
			r.BirthDetails.DateTime = "1990-05-12T06:30:00"
		}},
		{"latitude out of range", func(r *CreateSessionRequest) {
			r.BirthDetails.Latitude = 91
		}},
		{"longitude out of range", func(r *CreateSessionRequest) {
			r.BirthDetails.Longitude = -181
		}},
		{"malformed request id", func(r *CreateSessionRequest) {
			r.RequestID = "not-a-uuid"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreateRequest()
			tc.mutate(&req)
			if err := req.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreateSessionRequestEnsureDefaults(t *testing.T) {
	req := validCreateRequest()
	req.EnsureDefaults()
	if req.RequestID == "" {
		t.Error("EnsureDefaults should generate a request id")
	}

	req.RequestID = "keep-me"
	req.EnsureDefaults()
	if req.RequestID != "keep-me" {
		t.Error("EnsureDefaults must not overwrite a provided request id")
	}
}

func TestNewSessionResponse(t *testing.T) {
	done := time.Now()
	s := &store.GuidanceSession{
		ID:             "sess-1",
		ServiceType:    "birth_chart",
		Status:         store.StatusCompleted,
		Question:       "q",
		GuidanceText:   "Jupiter favors you.",
		ChartData:      `{"nakshatra":"Rohini"}`,
		AudioURL:       "file:///audio.mp3",
		CreditsCharged: 2,
		CompletedAt:    &done,
	}

	resp := NewSessionResponse(s)
	if resp.SessionID != "sess-1" || resp.Status != store.StatusCompleted {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.ChartData == nil {
		t.Error("chart data should pass through")
	}
	if resp.CompletedAt == nil {
		t.Error("completed_at should pass through")
	}

	// Sessions without chart data must omit the field rather than emit null.
	resp = NewSessionResponse(&store.GuidanceSession{ID: "sess-2"})
	if resp.ChartData != nil {
		t.Error("empty chart data should stay nil")
	}
}

func TestRegisterRequestValidation(t *testing.T) {
	ok := RegisterRequest{Email: "seeker@example.com", Password: "longenough", FullName: "A Seeker"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	bad := []RegisterRequest{
		{Email: "not-an-email", Password: "longenough", FullName: "A"},
		{Email: "seeker@example.com", Password: "short", FullName: "A"},
		{Email: "seeker@example.com", Password: strings.Repeat("p", 80), FullName: "A"},
		{Email: "seeker@example.com", Password: "longenough", FullName: ""},
	}
	for i, r := range bad {
		if err := r.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
