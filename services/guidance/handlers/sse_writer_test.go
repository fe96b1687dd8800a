// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JyotiFlowAI/jyotiflow/services/guidance/datatypes"
)

// parseSSE extracts events from a raw SSE body, skipping comment lines.
func parseSSE(t *testing.T, body string) []datatypes.StreamEvent {
	t.Helper()
	var events []datatypes.StreamEvent
	for _, block := range strings.Split(body, "\n\n") {
		for _, line := range strings.Split(block, "\n") {
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event datatypes.StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				t.Fatalf("bad event payload %q: %v", line, err)
			}
			events = append(events, event)
		}
	}
	return events
}

// verifyChain checks the hash chain of a parsed event sequence.
func verifyChain(t *testing.T, events []datatypes.StreamEvent) {
	t.Helper()
	prev := ""
	for i, event := range events {
		if event.PrevHash != prev {
			t.Fatalf("event %d: prev_hash %q does not link to %q", i, event.PrevHash, prev)
		}
		want := computeEventHash(datatypes.StreamEvent{
			Id:        event.Id,
			Type:      event.Type,
			CreatedAt: event.CreatedAt,
			PrevHash:  event.PrevHash,
			Content:   event.Content,
			Message:   event.Message,
			Error:     event.Error,
			SessionId: event.SessionId,
		})
		if event.Hash != want {
			t.Fatalf("event %d: hash mismatch", i)
		}
		prev = event.Hash
	}
}

func TestSSEWriterHashChain(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}

	if err := writer.WriteStatus("starting"); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	for _, token := range []string{"Jupiter ", "favors ", "patience."} {
		if err := writer.WriteToken(token); err != nil {
			t.Fatalf("WriteToken: %v", err)
		}
	}
	if err := writer.WriteDone("session-1"); err != nil {
		t.Fatalf("WriteDone: %v", err)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	verifyChain(t, events)

	if events[0].Type != "status" || events[4].Type != "done" {
		t.Fatalf("unexpected event order: %q ... %q", events[0].Type, events[4].Type)
	}
	if events[4].SessionId != "session-1" {
		t.Fatalf("done event session id %q", events[4].SessionId)
	}
	got := events[1].Content + events[2].Content + events[3].Content
	if got != "Jupiter favors patience." {
		t.Fatalf("token content %q", got)
	}
}

func TestSSEWriterKeepAliveOutsideChain(t *testing.T) {
	rec := httptest.NewRecorder()
	writer, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}

	_ = writer.WriteStatus("one")
	_ = writer.WriteKeepAlive()
	_ = writer.WriteStatus("two")

	if !strings.Contains(rec.Body.String(), ": ping") {
		t.Fatal("keepalive comment missing")
	}
	events := parseSSE(t, rec.Body.String())
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	verifyChain(t, events)
}

type noFlushWriter struct {
	http.ResponseWriter
}

func TestNewSSEWriterRequiresFlusher(t *testing.T) {
	if _, err := NewSSEWriter(noFlushWriter{httptest.NewRecorder()}); err == nil {
		t.Fatal("expected error for non-flushing writer")
	}
}

func TestSetSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type %q", got)
	}
	if got := rec.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Fatalf("x-accel-buffering %q", got)
	}
}
