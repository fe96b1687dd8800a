// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JyotiFlowAI/jyotiflow/services/guidance/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes Server-Sent Events to an HTTP response.
//
// # Description
//
// SSEWriter abstracts SSE event serialization and writing, enabling
// testability and separation from HTTP response mechanics. Each event is
// automatically assigned an id, a timestamp, a SHA-256 content hash, and
// the hash of the previous event so clients can verify ordering.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the keepalive ticker
// writes from a separate goroutine.
type SSEWriter interface {
	// WriteEvent writes a single SSE event and flushes immediately.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteStatus writes a status event with the given message.
	WriteStatus(message string) error

	// WriteToken writes a token event with one chunk of guidance text.
	WriteToken(content string) error

	// WriteError writes an error event. The message must already be
	// sanitized; internal details never reach the client.
	WriteError(errMsg string) error

	// WriteDone writes the final event with the stored session id.
	WriteDone(sessionID string) error

	// WriteKeepAlive sends an SSE comment line (": ping") to reset load
	// balancer idle timers during long provider calls. Comments are not
	// part of the hash chain.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter wraps an http.ResponseWriter to emit SSE-formatted events:
//
//	event: {type}
//	data: {json}
//
// The writer maintains a hash chain: each event's Hash is SHA-256 of its
// content and PrevHash links to the previous event.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// NewSSEWriter creates an SSEWriter for the given ResponseWriter. The
// caller must set the SSE headers first via SetSSEHeaders. Fails when
// the ResponseWriter does not support http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash
	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// computeEventHash hashes all content fields. Hash must be empty when
// this is called.
func computeEventHash(event datatypes.StreamEvent) string {
	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Content,
		event.Message,
		event.Error,
		event.SessionId,
	)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

func (w *sseWriter) WriteStatus(message string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "status", Message: message})
}

func (w *sseWriter) WriteToken(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "token", Content: content})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "error", Error: errMsg})
}

func (w *sseWriter) WriteDone(sessionID string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "done", SessionId: sessionID})
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders configures the response headers for SSE streaming. Must
// be called before any writes.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

var _ SSEWriter = (*sseWriter)(nil)
