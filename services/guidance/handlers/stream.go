// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JyotiFlowAI/jyotiflow/services/guidance/datatypes"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/engine"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/middleware"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/observability"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

// keepAliveInterval is how often an SSE comment is sent while waiting on
// slow provider calls. Below common load balancer idle timeouts (60s).
const keepAliveInterval = 15 * time.Second

// StreamSession handles POST /v1/sessions/stream.
//
// Guidance tokens are forwarded to the client as SSE events in
// generation order. A client disconnect aborts generation and refunds
// the charge. The final done event carries the stored session id.
func StreamSession(eng SessionStarter, metrics *observability.GuidanceMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := middleware.GetAuthInfo(c)
		if info == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req datatypes.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.EnsureDefaults()

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			return
		}

		if metrics != nil {
			metrics.StreamStarted()
			defer metrics.StreamEnded()
		}

		// Keepalive comments cover the gap between request start and
		// the first token (chart fetch plus LLM time to first token).
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(keepAliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := writer.WriteKeepAlive(); err != nil {
						return
					}
				}
			}
		}()

		_ = writer.WriteStatus("Computing birth chart...")

		firstToken := true
		session, err := eng.StartSessionStream(c.Request.Context(), info.UserID, &req,
			func(token string) error {
				if firstToken {
					firstToken = false
					_ = writer.WriteStatus("Guidance ready, streaming...")
				}
				if werr := writer.WriteToken(token); werr != nil {
					if metrics != nil {
						metrics.RecordClientDisconnect()
					}
					return werr
				}
				return nil
			})
		if err != nil {
			writeStreamError(writer, err)
			return
		}

		if err := writer.WriteDone(session.ID); err != nil {
			slog.Warn("done event write failed", "session_id", session.ID, "error", err)
		}
	}
}

// writeStreamError emits a sanitized error event. Upstream payloads and
// internal details never reach the stream.
func writeStreamError(writer SSEWriter, err error) {
	var upstream *engine.UpstreamError
	switch {
	case errors.Is(err, store.ErrInsufficientCredits):
		_ = writer.WriteError("insufficient credits")
	case errors.Is(err, engine.ErrUnknownServiceType):
		_ = writer.WriteError("unknown service type")
	case errors.As(err, &upstream):
		slog.Error("stream upstream failure", "stage", upstream.Stage, "error", err)
		_ = writer.WriteError("guidance generation failed, credits refunded")
	default:
		slog.Error("stream failed", "error", err)
		_ = writer.WriteError("session failed")
	}
}
