// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/JyotiFlowAI/jyotiflow/pkg/artifacts"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/datatypes"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/engine"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/middleware"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
	"github.com/JyotiFlowAI/jyotiflow/services/media"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SessionStarter runs guidance sessions. Satisfied by *engine.Engine.
type SessionStarter interface {
	StartSession(ctx context.Context, userID uint,
		req *datatypes.CreateSessionRequest) (*store.GuidanceSession, error)
	StartSessionStream(ctx context.Context, userID uint,
		req *datatypes.CreateSessionRequest, onToken func(string) error) (*store.GuidanceSession, error)
}

// CreateSession handles POST /v1/sessions. The request blocks until the
// session finishes; clients wanting incremental output use the stream
// endpoint instead.
func CreateSession(eng SessionStarter) gin.HandlerFunc {
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

		session, err := eng.StartSession(c.Request.Context(), info.UserID, &req)
		if err != nil {
			writeSessionError(c, err)
			return
		}

		c.JSON(http.StatusCreated, datatypes.NewSessionResponse(session))
	}
}

// GetSession handles GET /v1/sessions/:id. A session belonging to
// another user returns 404, never 403, so session ids cannot be probed.
func GetSession(sessions store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := middleware.GetAuthInfo(c)
		if info == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		session, err := sessions.ByID(c.Request.Context(), info.UserID, c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			slog.Error("session lookup failed", "session_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.NewSessionResponse(session))
	}
}

// ListSessions handles GET /v1/sessions with limit/offset paging.
func ListSessions(sessions store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := middleware.GetAuthInfo(c)
		if info == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit, offset := pageParams(c)
		rows, err := sessions.ListByUser(c.Request.Context(), info.UserID, limit, offset)
		if err != nil {
			slog.Error("session list failed", "user_id", info.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session list failed"})
			return
		}

		c.JSON(http.StatusOK, toListResponse(rows))
	}
}

// DeleteSession handles DELETE /v1/sessions/:id.
func DeleteSession(sessions store.SessionStore, artifactStore artifacts.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := middleware.GetAuthInfo(c)
		if info == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id := c.Param("id")
		if err := sessions.Delete(c.Request.Context(), info.UserID, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			slog.Error("session delete failed", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session delete failed"})
			return
		}

		deleteSessionArtifacts(c.Request.Context(), artifactStore, id)

		slog.Info("session deleted", "session_id", id, "user_id", info.UserID)
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "session_id": id})
	}
}

// deleteSessionArtifacts removes any media the pipeline stored for the
// session. Best effort; the row is already gone.
func deleteSessionArtifacts(ctx context.Context, artifactStore artifacts.Store, sessionID string) {
	if artifactStore == nil {
		return
	}
	for _, key := range media.SessionArtifactKeys(sessionID) {
		if err := artifactStore.Delete(ctx, key); err != nil && !errors.Is(err, artifacts.ErrNotFound) {
			slog.Warn("artifact delete failed", "key", key, "error", err)
		}
	}
}

// writeSessionError maps engine errors to HTTP statuses.
func writeSessionError(c *gin.Context, err error) {
	var upstream *engine.UpstreamError
	switch {
	case errors.Is(err, store.ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient credits"})
	case errors.Is(err, engine.ErrUnknownServiceType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown service type"})
	case errors.As(err, &upstream):
		slog.Error("session upstream failure", "stage", upstream.Stage, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "guidance generation failed, credits refunded"})
	default:
		slog.Error("session failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session failed"})
	}
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit = defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = min(n, maxPageSize)
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func toListResponse(rows []store.GuidanceSession) datatypes.SessionListResponse {
	resp := datatypes.SessionListResponse{
		Sessions: make([]datatypes.SessionResponse, 0, len(rows)),
		Total:    len(rows),
	}
	for i := range rows {
		resp.Sessions = append(resp.Sessions, datatypes.NewSessionResponse(&rows[i]))
	}
	return resp
}
