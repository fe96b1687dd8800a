// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JyotiFlowAI/jyotiflow/services/guidance/datatypes"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

// AdminOverview handles GET /v1/admin/overview. Monitoring only; admin
// routes never mutate user data.
func AdminOverview(users store.UserStore, sessions store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCount, err := users.Count(c.Request.Context())
		if err != nil {
			slog.Error("user count failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "overview failed"})
			return
		}

		byStatus, err := sessions.CountByStatus(c.Request.Context())
		if err != nil {
			slog.Error("session count failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "overview failed"})
			return
		}

		charged, err := sessions.CreditsCharged(c.Request.Context())
		if err != nil {
			slog.Error("credits sum failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "overview failed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.AdminOverviewResponse{
			Users:          userCount,
			SessionsByStat: byStatus,
			CreditsCharged: charged,
		})
	}
}

// AdminSessions handles GET /v1/admin/sessions, listing recent sessions
// across all users.
func AdminSessions(sessions store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pageParams(c)
		rows, err := sessions.ListRecent(c.Request.Context(), limit, offset)
		if err != nil {
			slog.Error("admin session list failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session list failed"})
			return
		}
		c.JSON(http.StatusOK, toListResponse(rows))
	}
}
