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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/datatypes"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/middleware"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
	"github.com/JyotiFlowAI/jyotiflow/services/media"
)

// LiveToken handles GET /v1/sessions/:id/live/token.
//
// Issues an RTC join token scoped to the session's channel. Only the
// session owner can obtain one, and only while the session is not in a
// terminal failed state. The channel name is the session id.
func LiveToken(sessions store.SessionStore, builder *media.AgoraTokenBuilder,
	config *cfg.Config) gin.HandlerFunc {

	return func(c *gin.Context) {
		info := middleware.GetAuthInfo(c)
		if info == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if builder == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "live sessions not configured"})
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
		if session.Status == store.StatusFailed || session.Status == store.StatusExpired {
			c.JSON(http.StatusConflict, gin.H{"error": "session is not live"})
			return
		}

		ttl := time.Duration(config.Agora.TokenTTLHours) * time.Hour
		uid := strconv.FormatUint(uint64(info.UserID), 10)
		token, err := builder.BuildRTCToken(session.ID, uid, ttl)
		if err != nil {
			slog.Error("live token build failed", "session_id", session.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "live token build failed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.LiveTokenResponse{
			Token:     token,
			Channel:   session.ID,
			UID:       uid,
			AppID:     config.Agora.AppID,
			ExpiresIn: int64(ttl.Seconds()),
		})
	}
}
