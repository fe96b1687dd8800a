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

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/JyotiFlowAI/jyotiflow/services/guidance/datatypes"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/engine"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/middleware"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/observability"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
}

// wsMessage is one frame on the session websocket. Type mirrors the SSE
// event types so web and mobile clients share a handler.
type wsMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	SessionId string `json:"session_id,omitempty"`
}

func sendWS(ws *websocket.Conn, msg wsMessage) error {
	if err := ws.WriteJSON(msg); err != nil {
		slog.Warn("websocket write failed", "type", msg.Type, "error", err)
		return err
	}
	return nil
}

// StreamSessionWS handles GET /v1/sessions/ws.
//
// The websocket alternative to the SSE stream endpoint, for clients
// behind proxies that buffer SSE. Each frame on the socket starts one
// session; tokens come back as they are generated. A client disconnect
// aborts generation and the charge is refunded.
func StreamSessionWS(eng SessionStarter, metrics *observability.GuidanceMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := middleware.GetAuthInfo(c)
		if info == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		for {
			var req datatypes.CreateSessionRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("websocket client disconnected", "error", err.Error())
				return
			}
			if err := req.Validate(); err != nil {
				if sendWS(ws, wsMessage{Type: "error", Error: err.Error()}) != nil {
					return
				}
				continue
			}
			req.EnsureDefaults()

			if metrics != nil {
				metrics.StreamStarted()
			}
			session, err := eng.StartSessionStream(c.Request.Context(), info.UserID, &req,
				func(token string) error {
					if werr := sendWS(ws, wsMessage{Type: "token", Content: token}); werr != nil {
						if metrics != nil {
							metrics.RecordClientDisconnect()
						}
						return werr
					}
					return nil
				})
			if metrics != nil {
				metrics.StreamEnded()
			}

			if err != nil {
				if sendWS(ws, wsMessage{Type: "error", Error: wsErrorMessage(err)}) != nil {
					return
				}
				continue
			}
			if sendWS(ws, wsMessage{Type: "done", SessionId: session.ID}) != nil {
				return
			}
		}
	}
}

// wsErrorMessage sanitizes engine errors the same way the SSE stream
// does.
func wsErrorMessage(err error) string {
	var upstream *engine.UpstreamError
	switch {
	case errors.Is(err, store.ErrInsufficientCredits):
		return "insufficient credits"
	case errors.Is(err, engine.ErrUnknownServiceType):
		return "unknown service type"
	case errors.As(err, &upstream):
		slog.Error("websocket upstream failure", "stage", upstream.Stage, "error", err)
		return "guidance generation failed, credits refunded"
	default:
		slog.Error("websocket session failed", "error", err)
		return "session failed"
	}
}
