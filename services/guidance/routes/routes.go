// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes registers the guidance service HTTP routes.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
	"github.com/JyotiFlowAI/jyotiflow/pkg/artifacts"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/auth"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/handlers"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/middleware"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/observability"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
	"github.com/JyotiFlowAI/jyotiflow/services/media"
)

// Deps carries everything the routes need. The media token builder is
// optional; without it the live token endpoint answers 501.
type Deps struct {
	Config    *cfg.Config
	Users     store.UserStore
	Sessions  store.SessionStore
	Provider  *auth.JWTProvider
	Engine    handlers.SessionStarter
	Agora     *media.AgoraTokenBuilder
	Artifacts artifacts.Store
	Metrics   *observability.GuidanceMetrics
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.Health())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", handlers.Register(deps.Users, deps.Provider, deps.Config))
			authGroup.POST("/login", handlers.Login(deps.Users, deps.Provider))
			authGroup.POST("/refresh", handlers.Refresh(deps.Users, deps.Provider))
		}

		authed := v1.Group("", middleware.AuthMiddleware(deps.Provider))
		{
			authed.GET("/me", handlers.Me(deps.Users))

			sessions := authed.Group("/sessions")
			{
				sessions.POST("", handlers.CreateSession(deps.Engine))
				sessions.POST("/stream", handlers.StreamSession(deps.Engine, deps.Metrics))
				sessions.GET("/ws", handlers.StreamSessionWS(deps.Engine, deps.Metrics))
				sessions.GET("", handlers.ListSessions(deps.Sessions))
				sessions.GET("/:id", handlers.GetSession(deps.Sessions))
				sessions.DELETE("/:id", handlers.DeleteSession(deps.Sessions, deps.Artifacts))
				sessions.GET("/:id/live/token", handlers.LiveToken(deps.Sessions, deps.Agora, deps.Config))
			}

			admin := authed.Group("/admin", middleware.RequireAdmin())
			{
				admin.GET("/overview", handlers.AdminOverview(deps.Users, deps.Sessions))
				admin.GET("/sessions", handlers.AdminSessions(deps.Sessions))
			}
		}
	}
}
