// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the guidance service
// HTTP API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/auth"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/datatypes"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/middleware"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

// Register handles POST /v1/auth/register. New accounts receive the
// configured starter credit grant.
func Register(users store.UserStore, provider *auth.JWTProvider, config *cfg.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		hash, err := auth.HashPassword(req.Password, config.Auth.BcryptCost)
		if err != nil {
			slog.Error("password hashing failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
			return
		}

		user := &store.User{
			Email:        req.Email,
			PasswordHash: hash,
			FullName:     req.FullName,
			Role:         store.RoleUser,
			Credits:      config.Credits.StarterGrant,
		}
		if err := users.Create(c.Request.Context(), user); err != nil {
			if errors.Is(err, store.ErrDuplicateEmail) {
				c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
				return
			}
			slog.Error("user create failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
			return
		}

		slog.Info("user registered", "user_id", user.ID, "credits", user.Credits)
		issueTokens(c, provider, user, http.StatusCreated)
	}
}

// Login handles POST /v1/auth/login. Unknown emails and wrong passwords
// return the same 401 so the endpoint does not leak which emails exist.
func Login(users store.UserStore, provider *auth.JWTProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := users.ByEmail(c.Request.Context(), req.Email)
		if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		issueTokens(c, provider, user, http.StatusOK)
	}
}

// Refresh handles POST /v1/auth/refresh. The user row is reloaded so a
// role or credit change is reflected in the new access token.
func Refresh(users store.UserStore, provider *auth.JWTProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		info, err := provider.ValidateRefresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		user, err := users.ByID(c.Request.Context(), info.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		issueTokens(c, provider, user, http.StatusOK)
	}
}

// Me handles GET /v1/me.
func Me(users store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := middleware.GetAuthInfo(c)
		if info == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		user, err := users.ByID(c.Request.Context(), info.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
				return
			}
			slog.Error("profile lookup failed", "user_id", info.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "profile lookup failed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.ProfileResponse{
			UserID:    strconv.FormatUint(uint64(user.ID), 10),
			Email:     user.Email,
			FullName:  user.FullName,
			Role:      user.Role,
			Credits:   user.Credits,
			CreatedAt: user.CreatedAt,
		})
	}
}

func issueTokens(c *gin.Context, provider *auth.JWTProvider, user *store.User, status int) {
	access, refresh, err := provider.IssuePair(user)
	if err != nil {
		slog.Error("token issue failed", "user_id", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(status, datatypes.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(provider.AccessTTL().Seconds()),
	})
}
