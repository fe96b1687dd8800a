// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the guidance service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it using the configured auth.Provider, and stores
// the resulting AuthInfo in the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AuthInfo in context
//	           │
//	           ▼
//	       Handler (retrieves via GetAuthInfo)
//
// Admin routes additionally pass through RequireAdmin, which rejects
// authenticated non-admin identities with 403.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/JyotiFlowAI/jyotiflow/services/guidance/auth"
)

// =============================================================================
// Context Keys
// =============================================================================

// authInfoKey is the context key for storing AuthInfo.
// Using a distinct key prevents collisions with other context values.
const authInfoKey = "jyotiflow_auth_info"

// =============================================================================
// Context Helpers
// =============================================================================

// SetAuthInfo stores the authenticated user info in the Gin context.
//
// Called by AuthMiddleware after successful authentication. The stored
// AuthInfo can be retrieved by handlers via GetAuthInfo. Only valid for
// the current request; overwrites any previously set auth info.
func SetAuthInfo(c *gin.Context, info *auth.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated user info from the Gin context.
//
// Returns nil if no AuthInfo is present (request not authenticated) or
// if the stored value has the wrong type.
func GetAuthInfo(c *gin.Context) *auth.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*auth.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// # Description
//
// Extracts the bearer token from the Authorization header, validates it
// using the provided auth.Provider, and stores the resulting AuthInfo
// in the context for downstream handlers. Requests with a missing or
// invalid token are rejected with 401 before the handler runs.
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.AuthMiddleware(provider))
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func AuthMiddleware(provider auth.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			// Provider failures are also rejected; never fail open.
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// RequireAdmin rejects authenticated non-admin identities.
// Must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := GetAuthInfo(c)
		if info == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}
		if !info.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin access required",
			})
			return
		}
		c.Next()
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken extracts the token from the Authorization header.
//
// Expects "Bearer <token>"; the prefix is case-insensitive per RFC 7235.
// Returns empty string if the header is missing or malformed.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
