// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/JyotiFlowAI/jyotiflow/services/guidance/auth"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProvider struct {
	fn func(ctx context.Context, token string) (*auth.AuthInfo, error)
}

func (f *fakeProvider) Validate(ctx context.Context, token string) (*auth.AuthInfo, error) {
	return f.fn(ctx, token)
}

func protectedRouter(provider auth.Provider) *gin.Engine {
	r := gin.New()
	r.GET("/protected", AuthMiddleware(provider), func(c *gin.Context) {
		info := GetAuthInfo(c)
		c.JSON(http.StatusOK, gin.H{"user_id": info.UserID, "role": info.Role})
	})
	r.GET("/admin", AuthMiddleware(provider), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	var gotToken string
	provider := &fakeProvider{fn: func(_ context.Context, token string) (*auth.AuthInfo, error) {
		gotToken = token
		return &auth.AuthInfo{UserID: 7, Role: store.RoleUser}, nil
	}}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	protectedRouter(provider).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotToken != "tok-123" {
		t.Errorf("provider saw token %q, want tok-123", gotToken)
	}
}

func TestAuthMiddlewareRejectsInvalidToken(t *testing.T) {
	provider := &fakeProvider{fn: func(_ context.Context, _ string) (*auth.AuthInfo, error) {
		return nil, auth.ErrUnauthorized
	}}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad")
	protectedRouter(provider).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddlewareRejectsProviderFailure(t *testing.T) {
	provider := &fakeProvider{fn: func(_ context.Context, _ string) (*auth.AuthInfo, error) {
		return nil, errors.New("key store unreachable")
	}}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer tok")
	protectedRouter(provider).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("provider failure must fail closed, status = %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	cases := []struct {
		name string
		role string
		want int
	}{
		{"admin allowed", store.RoleAdmin, http.StatusOK},
		{"user forbidden", store.RoleUser, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &fakeProvider{fn: func(_ context.Context, _ string) (*auth.AuthInfo, error) {
				return &auth.AuthInfo{UserID: 1, Role: tc.role}, nil
			}}

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer tok")
			protectedRouter(provider).ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer ABC123", "ABC123"},
		{"Bearer  spaced ", "spaced"},
		{"Basic dXNlcjpwYXNz", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			c.Request.Header.Set("Authorization", tc.header)
		}
		if got := extractBearerToken(c); got != tc.want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestGetAuthInfoMissing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if GetAuthInfo(c) != nil {
		t.Error("expected nil for unauthenticated context")
	}
}
