// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
	"github.com/JyotiFlowAI/jyotiflow/pkg/secrets"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/auth"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/datatypes"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubUserStore satisfies store.UserStore for wiring tests.
type stubUserStore struct{}

func (stubUserStore) Create(context.Context, *store.User) error { return nil }
func (stubUserStore) ByEmail(context.Context, string) (*store.User, error) {
	return nil, store.ErrNotFound
}
func (stubUserStore) ByID(context.Context, uint) (*store.User, error) {
	return nil, store.ErrNotFound
}
func (stubUserStore) Count(context.Context) (int64, error) { return 0, nil }
func (stubUserStore) DebitCredits(context.Context, uint, int, func(*gorm.DB) error) (int, error) {
	return 0, store.ErrInsufficientCredits
}
func (stubUserStore) RefundCredits(context.Context, uint, int, func(*gorm.DB) error) (int, error) {
	return 0, nil
}

// stubSessionStore satisfies store.SessionStore for wiring tests.
type stubSessionStore struct{}

func (stubSessionStore) CreateTx(*gorm.DB, *store.GuidanceSession) error { return nil }
func (stubSessionStore) ByID(context.Context, uint, string) (*store.GuidanceSession, error) {
	return nil, store.ErrNotFound
}
func (stubSessionStore) ListByUser(context.Context, uint, int, int) ([]store.GuidanceSession, error) {
	return nil, nil
}
func (stubSessionStore) ListRecent(context.Context, int, int) ([]store.GuidanceSession, error) {
	return nil, nil
}
func (stubSessionStore) UpdateStatus(context.Context, string, string, string) error { return nil }
func (stubSessionStore) AttachText(context.Context, string, string, string) error  { return nil }
func (stubSessionStore) AttachMedia(context.Context, string, string, string) error { return nil }
func (stubSessionStore) Complete(context.Context, string, string) error            { return nil }
func (stubSessionStore) Delete(context.Context, uint, string) error                { return store.ErrNotFound }
func (stubSessionStore) ExpirePending(context.Context, time.Time, int) ([]store.GuidanceSession, error) {
	return nil, nil
}
func (stubSessionStore) MarkRefundDue(context.Context, string) error { return nil }
func (stubSessionStore) ListRefundDue(context.Context, int) ([]store.GuidanceSession, error) {
	return nil, nil
}
func (stubSessionStore) ClearRefundDueTx(*gorm.DB, string) error { return nil }
func (stubSessionStore) CountByStatus(context.Context) (map[string]int64, error) {
	return nil, nil
}
func (stubSessionStore) CreditsCharged(context.Context) (int64, error) { return 0, nil }

// stubEngine satisfies handlers.SessionStarter.
type stubEngine struct{}

func (stubEngine) StartSession(context.Context, uint, *datatypes.CreateSessionRequest) (*store.GuidanceSession, error) {
	return &store.GuidanceSession{ID: "stub", Status: store.StatusCompleted}, nil
}

func (stubEngine) StartSessionStream(context.Context, uint, *datatypes.CreateSessionRequest,
	func(string) error) (*store.GuidanceSession, error) {
	return &store.GuidanceSession{ID: "stub", Status: store.StatusCompleted}, nil
}

func setupTestRoutes(t *testing.T) *gin.Engine {
	t.Helper()
	loader, err := cfg.NewMockLoader()
	if err != nil {
		t.Fatalf("mock loader: %v", err)
	}
	config, err := loader.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	secret, err := secrets.New(config.Auth.JWTSecret)
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	provider, err := auth.NewJWTProvider(secret, "", "", 0, 0)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	router := gin.New()
	SetupRoutes(router, Deps{
		Config:   config,
		Users:    stubUserStore{},
		Sessions: stubSessionStore{},
		Provider: provider,
		Engine:   stubEngine{},
	})
	return router
}

func TestSetupRoutesRegistersAllEndpoints(t *testing.T) {
	router := setupTestRoutes(t)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/auth/register"},
		{"POST", "/v1/auth/login"},
		{"POST", "/v1/auth/refresh"},
		{"GET", "/v1/me"},
		{"POST", "/v1/sessions"},
		{"POST", "/v1/sessions/stream"},
		{"GET", "/v1/sessions/ws"},
		{"GET", "/v1/sessions"},
		{"GET", "/v1/sessions/:id"},
		{"DELETE", "/v1/sessions/:id"},
		{"GET", "/v1/sessions/:id/live/token"},
		{"GET", "/v1/admin/overview"},
		{"GET", "/v1/admin/sessions"},
	}

	routes := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range routes {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected route %s %s not found", want.method, want.path)
		}
	}
}

func TestSetupRoutesHealthEndpoint(t *testing.T) {
	router := setupTestRoutes(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
}

func TestSetupRoutesMetricsEndpoint(t *testing.T) {
	router := setupTestRoutes(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("metrics endpoint returned %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("Content-Type") == "" {
		t.Error("metrics endpoint should set a Content-Type header")
	}
}

func TestProtectedRoutesRejectAnonymousRequests(t *testing.T) {
	router := setupTestRoutes(t)

	protected := []struct {
		method string
		path   string
	}{
		{"GET", "/v1/me"},
		{"POST", "/v1/sessions"},
		{"GET", "/v1/sessions"},
		{"GET", "/v1/admin/overview"},
	}
	for _, p := range protected {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(p.method, p.path, nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token returned %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestAdminRoutesRejectNonAdmins(t *testing.T) {
	router := setupTestRoutes(t)

	provider := func() *auth.JWTProvider {
		secret, _ := secrets.New("test-secret-not-for-production")
		p, _ := auth.NewJWTProvider(secret, "", "", 0, 0)
		return p
	}()
	access, _, err := provider.IssuePair(&store.User{ID: 7, Email: "user@example.com", Role: store.RoleUser})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/admin/overview", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("admin route for a regular user returned %d, want 403", w.Code)
	}
}
