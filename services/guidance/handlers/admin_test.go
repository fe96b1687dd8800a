// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/JyotiFlowAI/jyotiflow/services/guidance/auth"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/datatypes"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

func adminRouter(users *fakeUserStore, sessions *fakeSessionStore) *gin.Engine {
	router := gin.New()
	admin := router.Group("/v1/admin",
		asUser(&auth.AuthInfo{UserID: 1, Email: "ops@jyotiflow.ai", Role: store.RoleAdmin}))
	admin.GET("/overview", AdminOverview(users, sessions))
	admin.GET("/sessions", AdminSessions(sessions))
	return router
}

func TestAdminOverview(t *testing.T) {
	users := newFakeUserStore()
	users.add(&store.User{Email: "a@example.com"})
	users.add(&store.User{Email: "b@example.com"})

	sessions := newFakeSessionStore()
	sessions.add(&store.GuidanceSession{
		ID: "s1", UserID: 1, Status: store.StatusCompleted, CreditsCharged: 2,
	})
	sessions.add(&store.GuidanceSession{
		ID: "s2", UserID: 1, Status: store.StatusCompleted, CreditsCharged: 5,
	})
	sessions.add(&store.GuidanceSession{
		ID: "s3", UserID: 2, Status: store.StatusFailed, CreditsCharged: 2,
	})

	router := adminRouter(users, sessions)
	rec := doJSON(t, router, http.MethodGet, "/v1/admin/overview", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var overview datatypes.AdminOverviewResponse
	decodeBody(t, rec, &overview)
	if overview.Users != 2 {
		t.Fatalf("expected 2 users, got %d", overview.Users)
	}
	if overview.SessionsByStat[store.StatusCompleted] != 2 ||
		overview.SessionsByStat[store.StatusFailed] != 1 {
		t.Fatalf("unexpected status counts: %v", overview.SessionsByStat)
	}
	if overview.CreditsCharged != 9 {
		t.Fatalf("expected 9 credits charged, got %d", overview.CreditsCharged)
	}
}

func TestAdminSessionsListsAcrossUsers(t *testing.T) {
	sessions := newFakeSessionStore()
	sessions.add(&store.GuidanceSession{ID: "s1", UserID: 1, Status: store.StatusCompleted})
	sessions.add(&store.GuidanceSession{ID: "s2", UserID: 2, Status: store.StatusPending})

	router := adminRouter(newFakeUserStore(), sessions)
	rec := doJSON(t, router, http.MethodGet, "/v1/admin/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var list datatypes.SessionListResponse
	decodeBody(t, rec, &list)
	if list.Total != 2 {
		t.Fatalf("expected both users' sessions, got %d", list.Total)
	}
}
