// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JyotiFlowAI/jyotiflow/pkg/secrets"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

func testProvider(t *testing.T) *JWTProvider {
	t.Helper()
	secret, err := secrets.New("test-signing-secret")
	if err != nil {
		t.Fatalf("secrets.New: %v", err)
	}
	p, err := NewJWTProvider(secret,
		"jyotiflow-test", "jyotiflow-test-api", 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}
	return p
}

func testUser() *store.User {
	return &store.User{
		ID:    42,
		Email: "seeker@example.com",
		Role:  store.RoleUser,
	}
}

func TestIssueAndValidatePair(t *testing.T) {
	p := testProvider(t)

	access, refresh, err := p.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if access == "" || refresh == "" || access == refresh {
		t.Fatal("expected two distinct non-empty tokens")
	}

	info, err := p.Validate(context.Background(), access)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if info.UserID != 42 || info.Email != "seeker@example.com" || info.Role != store.RoleUser {
		t.Errorf("unexpected auth info %+v", info)
	}

	if _, err := p.ValidateRefresh(context.Background(), refresh); err != nil {
		t.Errorf("ValidateRefresh: %v", err)
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	p := testProvider(t)
	access, refresh, err := p.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if _, err := p.Validate(context.Background(), refresh); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("refresh token accepted as access token: %v", err)
	}
	if _, err := p.ValidateRefresh(context.Background(), access); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("access token accepted as refresh token: %v", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	p := testProvider(t)
	access, _, err := p.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	// Move the provider clock past the access TTL.
	p.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	if _, err := p.Validate(context.Background(), access); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expired token accepted: %v", err)
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	p := testProvider(t)
	otherSecret, err := secrets.New("a-different-secret")
	if err != nil {
		t.Fatalf("secrets.New: %v", err)
	}
	other, err := NewJWTProvider(otherSecret,
		"jyotiflow-test", "jyotiflow-test-api", 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}

	access, _, err := other.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := p.Validate(context.Background(), access); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("token from another secret accepted: %v", err)
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	p := testProvider(t)
	otherSecret, err := secrets.New("test-signing-secret")
	if err != nil {
		t.Fatalf("secrets.New: %v", err)
	}
	other, err := NewJWTProvider(otherSecret,
		"someone-else", "jyotiflow-test-api", 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}

	access, _, err := other.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := p.Validate(context.Background(), access); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("token with wrong issuer accepted: %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	p := testProvider(t)
	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := p.Validate(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Validate(%q) = %v, want ErrUnauthorized", token, err)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("password stored in plaintext")
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong password") {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordClampsCost(t *testing.T) {
	// Out-of-range cost must not error, it falls back to the default.
	if _, err := HashPassword("password123", 99); err != nil {
		t.Fatalf("HashPassword with out-of-range cost: %v", err)
	}
}

func TestIsAdmin(t *testing.T) {
	if (&AuthInfo{Role: store.RoleUser}).IsAdmin() {
		t.Error("user role reported as admin")
	}
	if !(&AuthInfo{Role: store.RoleAdmin}).IsAdmin() {
		t.Error("admin role not recognized")
	}
	var nilInfo *AuthInfo
	if nilInfo.IsAdmin() {
		t.Error("nil info reported as admin")
	}
}
