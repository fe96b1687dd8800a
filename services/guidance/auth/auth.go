// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth issues and validates the bearer tokens used by the
// guidance service.
//
// # Token Model
//
// Two token kinds are issued as a pair on login and refresh:
//
//   - access: short-lived, accepted by AuthMiddleware on every API call
//   - refresh: longer-lived, accepted only by the refresh endpoint
//
// Both are HS256 JWTs signed with a shared secret held in a memguard
// enclave. The kind is carried in a "kind" claim so a refresh token can
// never be replayed as an access token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/JyotiFlowAI/jyotiflow/pkg/secrets"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
)

// ErrUnauthorized is returned for any token that should not be accepted:
// bad signature, expired, wrong kind, wrong issuer or audience.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the validated identity attached to a request.
type AuthInfo struct {
	UserID uint
	Email  string
	Role   string
}

// IsAdmin reports whether the identity may access admin endpoints.
func (a *AuthInfo) IsAdmin() bool {
	return a != nil && a.Role == store.RoleAdmin
}

// Provider validates bearer tokens.
//
// Implementations must be safe for concurrent use; the middleware calls
// Validate on every request.
type Provider interface {
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// =============================================================================
// JWT Provider
// =============================================================================

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
	Kind  string `json:"kind"`
}

// JWTProvider issues and validates HS256 token pairs.
type JWTProvider struct {
	secret     *secrets.Secret
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration

	// overridable for tests
	now func() time.Time
}

// NewJWTProvider builds a provider. secret must not be nil; zero TTLs
// default to 15 minutes (access) and 720 hours (refresh).
func NewJWTProvider(secret *secrets.Secret, issuer, audience string,
	accessTTL, refreshTTL time.Duration) (*JWTProvider, error) {

	if secret == nil {
		return nil, fmt.Errorf("jwt signing secret is required")
	}
	if issuer == "" {
		issuer = "jyotiflow"
	}
	if audience == "" {
		audience = "jyotiflow-api"
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 720 * time.Hour
	}
	return &JWTProvider{
		secret:     secret,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (p *JWTProvider) AccessTTL() time.Duration {
	return p.accessTTL
}

// IssuePair mints an access and refresh token for the user.
func (p *JWTProvider) IssuePair(user *store.User) (access, refresh string, err error) {
	access, err = p.sign(user, kindAccess, p.accessTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	refresh, err = p.sign(user, kindRefresh, p.refreshTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}
	return access, refresh, nil
}

func (p *JWTProvider) sign(user *store.User, kind string, ttl time.Duration) (string, error) {
	now := p.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: user.Email,
		Role:  user.Role,
		Kind:  kind,
	}

	var signed string
	err := p.secret.Use(func(key string) error {
		var signErr error
		signed, signErr = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
			SignedString([]byte(key))
		return signErr
	})
	return signed, err
}

// Validate checks an access token and returns the identity it carries.
func (p *JWTProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	return p.parse(token, kindAccess)
}

// ValidateRefresh checks a refresh token. Only the refresh endpoint
// calls this.
func (p *JWTProvider) ValidateRefresh(_ context.Context, token string) (*AuthInfo, error) {
	return p.parse(token, kindRefresh)
}

func (p *JWTProvider) parse(token, wantKind string) (*AuthInfo, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	claims := &sessionClaims{}
	var parseErr error
	err := p.secret.Use(func(key string) error {
		_, parseErr = jwt.ParseWithClaims(token, claims,
			func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(key), nil
			},
			jwt.WithIssuer(p.issuer),
			jwt.WithAudience(p.audience),
			jwt.WithTimeFunc(p.now),
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, parseErr)
	}
	if claims.Kind != wantKind {
		return nil, fmt.Errorf("%w: wrong token kind", ErrUnauthorized)
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrUnauthorized)
	}
	return &AuthInfo{
		UserID: uint(userID),
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// =============================================================================
// Password Hashing
// =============================================================================

// HashPassword hashes a plaintext password with bcrypt. cost outside
// the bcrypt range falls back to the library default.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
