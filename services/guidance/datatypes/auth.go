// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request and response types for the guidance
// service HTTP API.
//
// This file contains the authentication types (register, login, token
// refresh). For session types, see session.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxQuestionBytes is the maximum size of a seeker's question.
	// Checked in bytes, not runes, to bound memory per request.
	MaxQuestionBytes = 8 * 1024 // 8KB

	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 8

	// MaxPasswordLength caps password length. bcrypt silently truncates
	// input at 72 bytes, so anything longer is rejected up front.
	MaxPasswordLength = 72
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// validate is the validator instance shared by all guidance datatypes.
// Initialized in init() with custom validators.
var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = validate.RegisterValidation("isodatetime", validateISODateTime)
}

// validateMaxBytes checks byte length (not rune count) against
// MaxQuestionBytes to bound per-request memory.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQuestionBytes
}

// validateISODateTime checks that the field parses as an ISO-8601
// timestamp with a numeric offset, e.g. "1990-05-12T06:30:00+05:30".
// The offset carries the birth timezone, which matters for chart math.
func validateISODateTime(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.RFC3339, fl.Field().String())
	return err == nil
}

func generateUUID() string {
	return uuid.NewString()
}

// =============================================================================
// Registration
// =============================================================================

// RegisterRequest is the body for POST /v1/auth/register.
//
// # Description
//
// Creates a seeker account. Email addresses are unique across the
// platform; a duplicate registration returns 409. New accounts receive
// the configured starter credit grant.
//
// # Validation
//
//   - Email: required, valid address
//   - Password: required, 8-72 bytes
//   - FullName: required, 1-120 characters
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"required,min=1,max=120"`
}

// Validate validates the RegisterRequest fields.
func (r *RegisterRequest) Validate() error {
	return validate.Struct(r)
}

// =============================================================================
// Login and Refresh
// =============================================================================

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Validate validates the LoginRequest fields.
func (r *LoginRequest) Validate() error {
	return validate.Struct(r)
}

// RefreshRequest is the body for POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Validate validates the RefreshRequest fields.
func (r *RefreshRequest) Validate() error {
	return validate.Struct(r)
}

// TokenResponse carries an issued token pair.
//
// # Fields
//
//   - AccessToken: Short-lived bearer token for API calls.
//   - RefreshToken: Longer-lived token accepted only by /v1/auth/refresh.
//   - ExpiresIn: Access token lifetime in seconds.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// =============================================================================
// Profile
// =============================================================================

// ProfileResponse is the body for GET /v1/me.
type ProfileResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse is the uniform error body for all endpoints.
// Details never include upstream provider payloads or internal paths.
type ErrorResponse struct {
	Error string `json:"error"`
}
