// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package astrology

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// BirthInput identifies a birth moment and place. DateTime is ISO-8601
// with offset (2000-01-15T10:30:00+05:30) as the upstream API expects.
type BirthInput struct {
	DateTime  string  `json:"datetime"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Ayanamsa  int     `json:"ayanamsa"`
}

// Coordinates renders the lat,lon pair in upstream query format.
func (b BirthInput) Coordinates() string {
	return fmt.Sprintf("%.4f,%.4f", b.Latitude, b.Longitude)
}

// CacheKey derives the cache key for one endpoint + birth moment. Chart
// computation is deterministic for a given input, so the hash fully
// identifies the response.
func (b BirthInput) CacheKey(endpoint string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d",
		endpoint, b.DateTime, b.Coordinates(), b.Ayanamsa)))
	return "astro:" + hex.EncodeToString(sum[:])
}

// APIError is a non-2xx response from the astrology API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("astrology api error: status=%d code=%s: %s",
		e.Status, e.Code, e.Message)
}

// upstream response envelopes

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type errorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}
