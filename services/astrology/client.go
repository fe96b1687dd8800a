// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package astrology wraps the Prokerala astrology API: OAuth2
// client-credentials auth with a cached token, a shared rate limiter,
// and a response cache keyed by birth details.
//
// Upstream bills per computed chart, so responses for identical inputs
// are cached (pkg/cache) for the configured TTL.
package astrology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
	"github.com/JyotiFlowAI/jyotiflow/pkg/cache"
	"github.com/JyotiFlowAI/jyotiflow/pkg/secrets"
)

// Endpoint paths. v2 of the upstream API.
const (
	pathToken           = "/token"
	pathBirthDetails    = "/v2/astrology/birth-details"
	pathKundli          = "/v2/astrology/kundli"
	pathPlanetPositions = "/v2/astrology/planet-position"
)

// ChartProvider is what the guidance engine depends on; tests fake it.
type ChartProvider interface {
	BirthDetails(ctx context.Context, input BirthInput) (json.RawMessage, error)
	Kundli(ctx context.Context, input BirthInput) (json.RawMessage, error)
	PlanetPositions(ctx context.Context, input BirthInput) (json.RawMessage, error)
}

// Client talks to the Prokerala API.
//
// Thread Safety: safe for concurrent use. Token refresh is serialized by
// tokenMu so at most one goroutine hits the token endpoint at a time.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	clientID     string
	clientSecret *secrets.Secret
	limiter      *rate.Limiter
	cache        *cache.Cache
	cacheTTL     time.Duration

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds the client. responseCache may be nil to disable caching.
func NewClient(conf cfg.Prokerala, clientSecret *secrets.Secret,
	responseCache *cache.Cache, cacheTTL time.Duration) (*Client, error) {

	if conf.ClientID == "" {
		return nil, fmt.Errorf("prokerala client id is required")
	}
	if clientSecret == nil {
		return nil, fmt.Errorf("prokerala client secret is required")
	}
	baseURL := strings.TrimRight(conf.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.prokerala.com"
	}
	rps := conf.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	burst := conf.Burst
	if burst <= 0 {
		burst = int(rps)
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		clientID:     conf.ClientID,
		clientSecret: clientSecret,
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		cache:        responseCache,
		cacheTTL:     cacheTTL,
	}, nil
}

func (c *Client) BirthDetails(ctx context.Context, input BirthInput) (json.RawMessage, error) {
	return c.chart(ctx, pathBirthDetails, input)
}

func (c *Client) Kundli(ctx context.Context, input BirthInput) (json.RawMessage, error) {
	return c.chart(ctx, pathKundli, input)
}

func (c *Client) PlanetPositions(ctx context.Context, input BirthInput) (json.RawMessage, error) {
	return c.chart(ctx, pathPlanetPositions, input)
}

func (c *Client) chart(ctx context.Context, path string, input BirthInput) (json.RawMessage, error) {
	if c.cache != nil {
		if data, err := c.cache.Get(input.CacheKey(path)); err == nil {
			slog.Debug("astrology cache hit", "endpoint", path)
			return json.RawMessage(data), nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	if input.Ayanamsa == 0 {
		input.Ayanamsa = 1 // Lahiri
	}
	q := url.Values{}
	q.Set("datetime", input.DateTime)
	q.Set("coordinates", input.Coordinates())
	q.Set("ayanamsa", fmt.Sprintf("%d", input.Ayanamsa))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build chart request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("astrology api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read astrology response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	if c.cache != nil {
		if err := c.cache.Set(input.CacheKey(path), body, c.cacheTTL); err != nil {
			slog.Warn("failed to cache astrology response", "error", err)
		}
	}
	return json.RawMessage(body), nil
}

// token returns a valid access token, refreshing when within a minute of
// expiry. Refresh is serialized; waiters reuse the fresh token.
func (c *Client) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && time.Now().Add(time.Minute).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	var form string
	err := c.clientSecret.Use(func(secret string) error {
		form = url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {c.clientID},
			"client_secret": {secret},
		}.Encode()
		return nil
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+pathToken, strings.NewReader(form))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", parseAPIError(resp.StatusCode, body)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	slog.Debug("refreshed astrology api token", "expires_in", tok.ExpiresIn)
	return c.accessToken, nil
}

func parseAPIError(status int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && len(er.Errors) > 0 {
		return &APIError{
			Status:  status,
			Code:    er.Errors[0].Code,
			Message: er.Errors[0].Detail,
		}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
}
