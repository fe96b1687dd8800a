// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package astrology

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
	"github.com/JyotiFlowAI/jyotiflow/pkg/cache"
	"github.com/JyotiFlowAI/jyotiflow/pkg/secrets"
)

func testInput() BirthInput {
	return BirthInput{
		DateTime:  "1990-06-15T04:20:00+05:30",
		Latitude:  13.0827,
		Longitude: 80.2707,
	}
}

// fakeUpstream serves the token endpoint and one chart endpoint, counting
// chart hits.
func fakeUpstream(t *testing.T, chartHits *atomic.Int32, chartStatus int, chartBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pathToken, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("token endpoint got method %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant_type %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("client_secret") != "shh" {
			t.Errorf("client_secret not forwarded")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc(pathBirthDetails, func(w http.ResponseWriter, r *http.Request) {
		chartHits.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("missing bearer token, got %q", got)
		}
		if r.URL.Query().Get("coordinates") != "13.0827,80.2707" {
			t.Errorf("unexpected coordinates %q", r.URL.Query().Get("coordinates"))
		}
		if r.URL.Query().Get("ayanamsa") != "1" {
			t.Errorf("expected Lahiri default, got %q", r.URL.Query().Get("ayanamsa"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(chartStatus)
		_, _ = w.Write([]byte(chartBody))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseURL string, c *cache.Cache) *Client {
	t.Helper()
	secret, err := secrets.New("shh")
	if err != nil {
		t.Fatal(err)
	}
	client, err := NewClient(cfg.Prokerala{
		BaseURL:    baseURL,
		ClientID:   "cid",
		RatePerSec: 100,
		Burst:      100,
	}, secret, c, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestClient_BirthDetails(t *testing.T) {
	var hits atomic.Int32
	server := fakeUpstream(t, &hits, http.StatusOK, `{"data":{"nakshatra":{"name":"Rohini"}}}`)
	client := newTestClient(t, server.URL, nil)

	data, err := client.BirthDetails(context.Background(), testInput())
	if err != nil {
		t.Fatalf("BirthDetails failed: %v", err)
	}
	if string(data) != `{"data":{"nakshatra":{"name":"Rohini"}}}` {
		t.Errorf("unexpected payload: %s", data)
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 upstream hit, got %d", hits.Load())
	}
}

func TestClient_CachesChartResponses(t *testing.T) {
	var hits atomic.Int32
	server := fakeUpstream(t, &hits, http.StatusOK, `{"data":{}}`)

	respCache, err := cache.Open(cache.InMemoryConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer respCache.Close()

	client := newTestClient(t, server.URL, respCache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.BirthDetails(ctx, testInput()); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 upstream hit with caching, got %d", hits.Load())
	}
}

func TestClient_TokenReused(t *testing.T) {
	var hits atomic.Int32
	var tokenHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(pathToken, func(w http.ResponseWriter, _ *http.Request) {
		tokenHits.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
	})
	mux.HandleFunc(pathBirthDetails, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.BirthDetails(ctx, testInput()); err != nil {
			t.Fatal(err)
		}
	}
	if tokenHits.Load() != 1 {
		t.Errorf("expected a single token fetch, got %d", tokenHits.Load())
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 chart calls, got %d", hits.Load())
	}
}

func TestClient_UpstreamErrorIsTyped(t *testing.T) {
	var hits atomic.Int32
	server := fakeUpstream(t, &hits, http.StatusUnauthorized,
		`{"errors":[{"code":"401","title":"Unauthorized","detail":"invalid token"}]}`)
	client := newTestClient(t, server.URL, nil)

	_, err := client.BirthDetails(context.Background(), testInput())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "invalid token" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func TestBirthInput_CacheKeyDistinguishesEndpoints(t *testing.T) {
	in := testInput()
	if in.CacheKey(pathKundli) == in.CacheKey(pathBirthDetails) {
		t.Error("cache keys must differ per endpoint")
	}
	other := in
	other.Latitude += 0.5
	if in.CacheKey(pathKundli) == other.CacheKey(pathKundli) {
		t.Error("cache keys must differ per location")
	}
}
