// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// AvatarMaker turns guidance text into a talking-avatar video.
type AvatarMaker interface {
	// CreateTalk renders text as an avatar video and returns the bytes.
	// Blocks until the upstream render finishes or ctx/deadline expires.
	CreateTalk(ctx context.Context, text string) ([]byte, error)
}

// DIDClient calls the D-ID talks API: create a render job, poll it to
// completion, download the result.
type DIDClient struct {
	baseURL      string
	authHeader   string
	presenterURL string
	pollInterval time.Duration
	deadline     time.Duration
	httpClient   *http.Client
}

// DIDOption tweaks client construction (used by tests to speed polling).
type DIDOption func(*DIDClient)

// WithPollInterval overrides the poll interval.
func WithPollInterval(d time.Duration) DIDOption {
	return func(c *DIDClient) { c.pollInterval = d }
}

// NewDIDClient builds the client. apiKey is the D-ID basic credential
// ("username:password" form per their dashboard).
func NewDIDClient(baseURL, apiKey, presenterURL string,
	pollInterval, deadline time.Duration, opts ...DIDOption) (*DIDClient, error) {

	if apiKey == "" {
		return nil, fmt.Errorf("d-id api key is required")
	}
	if presenterURL == "" {
		return nil, fmt.Errorf("d-id presenter image url is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.d-id.com"
	}
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}

	c := &DIDClient{
		baseURL:      baseURL,
		authHeader:   "Basic " + apiKey,
		presenterURL: presenterURL,
		pollInterval: pollInterval,
		deadline:     deadline,
		httpClient:   &http.Client{Timeout: time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type createTalkRequest struct {
	SourceURL string     `json:"source_url"`
	Script    talkScript `json:"script"`
}

type talkScript struct {
	Type  string `json:"type"`
	Input string `json:"input"`
}

type talkResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url,omitempty"`
	Error     *struct {
		Kind        string `json:"kind"`
		Description string `json:"description"`
	} `json:"error,omitempty"`
}

func (c *DIDClient) CreateTalk(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	talkID, err := c.submit(ctx, text)
	if err != nil {
		return nil, err
	}

	resultURL, err := c.waitForResult(ctx, talkID)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, resultURL)
}

func (c *DIDClient) submit(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(createTalkRequest{
		SourceURL: c.presenterURL,
		Script:    talkScript{Type: "text", Input: text},
	})
	if err != nil {
		return "", fmt.Errorf("marshal talk request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/talks", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build talk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("talk create failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("talk create returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var talk talkResponse
	if err := json.NewDecoder(resp.Body).Decode(&talk); err != nil {
		return "", fmt.Errorf("parse talk response: %w", err)
	}
	if talk.ID == "" {
		return "", fmt.Errorf("talk response missing id")
	}
	slog.Debug("avatar render submitted", "talk_id", talk.ID)
	return talk.ID, nil
}

func (c *DIDClient) waitForResult(ctx context.Context, talkID string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		talk, err := c.get(ctx, talkID)
		if err != nil {
			return "", err
		}
		switch talk.Status {
		case "done":
			if talk.ResultURL == "" {
				return "", fmt.Errorf("talk %s done but missing result_url", talkID)
			}
			return talk.ResultURL, nil
		case "error", "rejected":
			desc := "unknown"
			if talk.Error != nil {
				desc = talk.Error.Description
			}
			return "", fmt.Errorf("talk %s failed upstream: %s", talkID, desc)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("avatar render timed out for talk %s: %w", talkID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *DIDClient) get(ctx context.Context, talkID string) (*talkResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/talks/"+talkID, nil)
	if err != nil {
		return nil, fmt.Errorf("build talk poll request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("talk poll failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("talk poll returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var talk talkResponse
	if err := json.NewDecoder(resp.Body).Decode(&talk); err != nil {
		return nil, fmt.Errorf("parse talk poll response: %w", err)
	}
	return &talk, nil
}

func (c *DIDClient) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build result download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("result download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("result download returned status %d", resp.StatusCode)
	}
	video, err := io.ReadAll(io.LimitReader(resp.Body, 256<<20))
	if err != nil {
		return nil, fmt.Errorf("read result video: %w", err)
	}
	return video, nil
}
