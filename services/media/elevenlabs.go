// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package media generates session deliverables beyond text: narration
// audio (ElevenLabs), avatar video (D-ID), and join tokens for live video
// sessions (Agora).
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

	"github.com/JyotiFlowAI/jyotiflow/cfg"
	"github.com/JyotiFlowAI/jyotiflow/pkg/secrets"
)

// Synthesizer produces narration audio for guidance text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ElevenLabsClient calls the ElevenLabs text-to-speech API.
type ElevenLabsClient struct {
	baseURL    string
	apiKey     *secrets.Secret
	voiceID    string
	httpClient *http.Client
}

func NewElevenLabsClient(conf cfg.ElevenLabs, apiKey *secrets.Secret) (*ElevenLabsClient, error) {
	if apiKey == nil {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	if conf.VoiceID == "" {
		return nil, fmt.Errorf("elevenlabs voice id is required")
	}
	baseURL := strings.TrimRight(conf.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io"
	}
	return &ElevenLabsClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		voiceID:    conf.VoiceID,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

type ttsRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings map[string]any `json:"voice_settings,omitempty"`
}

// Synthesize returns MP3 bytes for the given text.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: "eleven_multilingual_v2",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voiceID),
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	if err := c.apiKey.Use(func(key string) error {
		req.Header.Set("xi-api-key", key)
		return nil
	}); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tts request returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read tts audio: %w", err)
	}
	slog.Debug("synthesized narration", "bytes", len(audio))
	return audio, nil
}
