// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JyotiFlowAI/jyotiflow/pkg/artifacts"
)

// MediaResult reports what the pipeline managed to produce. A session
// whose reading succeeded never fails outright because of media; missing
// outputs leave their URL empty and mark the result degraded.
type MediaResult struct {
	AudioURL string
	VideoURL string
	Degraded bool

	// AudioErr and VideoErr carry the per-branch failure for logging and
	// the session failure_reason field. Nil when the branch succeeded.
	AudioErr error
	VideoErr error
}

// Provider names reported to the observer callback.
const (
	ProviderTTS    = "tts"
	ProviderAvatar = "avatar"
)

// ProviderObserver receives the outcome of one upstream provider call:
// which provider ran, how long it took, and whether it succeeded.
type ProviderObserver func(provider string, seconds float64, success bool)

// Pipeline fans a completed reading out to voice and avatar generation
// and persists the outputs as artifacts.
type Pipeline struct {
	synth  Synthesizer
	avatar AvatarMaker
	store  artifacts.Store
	logger *slog.Logger

	timeout time.Duration
	observe ProviderObserver
}

type PipelineOption func(*Pipeline)

// WithPipelineTimeout bounds a single Generate call end to end.
func WithPipelineTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.timeout = d }
}

// WithProviderObserver reports every synthesizer and avatar call to fn.
func WithProviderObserver(fn ProviderObserver) PipelineOption {
	return func(p *Pipeline) { p.observe = fn }
}

// NewPipeline builds a pipeline. synth and avatar may each be nil, which
// disables that branch; store is required.
func NewPipeline(synth Synthesizer, avatar AvatarMaker, store artifacts.Store, logger *slog.Logger, opts ...PipelineOption) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		synth:   synth,
		avatar:  avatar,
		store:   store,
		logger:  logger,
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Generate runs both enabled branches concurrently and returns what was
// produced. An error is returned only when storage itself is broken or
// ctx was cancelled before either branch finished; upstream provider
// failures are folded into the result instead.
func (p *Pipeline) Generate(ctx context.Context, sessionID, text string) (MediaResult, error) {
	if text == "" {
		return MediaResult{}, fmt.Errorf("no guidance text to render")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var result MediaResult

	// Branches never cancel each other; a dead avatar provider must not
	// take the audio track down with it.
	g := new(errgroup.Group)

	if p.synth != nil {
		g.Go(func() error {
			url, err := p.renderAudio(ctx, sessionID, text)
			if err != nil {
				result.AudioErr = err
				p.logger.Warn("audio generation failed",
					"session_id", sessionID, "error", err)
				return nil
			}
			result.AudioURL = url
			return nil
		})
	}

	if p.avatar != nil {
		g.Go(func() error {
			url, err := p.renderVideo(ctx, sessionID, text)
			if err != nil {
				result.VideoErr = err
				p.logger.Warn("video generation failed",
					"session_id", sessionID, "error", err)
				return nil
			}
			result.VideoURL = url
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil && result.AudioURL == "" && result.VideoURL == "" {
		return MediaResult{}, fmt.Errorf("media pipeline: %w", err)
	}

	result.Degraded = (p.synth != nil && result.AudioURL == "") ||
		(p.avatar != nil && result.VideoURL == "")
	return result, nil
}

func (p *Pipeline) renderAudio(ctx context.Context, sessionID, text string) (string, error) {
	start := time.Now()
	audio, err := p.synth.Synthesize(ctx, text)
	if p.observe != nil {
		p.observe(ProviderTTS, time.Since(start).Seconds(), err == nil)
	}
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	url, err := p.store.Put(ctx, audioKey(sessionID), "audio/mpeg", audio)
	if err != nil {
		return "", fmt.Errorf("store audio: %w", err)
	}
	return url, nil
}

func (p *Pipeline) renderVideo(ctx context.Context, sessionID, text string) (string, error) {
	start := time.Now()
	video, err := p.avatar.CreateTalk(ctx, text)
	if p.observe != nil {
		p.observe(ProviderAvatar, time.Since(start).Seconds(), err == nil)
	}
	if err != nil {
		return "", fmt.Errorf("create talk: %w", err)
	}
	url, err := p.store.Put(ctx, videoKey(sessionID), "video/mp4", video)
	if err != nil {
		return "", fmt.Errorf("store video: %w", err)
	}
	return url, nil
}

func audioKey(sessionID string) string {
	return fmt.Sprintf("sessions/%s/guidance.mp3", sessionID)
}

func videoKey(sessionID string) string {
	return fmt.Sprintf("sessions/%s/guidance.mp4", sessionID)
}

// SessionArtifactKeys returns every storage key the pipeline may have
// written for a session. Callers use it to cascade artifact deletion.
func SessionArtifactKeys(sessionID string) []string {
	return []string{audioKey(sessionID), videoKey(sessionID)}
}
