// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package media

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/JyotiFlowAI/jyotiflow/pkg/artifacts"
)

type fakeSynth struct {
	fn func(ctx context.Context, text string) ([]byte, error)
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.fn(ctx, text)
}

type fakeAvatar struct {
	fn func(ctx context.Context, text string) ([]byte, error)
}

func (f *fakeAvatar) CreateTalk(ctx context.Context, text string) ([]byte, error) {
	return f.fn(ctx, text)
}

func testStore(t *testing.T) artifacts.Store {
	t.Helper()
	store, err := artifacts.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return store
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestPipelineBothBranchesSucceed(t *testing.T) {
	synth := &fakeSynth{fn: func(_ context.Context, _ string) ([]byte, error) {
		return []byte("mp3-bytes"), nil
	}}
	avatar := &fakeAvatar{fn: func(_ context.Context, _ string) ([]byte, error) {
		return []byte("mp4-bytes"), nil
	}}

	p, err := NewPipeline(synth, avatar, testStore(t), quietLogger())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	result, err := p.Generate(context.Background(), "sess-1", "Your chart speaks of patience.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Degraded {
		t.Error("result marked degraded despite both branches succeeding")
	}
	if !strings.Contains(result.AudioURL, "sess-1/guidance.mp3") {
		t.Errorf("unexpected audio url %q", result.AudioURL)
	}
	if !strings.Contains(result.VideoURL, "sess-1/guidance.mp4") {
		t.Errorf("unexpected video url %q", result.VideoURL)
	}
	if result.AudioErr != nil || result.VideoErr != nil {
		t.Errorf("unexpected branch errors: %v / %v", result.AudioErr, result.VideoErr)
	}
}

func TestPipelineVideoFailureDegrades(t *testing.T) {
	avatarErr := errors.New("provider quota exceeded")
	synth := &fakeSynth{fn: func(_ context.Context, _ string) ([]byte, error) {
		return []byte("mp3-bytes"), nil
	}}
	avatar := &fakeAvatar{fn: func(_ context.Context, _ string) ([]byte, error) {
		return nil, avatarErr
	}}

	p, err := NewPipeline(synth, avatar, testStore(t), quietLogger())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	result, err := p.Generate(context.Background(), "sess-2", "text")
	if err != nil {
		t.Fatalf("Generate should not fail on a provider error: %v", err)
	}
	if !result.Degraded {
		t.Error("result should be degraded when video branch fails")
	}
	if result.AudioURL == "" {
		t.Error("audio branch should still have produced output")
	}
	if result.VideoURL != "" {
		t.Errorf("video url should be empty, got %q", result.VideoURL)
	}
	if !errors.Is(result.VideoErr, avatarErr) {
		t.Errorf("VideoErr = %v, want wrapped %v", result.VideoErr, avatarErr)
	}
}

func TestPipelineBothBranchesFail(t *testing.T) {
	fail := func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("down")
	}
	p, err := NewPipeline(&fakeSynth{fn: fail}, &fakeAvatar{fn: fail}, testStore(t), quietLogger())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	result, err := p.Generate(context.Background(), "sess-3", "text")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !result.Degraded {
		t.Error("result should be degraded when both branches fail")
	}
	if result.AudioURL != "" || result.VideoURL != "" {
		t.Error("no urls should be produced")
	}
	if result.AudioErr == nil || result.VideoErr == nil {
		t.Error("both branch errors should be reported")
	}
}

func TestPipelineAudioOnly(t *testing.T) {
	synth := &fakeSynth{fn: func(_ context.Context, _ string) ([]byte, error) {
		return []byte("mp3-bytes"), nil
	}}
	// nil avatar disables the video branch entirely
	p, err := NewPipeline(synth, nil, testStore(t), quietLogger())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	result, err := p.Generate(context.Background(), "sess-4", "text")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Degraded {
		t.Error("missing video branch is not degradation when disabled")
	}
	if result.VideoURL != "" {
		t.Error("disabled branch produced a url")
	}
}

func TestPipelineReportsProviderCalls(t *testing.T) {
	synth := &fakeSynth{fn: func(_ context.Context, _ string) ([]byte, error) {
		return []byte("mp3-bytes"), nil
	}}
	avatar := &fakeAvatar{fn: func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("quota")
	}}

	var mu sync.Mutex
	outcomes := map[string]bool{}
	observe := func(provider string, _ float64, success bool) {
		mu.Lock()
		outcomes[provider] = success
		mu.Unlock()
	}

	p, err := NewPipeline(synth, avatar, testStore(t), quietLogger(),
		WithProviderObserver(observe))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.Generate(context.Background(), "sess-6", "text"); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(outcomes) != 2 {
		t.Fatalf("observed %d provider calls, want 2: %v", len(outcomes), outcomes)
	}
	if success, ok := outcomes[ProviderTTS]; !ok || !success {
		t.Errorf("tts call should be reported successful, got %v (seen %v)", success, ok)
	}
	if success, ok := outcomes[ProviderAvatar]; !ok || success {
		t.Errorf("avatar call should be reported failed, got %v (seen %v)", success, ok)
	}
}

func TestPipelineRejectsEmptyText(t *testing.T) {
	p, err := NewPipeline(nil, nil, testStore(t), quietLogger())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.Generate(context.Background(), "sess-5", ""); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestNewPipelineRequiresStore(t *testing.T) {
	if _, err := NewPipeline(nil, nil, nil, quietLogger()); err == nil {
		t.Error("expected error for nil store")
	}
}
