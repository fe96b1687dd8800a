// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine orchestrates guidance sessions.
//
// # Session Flow
//
//	StartSession
//	   │
//	   ├─► price lookup for service type
//	   │
//	   ├─► atomic debit + pending session row (single transaction)
//	   │
//	   ├─► chart fetch (astrology provider)
//	   │
//	   ├─► persona render + LLM generation
//	   │
//	   ├─► media pipeline (optional; partial failure degrades)
//	   │
//	   └─► session completed / degraded
//
// The debit and the pending session row commit together; a session row
// never exists without its charge. Any failure between the debit and
// the guidance text refunds the charge exactly once and marks the
// session failed.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
	"github.com/JyotiFlowAI/jyotiflow/pkg/events"
	"github.com/JyotiFlowAI/jyotiflow/services/astrology"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/datatypes"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/observability"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
	"github.com/JyotiFlowAI/jyotiflow/services/llm"
	"github.com/JyotiFlowAI/jyotiflow/services/media"
)

var tracer = otel.Tracer("jyotiflow.guidance")

// ErrUnknownServiceType is returned when no persona exists for the
// requested service type.
var ErrUnknownServiceType = errors.New("unknown service type")

// UpstreamError marks a failure in an external provider. Handlers map
// it to 502; the charge has already been refunded when it is returned.
type UpstreamError struct {
	Stage string // astrology, llm
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failure: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// MediaRunner runs the post-text media pipeline. Satisfied by
// *media.Pipeline; a func fake serves in tests.
type MediaRunner interface {
	Generate(ctx context.Context, sessionID, text string) (media.MediaResult, error)
}

// Engine wires the stores and providers into the session flow.
type Engine struct {
	// config is read per session so a hot-reloaded price table takes
	// effect without restart. Swapped via UpdateConfig.
	config atomic.Pointer[cfg.Config]

	users     store.UserStore
	sessions  store.SessionStore
	charts    astrology.ChartProvider
	llm       llm.Client
	personas  *llm.Personas
	media     MediaRunner // nil disables media generation
	publisher events.Publisher
	metrics   *observability.GuidanceMetrics
	logger    *slog.Logger

	now func() time.Time
}

// Options collects the engine dependencies. Media may be nil (text-only
// deployments); Publisher may be nil and defaults to NopPublisher.
type Options struct {
	Config    *cfg.Config
	Users     store.UserStore
	Sessions  store.SessionStore
	Charts    astrology.ChartProvider
	LLM       llm.Client
	Personas  *llm.Personas
	Media     MediaRunner
	Publisher events.Publisher
	Metrics   *observability.GuidanceMetrics
	Logger    *slog.Logger
}

func New(opts Options) (*Engine, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("config is required")
	case opts.Users == nil || opts.Sessions == nil:
		return nil, fmt.Errorf("stores are required")
	case opts.Charts == nil:
		return nil, fmt.Errorf("chart provider is required")
	case opts.LLM == nil:
		return nil, fmt.Errorf("llm client is required")
	case opts.Personas == nil:
		return nil, fmt.Errorf("personas are required")
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e := &Engine{
		users:     opts.Users,
		sessions:  opts.Sessions,
		charts:    opts.Charts,
		llm:       opts.LLM,
		personas:  opts.Personas,
		media:     opts.Media,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       time.Now,
	}
	e.config.Store(opts.Config)
	return e, nil
}

// UpdateConfig swaps the configuration the engine prices sessions
// against. Sessions already running keep the price they were charged.
func (e *Engine) UpdateConfig(config *cfg.Config) {
	if config == nil {
		return
	}
	e.config.Store(config)
}

// =============================================================================
// Session Orchestration
// =============================================================================

// StartSession runs a full guidance session and returns the final row.
//
// Returns store.ErrInsufficientCredits without charging when the balance
// is too low, ErrUnknownServiceType for unconfigured service types, and
// *UpstreamError (after refunding) when a provider fails.
func (e *Engine) StartSession(ctx context.Context, userID uint,
	req *datatypes.CreateSessionRequest) (*store.GuidanceSession, error) {

	return e.run(ctx, userID, req, nil)
}

// StartSessionStream behaves like StartSession but forwards guidance
// tokens to onToken as the LLM produces them. A non-nil error from
// onToken aborts generation; the charge is refunded.
func (e *Engine) StartSessionStream(ctx context.Context, userID uint,
	req *datatypes.CreateSessionRequest, onToken func(string) error) (*store.GuidanceSession, error) {

	if onToken == nil {
		return nil, fmt.Errorf("onToken callback is required")
	}
	return e.run(ctx, userID, req, onToken)
}

func (e *Engine) run(ctx context.Context, userID uint,
	req *datatypes.CreateSessionRequest, onToken func(string) error) (*store.GuidanceSession, error) {

	ctx, span := tracer.Start(ctx, "guidance.Session",
		trace.WithAttributes(
			attribute.String("session.service_type", req.ServiceType),
			attribute.Bool("session.streaming", onToken != nil),
		),
	)
	defer span.End()

	if !e.personas.Has(req.ServiceType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServiceType, req.ServiceType)
	}

	price := e.config.Load().Price(req.ServiceType)
	started := e.now()

	birthJSON, err := json.Marshal(req.BirthDetails)
	if err != nil {
		return nil, fmt.Errorf("marshal birth details: %w", err)
	}

	session := &store.GuidanceSession{
		ID:             uuid.NewString(),
		UserID:         userID,
		ServiceType:    req.ServiceType,
		Status:         store.StatusPending,
		Question:       req.Question,
		BirthDetails:   string(birthJSON),
		CreditsCharged: price,
	}

	// The debit and the pending row commit in one transaction. A failed
	// balance check rolls everything back and no session exists.
	balance, err := e.users.DebitCredits(ctx, userID, price, func(tx *gorm.DB) error {
		return e.sessions.CreateTx(tx, session)
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientCredits) {
			e.recordError(observability.EndpointSessions, observability.ErrorCodeInsufficientCredits)
		}
		return nil, err
	}

	e.logger.Info("session started",
		"session_id", session.ID,
		"user_id", userID,
		"service_type", req.ServiceType,
		"credits", price)
	if e.metrics != nil {
		e.metrics.RecordDebit(price)
	}
	e.publish(ctx, events.KeySessionCreated, events.SessionEvent{
		SessionID:   session.ID,
		UserID:      userID,
		ServiceType: req.ServiceType,
		Status:      store.StatusPending,
		Credits:     price,
		At:          e.now(),
	})
	e.publish(ctx, events.KeyCreditsDebited, events.CreditEvent{
		UserID:    userID,
		SessionID: session.ID,
		Amount:    price,
		Balance:   balance,
		At:        e.now(),
	})

	chart, err := e.fetchChart(ctx, req.ServiceType, req.BirthDetails)
	if err != nil {
		e.recordError(observability.EndpointSessions, observability.ErrorCodeAstrology)
		return nil, e.fail(ctx, session, "astrology", err)
	}

	text, usage, err := e.generate(ctx, req, string(chart), onToken)
	if err != nil {
		e.recordError(observability.EndpointSessions, observability.ErrorCodeLLM)
		return nil, e.fail(ctx, session, "llm", err)
	}
	if e.metrics != nil {
		e.metrics.RecordTokens(usage.InputTokens, usage.OutputTokens, usage.Model)
	}

	if err := e.sessions.AttachText(ctx, session.ID, text, string(chart)); err != nil {
		return nil, e.fail(ctx, session, "store", err)
	}
	session.GuidanceText = text
	session.ChartData = string(chart)

	finalStatus := store.StatusCompleted
	if e.media != nil {
		if err := e.sessions.UpdateStatus(ctx, session.ID, store.StatusGenerating, ""); err != nil {
			e.logger.Warn("status update failed", "session_id", session.ID, "error", err)
		}
		session.Status = store.StatusGenerating
		finalStatus = e.runMedia(ctx, session, text)
	}

	if err := e.sessions.Complete(ctx, session.ID, finalStatus); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	session.Status = finalStatus
	done := e.now()
	session.CompletedAt = &done

	elapsed := done.Sub(started)
	e.logger.Info("session finished",
		"session_id", session.ID,
		"status", finalStatus,
		"duration_ms", elapsed.Milliseconds())
	if e.metrics != nil {
		e.metrics.RecordSession(req.ServiceType, finalStatus, elapsed.Seconds())
	}
	e.publish(ctx, events.KeySessionCompleted, events.SessionEvent{
		SessionID:   session.ID,
		UserID:      userID,
		ServiceType: req.ServiceType,
		Status:      finalStatus,
		Credits:     price,
		DurationMs:  elapsed.Milliseconds(),
		Degraded:    finalStatus == store.StatusDegraded,
		At:          done,
	})

	return session, nil
}

// fetchChart picks the provider endpoint for the service type.
func (e *Engine) fetchChart(ctx context.Context, serviceType string,
	details datatypes.BirthDetails) (json.RawMessage, error) {

	input := astrology.BirthInput{
		DateTime:  details.DateTime,
		Latitude:  details.Latitude,
		Longitude: details.Longitude,
	}
	start := e.now()
	var chart json.RawMessage
	var err error
	switch serviceType {
	case "birth_chart", "compatibility":
		chart, err = e.charts.Kundli(ctx, input)
	case "daily_horoscope":
		chart, err = e.charts.PlanetPositions(ctx, input)
	default:
		chart, err = e.charts.BirthDetails(ctx, input)
	}
	if e.metrics != nil {
		e.metrics.RecordProviderCall(observability.ProviderAstrology,
			e.now().Sub(start).Seconds(), err == nil)
	}
	return chart, err
}

func (e *Engine) generate(ctx context.Context, req *datatypes.CreateSessionRequest,
	chart string, onToken func(string) error) (string, llm.Usage, error) {

	system := e.personas.Render(req.ServiceType, chart, req.Question)
	prompt := req.Question
	params := llm.GenerationParams{}

	start := e.now()
	var text string
	var usage llm.Usage
	var err error
	if onToken != nil {
		var buf []byte
		usage, err = e.llm.GenerateStream(ctx, system, prompt, params, func(token string) error {
			buf = append(buf, token...)
			return onToken(token)
		})
		text = string(buf)
	} else {
		text, usage, err = e.llm.Generate(ctx, system, prompt, params)
	}
	if e.metrics != nil {
		e.metrics.RecordProviderCall(observability.ProviderLLM,
			e.now().Sub(start).Seconds(), err == nil)
	}
	if err == nil && text == "" {
		err = fmt.Errorf("empty completion")
	}
	return text, usage, err
}

// runMedia executes the media pipeline and attaches whatever it
// produced. Media failures degrade the session, they never fail it.
func (e *Engine) runMedia(ctx context.Context, session *store.GuidanceSession, text string) string {
	result, err := e.media.Generate(ctx, session.ID, text)
	if err != nil {
		e.logger.Warn("media pipeline failed",
			"session_id", session.ID, "error", err)
		e.recordError(observability.EndpointSessions, observability.ErrorCodeMedia)
		e.setFailureReason(ctx, session, "media generation failed")
		return store.StatusDegraded
	}

	if result.AudioURL != "" || result.VideoURL != "" {
		if err := e.sessions.AttachMedia(ctx, session.ID, result.AudioURL, result.VideoURL); err != nil {
			e.logger.Warn("attach media failed", "session_id", session.ID, "error", err)
			return store.StatusDegraded
		}
		session.AudioURL = result.AudioURL
		session.VideoURL = result.VideoURL
	}

	if result.Degraded {
		e.recordError(observability.EndpointSessions, observability.ErrorCodeMedia)
		reason := "media generation incomplete"
		if result.AudioErr != nil && result.VideoErr == nil {
			reason = "audio generation failed"
		} else if result.VideoErr != nil && result.AudioErr == nil {
			reason = "video generation failed"
		}
		e.setFailureReason(ctx, session, reason)
		return store.StatusDegraded
	}
	return store.StatusCompleted
}

func (e *Engine) setFailureReason(ctx context.Context, session *store.GuidanceSession, reason string) {
	session.FailureReason = reason
	if err := e.sessions.UpdateStatus(ctx, session.ID, session.Status, reason); err != nil {
		e.logger.Warn("failure reason update failed", "session_id", session.ID, "error", err)
	}
}

// fail marks the session failed and refunds the charge. Called at most
// once per session; the flow is linear and returns immediately after.
func (e *Engine) fail(ctx context.Context, session *store.GuidanceSession,
	stage string, cause error) error {

	e.logger.Error("session failed",
		"session_id", session.ID,
		"stage", stage,
		"error", cause)

	span := trace.SpanFromContext(ctx)
	span.RecordError(cause)
	span.SetStatus(codes.Error, stage)

	reason := fmt.Sprintf("%s provider failure", stage)
	if stage == "store" {
		reason = "internal storage failure"
	}
	if err := e.sessions.UpdateStatus(ctx, session.ID, store.StatusFailed, reason); err != nil {
		e.logger.Error("failed-status update failed", "session_id", session.ID, "error", err)
	}

	balance, err := e.users.RefundCredits(ctx, session.UserID, session.CreditsCharged, nil)
	if err != nil {
		// Flag the row so the cleanup cycle retries the refund.
		e.logger.Error("refund failed, deferring to cleanup",
			"session_id", session.ID,
			"user_id", session.UserID,
			"credits", session.CreditsCharged,
			"error", err)
		if markErr := e.sessions.MarkRefundDue(ctx, session.ID); markErr != nil {
			e.logger.Error("refund-due mark failed",
				"session_id", session.ID, "error", markErr)
		}
	} else {
		if e.metrics != nil {
			e.metrics.RecordRefund(session.CreditsCharged)
		}
		e.publish(ctx, events.KeyCreditsRefunded, events.CreditEvent{
			UserID:    session.UserID,
			SessionID: session.ID,
			Amount:    session.CreditsCharged,
			Balance:   balance,
			At:        e.now(),
		})
	}

	if e.metrics != nil {
		e.metrics.RecordSession(session.ServiceType, store.StatusFailed,
			e.now().Sub(session.CreatedAt).Seconds())
	}
	e.publish(ctx, events.KeySessionFailed, events.SessionEvent{
		SessionID:   session.ID,
		UserID:      session.UserID,
		ServiceType: session.ServiceType,
		Status:      store.StatusFailed,
		Credits:     session.CreditsCharged,
		At:          e.now(),
	})

	if stage == "store" {
		return fmt.Errorf("session %s: %w", session.ID, cause)
	}
	return &UpstreamError{Stage: stage, Err: cause}
}

func (e *Engine) publish(ctx context.Context, key string, value interface{}) {
	if err := e.publisher.Publish(ctx, key, value); err != nil {
		e.logger.Warn("event publish failed", "key", key, "error", err)
	}
}

func (e *Engine) recordError(endpoint observability.Endpoint, code observability.ErrorCode) {
	if e.metrics != nil {
		e.metrics.RecordError(endpoint, code)
	}
}
