// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the guidance
// service.
//
// # Description
//
// Metrics cover session lifecycle, upstream provider calls, credit
// movement, and SSE streaming:
//   - Session counters (by service type and final status)
//   - Session duration histograms
//   - Provider call counters and latencies (astrology, llm, tts, avatar)
//   - Credit debit/refund counters
//   - Active stream gauge and client disconnect counter
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "jyotiflow"

// Subsystem for guidance metrics
const guidanceSubsystem = "guidance"

// GuidanceMetrics holds all Prometheus metrics for guidance sessions.
//
// Initialize once at startup via InitMetrics().
type GuidanceMetrics struct {
	// SessionsTotal counts finished sessions.
	// Labels: service_type, status (completed, degraded, failed, expired)
	SessionsTotal *prometheus.CounterVec

	// SessionDurationSeconds measures end-to-end session generation time.
	// Labels: service_type, status
	SessionDurationSeconds *prometheus.HistogramVec

	// ProviderCallsTotal counts upstream provider calls.
	// Labels: provider (astrology, llm, tts, avatar), status (success, error)
	ProviderCallsTotal *prometheus.CounterVec

	// ProviderLatencySeconds measures upstream provider latency.
	// Labels: provider
	ProviderLatencySeconds *prometheus.HistogramVec

	// CreditsTotal counts credit movement.
	// Labels: direction (debit, refund)
	CreditsTotal *prometheus.CounterVec

	// TokensTotal counts LLM tokens processed by direction and model.
	// Labels: direction (input, output), model
	TokensTotal *prometheus.CounterVec

	// ActiveStreams tracks currently open SSE connections.
	ActiveStreams prometheus.Gauge

	// ClientDisconnectsTotal counts clients dropping mid-stream.
	ClientDisconnectsTotal prometheus.Counter

	// ErrorsTotal counts errors by endpoint and type.
	// Labels: endpoint, error_code
	ErrorsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of GuidanceMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *GuidanceMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; a second call panics on duplicate registration.
func InitMetrics() *GuidanceMetrics {
	DefaultMetrics = &GuidanceMetrics{
		SessionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "sessions_total",
				Help:      "Finished guidance sessions by service type and status",
			},
			[]string{"service_type", "status"},
		),

		SessionDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "session_duration_seconds",
				Help:      "End-to-end session generation time in seconds",
				Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"service_type", "status"},
		),

		ProviderCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "provider_calls_total",
				Help:      "Upstream provider calls by provider and status",
			},
			[]string{"provider", "status"},
		),

		ProviderLatencySeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "provider_latency_seconds",
				Help:      "Upstream provider call latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		CreditsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "credits_total",
				Help:      "Credits moved by direction (debit, refund)",
			},
			[]string{"direction"},
		),

		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "tokens_total",
				Help:      "LLM tokens processed by direction and model",
			},
			[]string{"direction", "model"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "active_streams",
				Help:      "Currently open SSE connections",
			},
		),

		ClientDisconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Clients that dropped mid-stream",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: guidanceSubsystem,
				Name:      "errors_total",
				Help:      "Errors by endpoint and type",
			},
			[]string{"endpoint", "error_code"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeInsufficientCredits indicates a rejected debit.
	ErrorCodeInsufficientCredits ErrorCode = "insufficient_credits"

	// ErrorCodeAstrology indicates astrology provider failure.
	ErrorCodeAstrology ErrorCode = "astrology_error"

	// ErrorCodeLLM indicates LLM API failure.
	ErrorCodeLLM ErrorCode = "llm_error"

	// ErrorCodeMedia indicates media generation failure.
	ErrorCodeMedia ErrorCode = "media_error"

	// ErrorCodeTimeout indicates operation timeout.
	ErrorCodeTimeout ErrorCode = "timeout"

	// ErrorCodeInternal indicates internal server error.
	ErrorCodeInternal ErrorCode = "internal"
)

// =============================================================================
// Provider and Endpoint Names
// =============================================================================

// Provider identifies an upstream dependency for metrics labeling.
type Provider string

const (
	ProviderAstrology Provider = "astrology"
	ProviderLLM       Provider = "llm"
	ProviderTTS       Provider = "tts"
	ProviderAvatar    Provider = "avatar"
)

// Endpoint identifies an API surface for metrics labeling.
type Endpoint string

const (
	EndpointSessions Endpoint = "sessions"
	EndpointStream   Endpoint = "sessions_stream"
	EndpointLive     Endpoint = "sessions_live"
	EndpointAuth     Endpoint = "auth"
	EndpointAdmin    Endpoint = "admin"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordSession records a finished session with its generation time.
func (m *GuidanceMetrics) RecordSession(serviceType, status string, seconds float64) {
	m.SessionsTotal.WithLabelValues(serviceType, status).Inc()
	m.SessionDurationSeconds.WithLabelValues(serviceType, status).Observe(seconds)
}

// RecordProviderCall records one upstream call and its latency.
func (m *GuidanceMetrics) RecordProviderCall(provider Provider, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ProviderCallsTotal.WithLabelValues(string(provider), status).Inc()
	m.ProviderLatencySeconds.WithLabelValues(string(provider)).Observe(seconds)
}

// RecordDebit records charged credits.
func (m *GuidanceMetrics) RecordDebit(credits int) {
	m.CreditsTotal.WithLabelValues("debit").Add(float64(credits))
}

// RecordRefund records refunded credits.
func (m *GuidanceMetrics) RecordRefund(credits int) {
	m.CreditsTotal.WithLabelValues("refund").Add(float64(credits))
}

// RecordTokens records LLM token usage.
func (m *GuidanceMetrics) RecordTokens(inputTokens, outputTokens int, model string) {
	m.TokensTotal.WithLabelValues("input", model).Add(float64(inputTokens))
	m.TokensTotal.WithLabelValues("output", model).Add(float64(outputTokens))
}

// RecordError records an error by endpoint and code.
func (m *GuidanceMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *GuidanceMetrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *GuidanceMetrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *GuidanceMetrics) RecordClientDisconnect() {
	m.ClientDisconnectsTotal.Inc()
}
