// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analytics consumes guidance lifecycle events from Kafka and
// writes them to InfluxDB for dashboards. It runs as its own process
// (the worker command) so slow writes never sit on the serving path.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
	"github.com/JyotiFlowAI/jyotiflow/pkg/events"
)

// PointSink is where decoded events land. Satisfied by the blocking
// InfluxDB write API; tests use an in-memory sink.
type PointSink interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Worker consumes session and credit events into a PointSink.
type Worker struct {
	consumer *events.Consumer
	sink     PointSink
	logger   *slog.Logger
	close    func()
}

// NewWorker connects to Kafka and InfluxDB from config.
func NewWorker(config *cfg.Config, logger *slog.Logger) (*Worker, error) {
	if config.Influx.URL == "" {
		return nil, fmt.Errorf("influxdb url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	consumer, err := events.NewConsumer(config)
	if err != nil {
		return nil, fmt.Errorf("init kafka consumer: %w", err)
	}

	client := influxdb2.NewClient(config.Influx.URL, config.Influx.Token)
	sink := client.WriteAPIBlocking(config.Influx.Org, config.Influx.Bucket)

	w := &Worker{
		consumer: consumer,
		sink:     sink,
		logger:   logger,
		close:    client.Close,
	}
	w.registerHandlers()
	return w, nil
}

// newTestWorker wires a worker around fakes without Kafka or InfluxDB.
func newTestWorker(sink PointSink, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, logger: logger}
}

func (w *Worker) registerHandlers() {
	w.consumer.RegisterHandler(events.KeySessionCreated, w.handleSession(events.KeySessionCreated))
	w.consumer.RegisterHandler(events.KeySessionCompleted, w.handleSession(events.KeySessionCompleted))
	w.consumer.RegisterHandler(events.KeySessionFailed, w.handleSession(events.KeySessionFailed))
	w.consumer.RegisterHandler(events.KeyCreditsDebited, w.handleCredit("debit"))
	w.consumer.RegisterHandler(events.KeyCreditsRefunded, w.handleCredit("refund"))
}

// Run consumes until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Start(ctx)
}

// Close releases the Kafka reader and the InfluxDB client.
func (w *Worker) Close() error {
	if w.close != nil {
		w.close()
	}
	if w.consumer != nil {
		return w.consumer.Close()
	}
	return nil
}

func (w *Worker) handleSession(key string) func([]byte) error {
	return func(value []byte) error {
		var event events.SessionEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return fmt.Errorf("decode %s event: %w", key, err)
		}
		return w.writeSessionPoint(key, &event)
	}
}

func (w *Worker) handleCredit(direction string) func([]byte) error {
	return func(value []byte) error {
		var event events.CreditEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return fmt.Errorf("decode credit event: %w", err)
		}
		return w.writeCreditPoint(direction, &event)
	}
}

func (w *Worker) writeSessionPoint(key string, event *events.SessionEvent) error {
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}
	point := influxdb2.NewPoint("guidance_sessions",
		map[string]string{
			"event":        key,
			"service_type": event.ServiceType,
			"status":       event.Status,
		},
		map[string]interface{}{
			"credits":     event.Credits,
			"duration_ms": event.DurationMs,
			"degraded":    event.Degraded,
			"count":       1,
		},
		at,
	)
	if err := w.sink.WritePoint(context.Background(), point); err != nil {
		w.logger.Error("session point write failed", "event", key, "error", err)
		return err
	}
	return nil
}

func (w *Worker) writeCreditPoint(direction string, event *events.CreditEvent) error {
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}
	point := influxdb2.NewPoint("credits",
		map[string]string{
			"direction": direction,
		},
		map[string]interface{}{
			"amount":  event.Amount,
			"balance": event.Balance,
			"count":   1,
		},
		at,
	)
	if err := w.sink.WritePoint(context.Background(), point); err != nil {
		w.logger.Error("credit point write failed", "direction", direction, "error", err)
		return err
	}
	return nil
}
