// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
)

// Consumer handles Kafka message consumption with per-key handlers.
type Consumer struct {
	Config   *cfg.Config
	reader   *kafka.Reader
	handlers map[string]func([]byte) error
}

// NewConsumer creates a Consumer in the configured group on the session topic.
func NewConsumer(config *cfg.Config) (*Consumer, error) {
	if len(config.Kafka.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Kafka.Brokers,
		Topic:          config.Kafka.SessionTopic,
		GroupID:        config.Kafka.GroupID,
		MinBytes:       10e3,        // 10KB
		MaxBytes:       10e6,        // 10MB
		MaxWait:        time.Second, // Maximum amount of time to wait for new data
		StartOffset:    kafka.FirstOffset,
		RetentionTime:  7 * 24 * time.Hour,
		CommitInterval: time.Second,
	})

	return &Consumer{
		Config:   config,
		reader:   reader,
		handlers: make(map[string]func([]byte) error),
	}, nil
}

// RegisterHandler registers a message handler for a specific message key.
// Not safe to call after Start.
func (c *Consumer) RegisterHandler(key string, handler func([]byte) error) {
	c.handlers[key] = handler
}

// Start consumes until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("starting kafka consumer", "topic", c.reader.Config().Topic,
		"group", c.reader.Config().GroupID)

	for {
		select {
		case <-ctx.Done():
			return c.reader.Close()
		default:
			message, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				slog.Error("error reading kafka message", "error", err)
				continue
			}

			key := string(message.Key)
			handler, exists := c.handlers[key]
			if !exists {
				slog.Warn("no handler registered for message key", "key", key)
				continue
			}
			if err := handler(message.Value); err != nil {
				slog.Error("error handling message", "key", key, "error", err)
			}
		}
	}
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
