// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JyotiFlowAI/jyotiflow/cfg"
)

// Publisher is the interface the guidance service publishes through.
// NopPublisher satisfies it for deployments without Kafka.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// Producer handles Kafka message publishing.
type Producer struct {
	Config *cfg.Config
	writer *kafka.Writer
}

// NewProducer creates and returns a new Kafka Producer for the session topic.
func NewProducer(config *cfg.Config) (*Producer, error) {
	if len(config.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Kafka.Brokers...),
		Topic:        config.Kafka.SessionTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}

	return &Producer{
		Config: config,
		writer: writer,
	}, nil
}

// Publish sends a message to the session topic.
func (p *Producer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonBytes,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// NopPublisher drops all events. Used when Kafka is not configured and in
// handler tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NopPublisher) Close() error                                      { return nil }
