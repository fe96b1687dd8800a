// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/JyotiFlowAI/jyotiflow/pkg/secrets"
)

type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds the OpenAI backend. The API key comes from the
// sealed secret; model defaults to gpt-4o-mini when unset.
func NewOpenAIClient(apiKey *secrets.Secret, model string) (*OpenAIClient, error) {
	if apiKey == nil {
		return nil, fmt.Errorf("openai api key secret is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("openai model not set, defaulting to gpt-4o-mini")
	}

	key, err := apiKey.Reveal()
	if err != nil {
		return nil, fmt.Errorf("failed to read openai api key: %w", err)
	}

	slog.Info("initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(key),
		model:  model,
	}, nil
}

func (o *OpenAIClient) request(system, prompt string, params GenerationParams) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

// Generate implements the Client interface.
func (o *OpenAIClient) Generate(ctx context.Context, system, prompt string,
	params GenerationParams) (string, Usage, error) {

	slog.Debug("generating guidance via OpenAI", "model", o.model)

	resp, err := o.client.CreateChatCompletion(ctx, o.request(system, prompt, params))
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", Usage{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return "", Usage{}, fmt.Errorf("OpenAI returned no choices")
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        o.model,
	}
	slog.Debug("received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, usage, nil
}

// GenerateStream implements the Client interface.
func (o *OpenAIClient) GenerateStream(ctx context.Context, system, prompt string,
	params GenerationParams, onToken func(string) error) (Usage, error) {

	req := o.request(system, prompt, params)
	req.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		slog.Error("OpenAI stream creation failed", "error", err)
		return Usage{}, fmt.Errorf("OpenAI stream creation failed: %w", err)
	}
	defer stream.Close()

	usage := Usage{Model: o.model}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, fmt.Errorf("OpenAI stream receive failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		token := chunk.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		usage.OutputTokens++
		if err := onToken(token); err != nil {
			return usage, err
		}
	}
}
