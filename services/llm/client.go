// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "context"

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Usage reports token accounting for a completed generation.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Model        string
}

// Client defines the standard interface for any LLM backend.
type Client interface {
	// Generate produces the full guidance text for a prompt.
	Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, Usage, error)

	// GenerateStream produces the guidance text token by token, invoking
	// onToken for each chunk. Cancelling ctx stops the upstream stream.
	GenerateStream(ctx context.Context, system, prompt string, params GenerationParams,
		onToken func(token string) error) (Usage, error)
}
