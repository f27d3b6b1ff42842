// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIClient talks to an OpenAI-compatible chat completion endpoint.
//
// The API key lives in a memguard enclave and is decrypted only for
// the duration of each request. Calls are throttled by a shared rate
// limiter so a burst of section generations cannot exhaust the
// provider quota.
//
// Thread Safety: Safe for concurrent use.
type OpenAIClient struct {
	key     *memguard.Enclave
	baseURL string
	model   string
	limiter *rate.Limiter
}

// NewOpenAIClient creates a client.
//
// Description:
//
//	Reads the API key from OPENAI_API_KEY or, failing that, the
//	container secret at /run/secrets/openai_api_key, and seals it into
//	an enclave immediately. baseURL overrides the provider endpoint
//	for self-hosted compatible servers; empty means the default.
func NewOpenAIClient(baseURL, model string, requestsPerMinute int) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(apiKeyBytes))
		slog.Info("Read the OpenAI API key from container secrets")
	}
	if model == "" {
		model = "gpt-4o"
		slog.Warn("no model configured, defaulting to gpt-4o")
	}
	if requestsPerMinute < 1 {
		requestsPerMinute = 30
	}

	// NewEnclave wipes the byte slice it is handed.
	key := memguard.NewEnclave([]byte(apiKey))

	slog.Info("Initializing OpenAI client", "model", model, "rpm", requestsPerMinute)
	return &OpenAIClient{
		key:     key,
		baseURL: baseURL,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute),
	}, nil
}

// Complete implements Client.
func (o *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	keyBuf, err := o.key.Open()
	if err != nil {
		return "", fmt.Errorf("open API key enclave: %w", err)
	}
	defer keyBuf.Destroy()

	cfg := openai.DefaultConfig(keyBuf.String())
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("chat completion failed", "model", o.model, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	slog.Debug("received completion", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
