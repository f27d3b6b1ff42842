// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
	"github.com/beaconhq/beacon/services/llm"
)

var generatorTracer = otel.Tracer("beaconhq.io/enforcer/generation")

// DraftGenerator produces raw section drafts.
//
// The completion is always non-streaming: enforcement must see the
// whole draft before any byte reaches the caller.
//
// Thread Safety: Safe for concurrent use.
type DraftGenerator struct {
	client  llm.Client
	timeout time.Duration
}

// NewDraftGenerator creates a generator. timeout bounds the provider
// call; zero means 120 seconds.
func NewDraftGenerator(client llm.Client, timeout time.Duration) (*DraftGenerator, error) {
	if client == nil {
		return nil, errors.New("llm client must not be nil")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &DraftGenerator{client: client, timeout: timeout}, nil
}

// Generate produces the raw draft for one section.
//
// Outputs:
//
//	string - The raw model output, trimmed. Never surfaced to a user
//	without passing through enforcement first.
//	error - Non-nil on provider failure or timeout; the caller routes
//	this to the fail-closed warning path.
func (g *DraftGenerator) Generate(ctx context.Context, req datatypes.GenerationRequest, org datatypes.OrganizationProfile, chunks []datatypes.SourceChunk, sanitizedInstructions string) (string, error) {
	ctx, span := generatorTracer.Start(ctx, "DraftGenerator.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("section_name", req.SectionName),
		attribute.Int("chunk_count", len(chunks)),
	)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := llm.GenerationParams{
		Temperature: llm.Float32(0.4),
	}
	if req.WordLimit > 0 {
		// Rough tokens-per-word allowance plus slack for placeholders.
		params.MaxTokens = llm.Int(req.WordLimit*2 + 256)
	}

	draft, err := g.client.Complete(ctx, BuildSystemPrompt(org), BuildUserPrompt(req, chunks, sanitizedInstructions), params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}

	draft = strings.TrimSpace(draft)
	if draft == "" {
		err := errors.New("model returned an empty draft")
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty draft")
		return "", err
	}
	return draft, nil
}
