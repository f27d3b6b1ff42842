// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm wraps the language-model provider behind a narrow
// completion interface so the pipeline can swap in a deterministic
// stand-in for tests.
package llm

import (
	"context"
)

// GenerationParams are the tunable knobs for one completion call.
// Nil pointers mean "use the provider default".
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string
}

// Client produces one non-streaming completion per call.
//
// The pipeline never streams from the provider: enforcement rewrites
// the full draft before anything reaches the caller, so a partial
// completion is never useful.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, error)
}

// Float32 returns a pointer to v, for literal params.
func Float32(v float32) *float32 { return &v }

// Int returns a pointer to v, for literal params.
func Int(v int) *int { return &v }
