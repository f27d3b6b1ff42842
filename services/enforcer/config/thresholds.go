// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds the enforcement threshold tables and service
// configuration. Every pipeline stage reads its cutoffs from the single
// Thresholds table here rather than carrying private constants, so the
// numbers that decide VERIFIED vs UNVERIFIED live in exactly one place.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Thresholds is the single table of similarity cutoffs, score bands and
// work limits shared by every enforcement stage.
//
// Thread Safety: Treated as immutable after load. Stages receive it by
// value at construction and never write to it.
type Thresholds struct {
	// ClaimVerified is the minimum best-chunk similarity for a claim
	// whose literal value appears in the chunk text to count as VERIFIED.
	ClaimVerified float64 `yaml:"claim_verified"`

	// ClaimVerifiedNumeric is the relaxed cutoff used when only the
	// numeric portion of the claim matches the chunk.
	ClaimVerifiedNumeric float64 `yaml:"claim_verified_numeric"`

	// ClaimPartial is the minimum similarity for PARTIAL. Below it a
	// claim is UNVERIFIED regardless of text overlap.
	ClaimPartial float64 `yaml:"claim_partial"`

	// ClaimBudget caps how many claims are verified per section; the
	// remainder is covered by rate extrapolation.
	ClaimBudget int `yaml:"claim_budget"`

	// ClaimEvidenceChunks is how many top chunks are inspected per claim.
	ClaimEvidenceChunks int `yaml:"claim_evidence_chunks"`

	// ClaimContextRadius is how many characters of surrounding text are
	// captured on each side of an extracted claim.
	ClaimContextRadius int `yaml:"claim_context_radius"`

	// AttributionFloor is the minimum chunk similarity for a chunk to
	// count as supporting a paragraph at all.
	AttributionFloor float64 `yaml:"attribution_floor"`

	// ParagraphGrounded and ParagraphPartial are the 0-100 attribution
	// score bands. Scores below ParagraphPartial are UNGROUNDED.
	ParagraphGrounded float64 `yaml:"paragraph_grounded"`
	ParagraphPartial  float64 `yaml:"paragraph_partial"`

	// ConfidenceHigh, ConfidenceMedium and ConfidenceLow are the 0-100
	// coverage score bands. Below ConfidenceLow is CRITICAL.
	ConfidenceHigh   float64 `yaml:"confidence_high"`
	ConfidenceMedium float64 `yaml:"confidence_medium"`
	ConfidenceLow    float64 `yaml:"confidence_low"`

	// SufficiencyMinChunks and SufficiencyMinSimilarity decide whether
	// retrieval found enough material to draft from at all.
	SufficiencyMinChunks     int     `yaml:"sufficiency_min_chunks"`
	SufficiencyMinSimilarity float64 `yaml:"sufficiency_min_similarity"`

	// RetrievalLimit is how many chunks one retrieval query returns.
	RetrievalLimit int `yaml:"retrieval_limit"`

	// WordLimitHard is the multiplier over a section's word limit that
	// escalates the finding from WARNING to ERROR.
	WordLimitHard float64 `yaml:"word_limit_hard"`
}

// DefaultThresholds returns the production threshold table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ClaimVerified:        0.65,
		ClaimVerifiedNumeric: 0.60,
		ClaimPartial:         0.50,
		ClaimBudget:          20,
		ClaimEvidenceChunks:  3,
		ClaimContextRadius:   40,

		AttributionFloor:  0.50,
		ParagraphGrounded: 60,
		ParagraphPartial:  40,

		ConfidenceHigh:   80,
		ConfidenceMedium: 50,
		ConfidenceLow:    30,

		SufficiencyMinChunks:     1,
		SufficiencyMinSimilarity: 0.50,

		RetrievalLimit: 10,

		WordLimitHard: 1.10,
	}
}

// Validate rejects tables that would make the pipeline misbehave, such
// as inverted bands or a zero claim budget.
func (t Thresholds) Validate() error {
	if t.ClaimVerified < t.ClaimPartial || t.ClaimVerifiedNumeric < t.ClaimPartial {
		return fmt.Errorf("claim verified cutoffs (%.2f, %.2f) must not be below the partial cutoff %.2f",
			t.ClaimVerified, t.ClaimVerifiedNumeric, t.ClaimPartial)
	}
	if t.ClaimPartial <= 0 || t.ClaimVerified > 1 {
		return fmt.Errorf("claim similarity cutoffs must stay in (0, 1], got partial=%.2f verified=%.2f",
			t.ClaimPartial, t.ClaimVerified)
	}
	if t.ClaimBudget < 1 {
		return fmt.Errorf("claim_budget must be at least 1, got %d", t.ClaimBudget)
	}
	if t.ClaimEvidenceChunks < 1 {
		return fmt.Errorf("claim_evidence_chunks must be at least 1, got %d", t.ClaimEvidenceChunks)
	}
	if t.ParagraphGrounded <= t.ParagraphPartial {
		return fmt.Errorf("paragraph bands inverted: grounded=%.0f partial=%.0f",
			t.ParagraphGrounded, t.ParagraphPartial)
	}
	if t.ConfidenceHigh <= t.ConfidenceMedium || t.ConfidenceMedium <= t.ConfidenceLow {
		return fmt.Errorf("confidence bands inverted: high=%.0f medium=%.0f low=%.0f",
			t.ConfidenceHigh, t.ConfidenceMedium, t.ConfidenceLow)
	}
	if t.SufficiencyMinChunks < 1 {
		return fmt.Errorf("sufficiency_min_chunks must be at least 1, got %d", t.SufficiencyMinChunks)
	}
	if t.RetrievalLimit < t.SufficiencyMinChunks {
		return fmt.Errorf("retrieval_limit %d is below sufficiency_min_chunks %d",
			t.RetrievalLimit, t.SufficiencyMinChunks)
	}
	if t.WordLimitHard < 1.0 {
		return fmt.Errorf("word_limit_hard must be >= 1.0, got %.2f", t.WordLimitHard)
	}
	return nil
}

// LoadThresholds reads a yaml threshold table, layering the file's values
// over the defaults so a partial file only overrides what it names.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("failed to read the threshold file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("failed to parse the threshold file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid threshold file %s: %w", path, err)
	}
	return t, nil
}
