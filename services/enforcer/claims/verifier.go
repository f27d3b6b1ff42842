// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package claims

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/beaconhq/beacon/services/enforcer/config"
	"github.com/beaconhq/beacon/services/enforcer/datatypes"
	"github.com/beaconhq/beacon/services/enforcer/retrieval"
)

var verifierTracer = otel.Tracer("beaconhq.io/enforcer/claims")

var (
	numericPortionPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	nonAlnumPattern       = regexp.MustCompile(`[^a-z0-9]+`)
)

// Verifier checks extracted claims against the source corpus.
//
// Claims are processed sequentially so the sampled verification-rate
// estimate is deterministic and order-stable.
//
// Thread Safety: Safe for concurrent use across sections.
type Verifier struct {
	retriever  retrieval.Retriever
	thresholds config.Thresholds
	logger     *slog.Logger
}

// NewVerifier creates a verifier.
func NewVerifier(retriever retrieval.Retriever, thresholds config.Thresholds, logger *slog.Logger) (*Verifier, error) {
	if retriever == nil {
		return nil, errors.New("retriever must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		retriever:  retriever,
		thresholds: thresholds,
		logger:     logger,
	}, nil
}

// VerifySection verifies the claims extracted from one section.
//
// Description:
//
//	At most ClaimBudget claims are verified, in extraction order. Each
//	claim re-queries the retriever with its value plus context and is
//	classified against the top chunks. A failed retrieval marks that
//	claim UNVERIFIED and moves on; nothing here aborts the pipeline.
//
//	When the budget truncates the claim list, the verification rate
//	observed on the sample is extrapolated across the full set. The
//	summary marks this with Sampled=true; the estimate is a cost
//	control approximation, not a measurement.
//
// Outputs:
//
//	[]datatypes.VerifiedClaim - One result per checked claim.
//	datatypes.ClaimVerificationSummary - Aggregate statistics.
func (v *Verifier) VerifySection(ctx context.Context, organizationId string, extracted []datatypes.ExtractedClaim) ([]datatypes.VerifiedClaim, datatypes.ClaimVerificationSummary) {
	ctx, span := verifierTracer.Start(ctx, "Verifier.VerifySection")
	defer span.End()
	span.SetAttributes(
		attribute.String("organization_id", organizationId),
		attribute.Int("claims_extracted", len(extracted)),
	)

	budget := v.thresholds.ClaimBudget
	toCheck := extracted
	if len(toCheck) > budget {
		toCheck = toCheck[:budget]
	}

	results := make([]datatypes.VerifiedClaim, 0, len(toCheck))
	summary := datatypes.ClaimVerificationSummary{
		TotalExtracted: len(extracted),
		Checked:        len(toCheck),
		Sampled:        len(extracted) > len(toCheck),
	}

	for _, claim := range toCheck {
		verified := v.verifyOne(ctx, organizationId, claim)
		switch verified.Status {
		case datatypes.ClaimVerified:
			summary.Verified++
		case datatypes.ClaimPartial:
			summary.Partial++
		default:
			summary.Unverified++
		}
		results = append(results, verified)
	}

	if summary.Checked > 0 {
		summary.VerificationRate = float64(summary.Verified) / float64(summary.Checked)
	}
	if summary.Sampled {
		summary.EstimatedVerified = int(math.Round(summary.VerificationRate * float64(summary.TotalExtracted)))
	} else {
		summary.EstimatedVerified = summary.Verified
	}

	span.SetAttributes(
		attribute.Int("claims_verified", summary.Verified),
		attribute.Int("claims_unverified", summary.Unverified),
		attribute.Bool("sampled", summary.Sampled),
	)
	return results, summary
}

// verifyOne classifies a single claim. Any retrieval failure resolves
// to UNVERIFIED (fail-closed).
func (v *Verifier) verifyOne(ctx context.Context, organizationId string, claim datatypes.ExtractedClaim) datatypes.VerifiedClaim {
	result := datatypes.VerifiedClaim{
		ExtractedClaim: claim,
		Status:         datatypes.ClaimUnverified,
	}

	chunks, err := v.retriever.Retrieve(ctx, retrieval.Query{
		OrganizationId: organizationId,
		Text:           claim.Value + " " + claim.Context,
		Limit:          v.thresholds.ClaimEvidenceChunks,
	})
	if err != nil {
		v.logger.Warn("claim verification retrieval failed, marking unverified",
			"claim_id", claim.Id,
			"claim_type", claim.Type,
			"error", err)
		return result
	}
	if len(chunks) == 0 {
		return result
	}

	best := chunks[0]
	similarity := best.SimilarityScore

	strippedValue := stripForMatch(claim.Value)
	literalMatch := strippedValue != "" && strings.Contains(stripForMatch(best.Text), strippedValue)

	// A figure only counts as matched when the chunk containing it
	// clears the numeric similarity cutoff itself; a number sitting in a
	// barely related chunk is not evidence.
	numeric := numericPortion(claim.Value)
	numericMatch := false
	var numericChunk datatypes.SourceChunk
	if numeric != "" {
		for _, c := range chunks {
			if c.SimilarityScore < v.thresholds.ClaimVerifiedNumeric {
				continue
			}
			if containsNumber(c.Text, numeric) {
				numericMatch = true
				numericChunk = c
				break
			}
		}
	}

	switch {
	case literalMatch && similarity >= v.thresholds.ClaimVerified:
		result.Status = datatypes.ClaimVerified
		result.Evidence = []datatypes.ClaimEvidence{evidenceFrom(best, claim.Value)}

	case numericMatch:
		result.Status = datatypes.ClaimVerified
		result.Evidence = []datatypes.ClaimEvidence{evidenceFrom(numericChunk, numeric)}

	// A claim carrying a figure is never PARTIAL: either a qualifying
	// chunk contains the figure and it is VERIFIED above, or similarity
	// alone cannot vouch for it.
	case numeric == "" && similarity >= v.thresholds.ClaimPartial:
		result.Status = datatypes.ClaimPartial
		result.Evidence = []datatypes.ClaimEvidence{evidenceFrom(best, "")}
	}

	return result
}

func evidenceFrom(chunk datatypes.SourceChunk, matched string) datatypes.ClaimEvidence {
	return datatypes.ClaimEvidence{
		ChunkId:      chunk.Id,
		DocumentId:   chunk.DocumentId,
		DocumentName: chunk.DocumentName,
		MatchedText:  matched,
		Similarity:   chunk.SimilarityScore,
	}
}

// stripForMatch lowercases and removes everything but letters and
// digits, so "1,200 families." matches "1200families".
func stripForMatch(s string) string {
	return nonAlnumPattern.ReplaceAllString(strings.ToLower(s), "")
}

// numericPortion returns the first number in the value, or empty when
// the claim carries no figure.
func numericPortion(s string) string {
	return numericPortionPattern.FindString(s)
}

// containsNumber checks for the figure in the chunk text, tolerating
// thousands separators on either side.
func containsNumber(text, number string) bool {
	if strings.Contains(text, number) {
		return true
	}
	bare := strings.ReplaceAll(number, ",", "")
	return strings.Contains(strings.ReplaceAll(text, ",", ""), bare)
}
