// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package attribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/beaconhq/beacon/services/enforcer/config"
	"github.com/beaconhq/beacon/services/enforcer/datatypes"
	"github.com/beaconhq/beacon/services/enforcer/retrieval"
)

var attributorTracer = otel.Tracer("beaconhq.io/enforcer/attribution")

var paragraphSplitPattern = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs breaks section text on blank-line boundaries,
// trimming each paragraph and dropping empties.
func SplitParagraphs(text string) []string {
	parts := paragraphSplitPattern.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Attributor scores each paragraph of generated text against the
// organization's source corpus.
//
// Thread Safety: Safe for concurrent use across sections.
type Attributor struct {
	retriever  retrieval.Retriever
	thresholds config.Thresholds
	logger     *slog.Logger
}

// NewAttributor creates an attributor.
func NewAttributor(retriever retrieval.Retriever, thresholds config.Thresholds, logger *slog.Logger) (*Attributor, error) {
	if retriever == nil {
		return nil, errors.New("retriever must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Attributor{
		retriever:  retriever,
		thresholds: thresholds,
		logger:     logger,
	}, nil
}

// AttributeSection attributes every paragraph of the section text.
//
// Description:
//
//	Each paragraph retrieves its own supporting chunks and receives a
//	0-100 attribution score from the best similarity and the count of
//	chunks clearing the floor. A failed retrieval marks that paragraph
//	FAILED rather than aborting; FAILED is treated as ungrounded by
//	the injector (fail-closed).
func (a *Attributor) AttributeSection(ctx context.Context, organizationId, sectionId, text string) []datatypes.AttributedParagraph {
	ctx, span := attributorTracer.Start(ctx, "Attributor.AttributeSection")
	defer span.End()
	span.SetAttributes(attribute.String("section_id", sectionId))

	paragraphs := SplitParagraphs(text)
	out := make([]datatypes.AttributedParagraph, 0, len(paragraphs))
	for i, p := range paragraphs {
		out = append(out, a.attributeOne(ctx, organizationId, sectionId, i, p))
	}

	span.SetAttributes(attribute.Int("paragraph_count", len(out)))
	return out
}

func (a *Attributor) attributeOne(ctx context.Context, organizationId, sectionId string, index int, text string) datatypes.AttributedParagraph {
	paragraph := datatypes.AttributedParagraph{
		Id:        uuid.New().String(),
		SectionId: sectionId,
		Index:     index,
		Text:      text,
	}
	if ContainsPlaceholder(text) {
		paragraph.AddFlag(datatypes.FlagContainsPlaceholder)
	}

	chunks, err := a.retriever.Retrieve(ctx, retrieval.Query{
		OrganizationId: organizationId,
		Text:           text,
	})
	if err != nil {
		a.logger.Warn("paragraph attribution retrieval failed",
			"section_id", sectionId,
			"paragraph_index", index,
			"error", err)
		paragraph.Status = datatypes.ParagraphFailed
		paragraph.AddFlag(datatypes.FlagAttributionFailed)
		return paragraph
	}

	var best float64
	for _, c := range chunks {
		if c.SimilarityScore > best {
			best = c.SimilarityScore
		}
		if c.SimilarityScore >= a.thresholds.AttributionFloor {
			paragraph.SupportingChunks = append(paragraph.SupportingChunks, datatypes.ChunkAttribution{
				ChunkId:      c.Id,
				DocumentId:   c.DocumentId,
				DocumentName: c.DocumentName,
				Similarity:   c.SimilarityScore,
			})
		}
	}

	paragraph.AttributionScore = attributionScore(best, len(paragraph.SupportingChunks))
	switch {
	case paragraph.AttributionScore >= a.thresholds.ParagraphGrounded:
		paragraph.Status = datatypes.ParagraphGrounded
	case paragraph.AttributionScore >= a.thresholds.ParagraphPartial:
		paragraph.Status = datatypes.ParagraphPartial
		paragraph.AddFlag(datatypes.FlagLowConfidence)
	default:
		paragraph.Status = datatypes.ParagraphUngrounded
		paragraph.AddFlag(datatypes.FlagLowConfidence)
	}
	if len(chunks) == 0 {
		paragraph.AddFlag(datatypes.FlagNoSource)
	}
	return paragraph
}

// attributionScore combines the best similarity with the supporting
// chunk count: similarity carries 70 points, corroboration the rest,
// saturating at three supporting chunks.
func attributionScore(bestSimilarity float64, supportingCount int) float64 {
	corroboration := float64(supportingCount) / 3.0
	if corroboration > 1 {
		corroboration = 1
	}
	score := 100 * (0.7*bestSimilarity + 0.3*corroboration)
	if score > 100 {
		score = 100
	}
	return score
}

// DescribeParagraph produces a short human-readable summary for a
// placeholder replacing the paragraph.
func DescribeParagraph(text string) string {
	const max = 60
	snippet := strings.Join(strings.Fields(text), " ")
	if len(snippet) > max {
		snippet = snippet[:max]
		if i := strings.LastIndex(snippet, " "); i > 20 {
			snippet = snippet[:i]
		}
	}
	return fmt.Sprintf("unverified content removed, was about %s", snippet)
}
