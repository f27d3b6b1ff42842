// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package coverage aggregates paragraph attribution results into
// section and proposal grounding scores.
package coverage

import (
	"github.com/beaconhq/beacon/services/enforcer/config"
	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// ConfidenceForScore maps a 0-100 score onto its confidence band.
// Band boundaries are inclusive on the lower bound.
func ConfidenceForScore(score float64, t config.Thresholds) datatypes.ConfidenceLevel {
	switch {
	case score >= t.ConfidenceHigh:
		return datatypes.ConfidenceHigh
	case score >= t.ConfidenceMedium:
		return datatypes.ConfidenceMedium
	case score >= t.ConfidenceLow:
		return datatypes.ConfidenceLow
	default:
		return datatypes.ConfidenceCritical
	}
}

// ScoreSection computes one section's coverage from its attributed
// paragraphs.
//
// Description:
//
//	Grounded paragraphs count fully, partial ones half, ungrounded and
//	failed not at all: 100 * (grounded + 0.5*partial) / total. A
//	section with no paragraphs scores zero and is reported Empty
//	rather than treated as fully ungrounded.
func ScoreSection(sectionId string, paragraphs []datatypes.AttributedParagraph, t config.Thresholds) datatypes.SectionCoverage {
	sc := datatypes.SectionCoverage{
		SectionId: sectionId,
		Total:     len(paragraphs),
	}
	if len(paragraphs) == 0 {
		sc.Empty = true
		sc.Confidence = ConfidenceForScore(0, t)
		return sc
	}

	for _, p := range paragraphs {
		switch p.Status {
		case datatypes.ParagraphGrounded:
			sc.Grounded++
		case datatypes.ParagraphPartial:
			sc.Partial++
		case datatypes.ParagraphFailed:
			sc.Failed++
		default:
			sc.Ungrounded++
		}
	}

	sc.Score = 100 * (float64(sc.Grounded) + 0.5*float64(sc.Partial)) / float64(sc.Total)
	sc.Confidence = ConfidenceForScore(sc.Score, t)
	return sc
}

// ScoreProposal aggregates section coverage into the proposal score:
// the mean over sections with content. Empty sections are listed but
// excluded from the mean.
func ScoreProposal(proposalId string, sections []datatypes.SectionCoverage, t config.Thresholds) datatypes.ProposalCoverage {
	pc := datatypes.ProposalCoverage{
		ProposalId: proposalId,
		Sections:   sections,
	}

	var sum float64
	scored := 0
	for _, s := range sections {
		if s.Empty {
			pc.EmptySections = append(pc.EmptySections, s.SectionId)
			continue
		}
		sum += s.Score
		scored++
	}
	if scored > 0 {
		pc.Score = sum / float64(scored)
	}
	pc.Confidence = ConfidenceForScore(pc.Score, t)
	return pc
}
