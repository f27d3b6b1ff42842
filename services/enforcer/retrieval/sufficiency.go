// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"fmt"

	"github.com/beaconhq/beacon/services/enforcer/config"
	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// SufficiencyDecision reports whether retrieval found enough material
// to ground a draft, and why not when it didn't.
type SufficiencyDecision struct {
	Sufficient bool `json:"sufficient"`

	// Reason is a short human-readable explanation, set only when
	// Sufficient is false. It feeds the enforcement banner verbatim.
	Reason string `json:"reason,omitempty"`

	// UsableChunks is how many chunks cleared the similarity floor.
	UsableChunks int `json:"usable_chunks"`

	// BestSimilarity is the top similarity seen, zero when no chunks.
	BestSimilarity float64 `json:"best_similarity"`
}

// EvaluateSufficiency decides whether the retrieved chunks can ground a
// draft for the requested section.
//
// Description:
//
//	A section is draftable when at least MinChunks chunks clear the
//	similarity floor. An insufficient result routes generation down the
//	placeholder-only path; it never silently falls back to the model's
//	general knowledge.
//
// Edge cases: an empty chunk slice is insufficient, not an error. The
// decision is pure; identical inputs always produce identical output.
func EvaluateSufficiency(chunks []datatypes.SourceChunk, t config.Thresholds) SufficiencyDecision {
	if len(chunks) == 0 {
		return SufficiencyDecision{
			Sufficient: false,
			Reason:     "no source documents found for this organization",
		}
	}

	var best float64
	usable := 0
	for _, c := range chunks {
		if c.SimilarityScore > best {
			best = c.SimilarityScore
		}
		if c.SimilarityScore >= t.SufficiencyMinSimilarity {
			usable++
		}
	}

	if usable < t.SufficiencyMinChunks {
		return SufficiencyDecision{
			Sufficient: false,
			Reason: fmt.Sprintf("retrieved documents are not relevant enough (best similarity %.2f, need %.2f)",
				best, t.SufficiencyMinSimilarity),
			UsableChunks:   usable,
			BestSimilarity: best,
		}
	}

	return SufficiencyDecision{
		Sufficient:     true,
		UsableChunks:   usable,
		BestSimilarity: best,
	}
}
