// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// ParagraphStatus is the attribution outcome for one paragraph.
//
// State machine: {unattributed} -> GROUNDED | PARTIAL | UNGROUNDED |
// FAILED, terminal until the section is regenerated.
type ParagraphStatus string

const (
	// ParagraphGrounded means the paragraph is substantively supported
	// by retrieved source chunks.
	ParagraphGrounded ParagraphStatus = "GROUNDED"

	// ParagraphPartial means some support exists but it is weak.
	ParagraphPartial ParagraphStatus = "PARTIAL"

	// ParagraphUngrounded means no adequate support was found.
	ParagraphUngrounded ParagraphStatus = "UNGROUNDED"

	// ParagraphFailed means attribution itself failed; treated as
	// ungrounded for enforcement purposes (fail-closed).
	ParagraphFailed ParagraphStatus = "FAILED"
)

// ParagraphFlag is an orthogonal annotation on a paragraph. Flags drive
// UI treatment only; they never change the paragraph status.
type ParagraphFlag string

const (
	FlagNoSource            ParagraphFlag = "NO_SOURCE"
	FlagLowConfidence       ParagraphFlag = "LOW_CONFIDENCE"
	FlagContainsPlaceholder ParagraphFlag = "CONTAINS_PLACEHOLDER"
	FlagUserEdited          ParagraphFlag = "USER_EDITED"
	FlagAttributionFailed   ParagraphFlag = "ATTRIBUTION_FAILED"
)

// ChunkAttribution links a paragraph to one supporting chunk.
type ChunkAttribution struct {
	ChunkId      string  `json:"chunk_id"`
	DocumentId   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Similarity   float64 `json:"similarity"`
}

// AttributedParagraph maps one paragraph of generated text to its best
// supporting chunks. Regenerated on every generation pass, never mutated
// in place.
type AttributedParagraph struct {
	Id        string `json:"id"`
	SectionId string `json:"section_id"`

	// Index is the zero-based paragraph position within the section.
	Index int `json:"index"`

	Text string `json:"text"`

	SupportingChunks []ChunkAttribution `json:"supporting_chunks,omitempty"`

	// AttributionScore is a 0-100 composite of best similarity and
	// supporting-chunk count.
	AttributionScore float64 `json:"attribution_score"`

	Status ParagraphStatus `json:"status"`

	Flags []ParagraphFlag `json:"flags,omitempty"`
}

// HasFlag reports whether the paragraph carries the given flag.
func (p *AttributedParagraph) HasFlag(flag ParagraphFlag) bool {
	for _, f := range p.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag appends a flag if not already present.
func (p *AttributedParagraph) AddFlag(flag ParagraphFlag) {
	if !p.HasFlag(flag) {
		p.Flags = append(p.Flags, flag)
	}
}

// PlaceholderType categorizes why a placeholder was inserted.
type PlaceholderType string

const (
	// PlaceholderMissingData marks a spot where the source corpus has no
	// figure or fact to support what the model wanted to say.
	PlaceholderMissingData PlaceholderType = "MISSING_DATA"

	// PlaceholderUserInput marks content the organization must author
	// itself (no generation was attempted).
	PlaceholderUserInput PlaceholderType = "USER_INPUT_REQUIRED"

	// PlaceholderVerification marks generated content that could not be
	// verified against the corpus.
	PlaceholderVerification PlaceholderType = "VERIFICATION_NEEDED"
)

// Placeholder is a structured marker inserted in place of unverified or
// ungrounded text.
//
// Ids are unique within a section and the token embedded in the content
// is parseable back out by the fixed placeholder grammar (see the
// attribution package). Resolution happens only by explicit user action,
// outside this service.
type Placeholder struct {
	Id          string          `json:"id"`
	SectionId   string          `json:"section_id"`
	Type        PlaceholderType `json:"type"`
	Description string          `json:"description"`

	// Position is the byte offset of the token in the enforced content.
	Position int `json:"position"`

	Resolved        bool   `json:"resolved"`
	ResolvedContent string `json:"resolved_content,omitempty"`
}
