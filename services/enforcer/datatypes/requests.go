// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// validate is the shared validator instance for request structs.
var validate = validator.New()

// GenerationContext scopes a generation request to an organization,
// proposal and funder.
type GenerationContext struct {
	OrganizationId string        `json:"organization_id" validate:"required"`
	ProposalId     string        `json:"proposal_id" validate:"required"`
	SectionId      string        `json:"section_id"`
	FunderName     string        `json:"funder_name"`
	ProgramTitle   string        `json:"program_title"`
	FundingAmount  *FundingRange `json:"funding_amount,omitempty"`
}

// GenerationRequest asks the pipeline to draft one proposal section.
//
// ExistingContent, when present, turns the request into a revision pass:
// the draft generator is asked to improve the existing text rather than
// write from scratch. CustomInstructions are user-supplied and pass
// through the policy scanner before reaching the prompt.
type GenerationRequest struct {
	Id          string `json:"id"`
	SectionName string `json:"section_name" binding:"required" validate:"required"`
	Description string `json:"description"`

	WordLimit int `json:"word_limit" validate:"gte=0"`
	CharLimit int `json:"char_limit" validate:"gte=0"`

	Context GenerationContext `json:"context" validate:"required"`

	ExistingContent    string `json:"existing_content"`
	CustomInstructions string `json:"custom_instructions"`

	Timestamp int64 `json:"timestamp"`
}

// EnsureDefaults populates the request id and timestamp when absent.
// The request is modified in place.
func (r *GenerationRequest) EnsureDefaults() {
	if r.Id == "" {
		r.Id = uuid.New().String()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// EnsureSectionId returns the section id, generating one for brand-new
// sections. The request is modified in place.
func (r *GenerationRequest) EnsureSectionId() string {
	if r.Context.SectionId == "" {
		r.Context.SectionId = uuid.New().String()
	}
	return r.Context.SectionId
}

// Validate checks the request against its struct tags plus the rules the
// tags cannot express. Validation failures are surfaced synchronously to
// the caller before the pipeline starts.
func (r *GenerationRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid generation request: %w", err)
	}
	if r.WordLimit > 0 && r.CharLimit > 0 && r.CharLimit < r.WordLimit {
		return fmt.Errorf("char_limit %d is smaller than word_limit %d", r.CharLimit, r.WordLimit)
	}
	return nil
}

// GenerationMetadata is the single record persisted per generation
// attempt. One upsert at the end of the pipeline; partial work from an
// abandoned request is never written.
type GenerationMetadata struct {
	SectionId      string `json:"section_id"`
	OrganizationId string `json:"organization_id"`

	RetrievedChunkCount  int  `json:"retrieved_chunk_count"`
	UsedGenericKnowledge bool `json:"used_generic_knowledge"`

	EnforcementApplied      bool `json:"enforcement_applied"`
	ClaimsReplaced          int  `json:"claims_replaced"`
	ParagraphsPlaceholdered int  `json:"paragraphs_placeholdered"`

	PolicyOverride bool `json:"policy_override"`

	RawGeneration      string `json:"raw_generation,omitempty"`
	EnforcedGeneration string `json:"enforced_generation"`

	RecordedAt int64 `json:"recorded_at"`
}

// SectionContent is the stored state of one proposal section as seen by
// the compliance checker. Owned by the proposal store collaborator;
// read-only here.
type SectionContent struct {
	SectionId string `json:"section_id"`
	Name      string `json:"name"`
	Content   string `json:"content"`

	Required  bool `json:"required"`
	WordLimit int  `json:"word_limit"`
	CharLimit int  `json:"char_limit"`

	// UsedGenericKnowledge marks a section generated down the
	// sufficiency-gate placeholder-only path.
	UsedGenericKnowledge bool `json:"used_generic_knowledge"`

	Placeholders []Placeholder `json:"placeholders,omitempty"`
}

// AmbiguityFlag records an unresolved question raised during drafting.
type AmbiguityFlag struct {
	Id                string `json:"id"`
	Description       string `json:"description"`
	RequiresUserInput bool   `json:"requires_user_input"`
	Resolved          bool   `json:"resolved"`
}

// ChecklistItem is one funder requirement mapped to proposal sections.
type ChecklistItem struct {
	Id             string   `json:"id"`
	Label          string   `json:"label"`
	Required       bool     `json:"required"`
	MappedSections []string `json:"mapped_sections,omitempty"`
}

// ProposalContent is the full proposal state the compliance checker and
// export gate evaluate.
type ProposalContent struct {
	ProposalId     string `json:"proposal_id"`
	OrganizationId string `json:"organization_id"`

	Sections       []SectionContent `json:"sections"`
	AmbiguityFlags []AmbiguityFlag  `json:"ambiguity_flags,omitempty"`
	Checklist      []ChecklistItem  `json:"checklist,omitempty"`

	// EnforcementFailure is the persistent fail-closed flag set when the
	// enforcement computation itself failed for any section. Blocking
	// until manually cleared.
	EnforcementFailure bool `json:"enforcement_failure"`
}
