// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// ConfidenceLevel is the qualitative band for a 0-100 coverage score.
type ConfidenceLevel string

const (
	ConfidenceHigh     ConfidenceLevel = "HIGH"
	ConfidenceMedium   ConfidenceLevel = "MEDIUM"
	ConfidenceLow      ConfidenceLevel = "LOW"
	ConfidenceCritical ConfidenceLevel = "CRITICAL"
)

// SectionCoverage is the derived grounding aggregate for one section.
// Recomputed on demand; never hand-edited.
type SectionCoverage struct {
	SectionId string `json:"section_id"`

	// Score is 100 * (grounded + 0.5*partial) / total paragraphs.
	// Zero when the section has no paragraphs; Empty distinguishes
	// "no content" from "fully ungrounded".
	Score      float64         `json:"score"`
	Confidence ConfidenceLevel `json:"confidence"`
	Empty      bool            `json:"empty"`

	Grounded   int `json:"grounded"`
	Partial    int `json:"partial"`
	Ungrounded int `json:"ungrounded"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// ProposalCoverage aggregates section coverage for one proposal.
type ProposalCoverage struct {
	ProposalId string `json:"proposal_id"`

	// Score is the mean of section scores for sections with content.
	Score      float64         `json:"score"`
	Confidence ConfidenceLevel `json:"confidence"`

	Sections      []SectionCoverage `json:"sections"`
	EmptySections []string          `json:"empty_sections,omitempty"`
}

// IssueSeverity ranks compliance findings.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "ERROR"
	SeverityWarning IssueSeverity = "WARNING"
	SeverityInfo    IssueSeverity = "INFO"
)

// IssueCode is a machine-readable compliance issue identifier.
type IssueCode string

const (
	IssueWordLimitExceeded     IssueCode = "WORD_LIMIT_EXCEEDED"
	IssueWordLimitOver         IssueCode = "WORD_LIMIT_OVER"
	IssueCharLimitExceeded     IssueCode = "CHAR_LIMIT_EXCEEDED"
	IssueRequiredSectionEmpty  IssueCode = "REQUIRED_SECTION_EMPTY"
	IssueUnresolvedPlaceholder IssueCode = "UNRESOLVED_PLACEHOLDER"
	IssueGenericKnowledge      IssueCode = "GENERIC_KNOWLEDGE_USED"
	IssueUnresolvedAmbiguity   IssueCode = "UNRESOLVED_AMBIGUITY"
	IssueChecklistIncomplete   IssueCode = "CHECKLIST_INCOMPLETE"
	IssueEnforcementFailure    IssueCode = "ENFORCEMENT_FAILURE"
)

// ComplianceIssue is one finding from the compliance checker.
type ComplianceIssue struct {
	Code     IssueCode     `json:"code"`
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`

	// SectionId is empty for proposal-level issues.
	SectionId string `json:"section_id,omitempty"`
}

// ChecklistItemStatus reports one funder checklist item.
type ChecklistItemStatus struct {
	ItemId   string `json:"item_id"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Complete bool   `json:"complete"`

	// MappedSections are the section ids that can satisfy this item.
	MappedSections []string `json:"mapped_sections,omitempty"`
}

// ComplianceStatus is a derived snapshot of one proposal at one point in
// time. It is cached for the polling UI, never persisted as the source
// of truth.
type ComplianceStatus struct {
	ProposalId string `json:"proposal_id"`

	Issues    []ComplianceIssue     `json:"issues,omitempty"`
	Checklist []ChecklistItemStatus `json:"checklist,omitempty"`

	ErrorCount   int `json:"error_count"`
	WarningCount int `json:"warning_count"`

	CheckedAt int64 `json:"checked_at"`
}

// HasBlockingIssues reports whether any ERROR-severity finding exists.
func (s *ComplianceStatus) HasBlockingIssues() bool {
	return s.ErrorCount > 0
}
