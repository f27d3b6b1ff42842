// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// GateDecision is the outcome of an export gate evaluation.
//
// State machine: {pending} -> ALLOW | WARN | BLOCK, recomputed on demand.
// Only audit records are persisted, never the decision itself.
type GateDecision string

const (
	GateAllow GateDecision = "ALLOW"
	GateWarn  GateDecision = "WARN"
	GateBlock GateDecision = "BLOCK"
)

// ExportBlock is one blocking reason. Any block forces decision BLOCK.
type ExportBlock struct {
	Code      IssueCode `json:"code"`
	Message   string    `json:"message"`
	SectionId string    `json:"section_id,omitempty"`
}

// ExportWarning is a non-blocking advisory attached to the decision.
type ExportWarning struct {
	Code      IssueCode `json:"code"`
	Message   string    `json:"message"`
	SectionId string    `json:"section_id,omitempty"`
}

// ExportGateResult is the combined ALLOW/WARN/BLOCK decision.
//
// Invariant: Allowed == (len(Blocks) == 0), for every input including the
// empty proposal.
type ExportGateResult struct {
	ProposalId string `json:"proposal_id"`

	Allowed  bool         `json:"allowed"`
	Decision GateDecision `json:"decision"`

	Blocks   []ExportBlock   `json:"blocks,omitempty"`
	Warnings []ExportWarning `json:"warnings,omitempty"`

	// AttestationRequired is set when export is allowed only under a
	// signed human attestation (WARN decisions with unverified content).
	AttestationRequired bool `json:"attestation_required"`

	OverallScore      float64         `json:"overall_score"`
	OverallConfidence ConfidenceLevel `json:"overall_confidence"`

	EvaluatedAt int64 `json:"evaluated_at"`
}

// ExportAuditRecord is an immutable, append-only log entry for one gate
// decision. Records are written to the ledger and never updated; an
// override produces a second record carrying the attestation.
type ExportAuditRecord struct {
	Id         string `json:"id"`
	ProposalId string `json:"proposal_id"`

	Decision GateDecision `json:"decision"`
	Allowed  bool         `json:"allowed"`

	// Snapshot captures the enforcement state at decision time.
	Snapshot GateSnapshot `json:"snapshot"`

	// Attestation fields are populated only on override records.
	AttestationText string `json:"attestation_text,omitempty"`
	AttestedBy      string `json:"attested_by,omitempty"`
	AttestedAt      int64  `json:"attested_at,omitempty"`

	RecordedAt int64 `json:"recorded_at"`
}

// GateSnapshot is the enforcement state embedded in an audit record.
type GateSnapshot struct {
	OverallScore      float64         `json:"overall_score"`
	OverallConfidence ConfidenceLevel `json:"overall_confidence"`
	BlockCount        int             `json:"block_count"`
	WarningCount      int             `json:"warning_count"`
	Blocks            []ExportBlock   `json:"blocks,omitempty"`
	Warnings          []ExportWarning `json:"warnings,omitempty"`
}
