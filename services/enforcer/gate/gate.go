// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gate combines coverage and compliance results into the final
// export decision and its audit trail.
package gate

import (
	"time"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// Auditor receives every gate decision for the append-only audit log.
// Implementations must not mutate the record.
type Auditor interface {
	RecordDecision(record datatypes.ExportAuditRecord) error
}

// Evaluator computes export gate decisions.
//
// Decisions are recomputed on demand from current proposal state and
// never persisted as mutable state; only audit records are stored.
//
// Thread Safety: Stateless; safe for concurrent use.
type Evaluator struct{}

// NewEvaluator creates an evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate derives the ALLOW/WARN/BLOCK decision.
//
// Description:
//
//	Every ERROR-severity compliance finding becomes a block; every
//	WARNING becomes a warning. Invariant: Allowed is true exactly when
//	there are no blocks, for every input including the empty proposal.
//	A WARN decision requires a signed attestation before export
//	because warned content may carry unverified statements.
func (e *Evaluator) Evaluate(compliance datatypes.ComplianceStatus, coverage datatypes.ProposalCoverage) datatypes.ExportGateResult {
	result := datatypes.ExportGateResult{
		ProposalId:        compliance.ProposalId,
		OverallScore:      coverage.Score,
		OverallConfidence: coverage.Confidence,
		EvaluatedAt:       time.Now().UnixMilli(),
	}

	for _, issue := range compliance.Issues {
		switch issue.Severity {
		case datatypes.SeverityError:
			result.Blocks = append(result.Blocks, datatypes.ExportBlock{
				Code:      issue.Code,
				Message:   issue.Message,
				SectionId: issue.SectionId,
			})
		case datatypes.SeverityWarning:
			result.Warnings = append(result.Warnings, datatypes.ExportWarning{
				Code:      issue.Code,
				Message:   issue.Message,
				SectionId: issue.SectionId,
			})
		}
	}

	result.Allowed = len(result.Blocks) == 0
	switch {
	case !result.Allowed:
		result.Decision = datatypes.GateBlock
	case len(result.Warnings) > 0:
		result.Decision = datatypes.GateWarn
		result.AttestationRequired = true
	default:
		result.Decision = datatypes.GateAllow
	}
	return result
}

// AuditRecord builds the immutable log entry for one decision.
func AuditRecord(result datatypes.ExportGateResult) datatypes.ExportAuditRecord {
	return datatypes.ExportAuditRecord{
		Id:         uuid.New().String(),
		ProposalId: result.ProposalId,
		Decision:   result.Decision,
		Allowed:    result.Allowed,
		Snapshot:   snapshotOf(result),
		RecordedAt: time.Now().UnixMilli(),
	}
}

// AttestationRecord builds the follow-up log entry written when a human
// signs off on a WARN decision. It never replaces the original record;
// an override is always a second entry.
func AttestationRecord(result datatypes.ExportGateResult, attestationText, attestedBy string) datatypes.ExportAuditRecord {
	now := time.Now().UnixMilli()
	return datatypes.ExportAuditRecord{
		Id:              uuid.New().String(),
		ProposalId:      result.ProposalId,
		Decision:        result.Decision,
		Allowed:         result.Allowed,
		Snapshot:        snapshotOf(result),
		AttestationText: attestationText,
		AttestedBy:      attestedBy,
		AttestedAt:      now,
		RecordedAt:      now,
	}
}

func snapshotOf(result datatypes.ExportGateResult) datatypes.GateSnapshot {
	return datatypes.GateSnapshot{
		OverallScore:      result.OverallScore,
		OverallConfidence: result.OverallConfidence,
		BlockCount:        len(result.Blocks),
		WarningCount:      len(result.Warnings),
		Blocks:            result.Blocks,
		Warnings:          result.Warnings,
	}
}
