// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package enforcer wires the grounded generation pipeline: retrieval,
// sufficiency gating, drafting, claim verification, paragraph
// attribution, placeholder injection, coverage scoring, compliance
// checking, and the export gate.
package enforcer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/beaconhq/beacon/services/enforcer/attribution"
	"github.com/beaconhq/beacon/services/enforcer/claims"
	"github.com/beaconhq/beacon/services/enforcer/compliance"
	"github.com/beaconhq/beacon/services/enforcer/config"
	"github.com/beaconhq/beacon/services/enforcer/coverage"
	"github.com/beaconhq/beacon/services/enforcer/datatypes"
	"github.com/beaconhq/beacon/services/enforcer/gate"
	"github.com/beaconhq/beacon/services/enforcer/generation"
	"github.com/beaconhq/beacon/services/enforcer/retrieval"
	"github.com/beaconhq/beacon/services/policy"
)

var serviceTracer = otel.Tracer("beaconhq.io/enforcer")

// Banner text prepended to generation responses. The enforcement banner
// is emitted before any content so a client streaming the response sees
// the disclosure first.
const (
	enforcementBannerFormat = "[BEACON ENFORCEMENT: %s]"
	appliedBannerFormat     = "[BEACON ENFORCEMENT APPLIED: %d claims replaced, %d paragraphs placeholdered]"
	warningBanner           = "[BEACON WARNING: automated fact verification did not run for this content, review every figure before use]"
	providerFailureBanner   = "[BEACON WARNING: the drafting model did not respond, no draft was produced for this section]"
)

// ErrWarnRequired is returned by Attest when the current gate decision
// does not call for an attestation.
var ErrWarnRequired = errors.New("attestation applies only to a WARN decision")

// OrganizationReader loads organization profiles. Owned by the accounts
// service; read-only here.
type OrganizationReader interface {
	GetOrganization(ctx context.Context, organizationId string) (datatypes.OrganizationProfile, error)
}

// ProposalReader loads current proposal state. Owned by the proposal
// store; read-only here.
type ProposalReader interface {
	GetProposal(ctx context.Context, proposalId string) (datatypes.ProposalContent, error)
}

// GenerationRecorder persists per-attempt metadata and the fail-closed
// enforcement flag. The ledger satisfies this.
type GenerationRecorder interface {
	RecordGeneration(record datatypes.GenerationMetadata) error
	SetEnforcementFailure(proposalId string, failed bool) error
	EnforcementFailed(proposalId string) (bool, error)
}

// GenerationResult is the full outcome of one generation pass.
//
// Banner, when non-empty, must be shown to the user before Content.
type GenerationResult struct {
	Banner  string `json:"banner,omitempty"`
	Content string `json:"content"`

	Claims       []datatypes.VerifiedClaim          `json:"claims,omitempty"`
	ClaimSummary datatypes.ClaimVerificationSummary `json:"claim_summary"`
	Paragraphs   []datatypes.AttributedParagraph    `json:"paragraphs,omitempty"`
	Placeholders []datatypes.Placeholder            `json:"placeholders,omitempty"`
	Coverage     datatypes.SectionCoverage          `json:"coverage"`
	Metadata     datatypes.GenerationMetadata       `json:"metadata"`
}

// Service runs the enforcement pipeline end to end.
//
// Thread Safety: Safe for concurrent use after construction.
type Service struct {
	thresholds config.Thresholds

	retriever  retrieval.Retriever
	generator  *generation.DraftGenerator
	extractor  *claims.Extractor
	verifier   *claims.Verifier
	attributor *attribution.Attributor
	injector   *attribution.Injector
	scanner    *policy.Engine
	checker    *compliance.Checker
	evaluator  *gate.Evaluator

	orgs      OrganizationReader
	proposals ProposalReader
	recorder  GenerationRecorder
	auditor   gate.Auditor

	snapshots *compliance.SnapshotCache
	decisions *gate.ResultCache
	logger    *slog.Logger
}

// ServiceDeps collects the collaborators Service needs.
type ServiceDeps struct {
	Thresholds config.Thresholds

	Retriever retrieval.Retriever
	Generator *generation.DraftGenerator
	Scanner   *policy.Engine

	Organizations OrganizationReader
	Proposals     ProposalReader
	Recorder      GenerationRecorder
	Auditor       gate.Auditor

	Snapshots *compliance.SnapshotCache
	Decisions *gate.ResultCache
	Logger    *slog.Logger
}

// NewService creates the pipeline service. The verification stages are
// built internally from the shared thresholds so every stage sees the
// same numbers.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Retriever == nil {
		return nil, errors.New("retriever must not be nil")
	}
	if deps.Generator == nil {
		return nil, errors.New("generator must not be nil")
	}
	if deps.Scanner == nil {
		return nil, errors.New("policy scanner must not be nil")
	}
	if deps.Organizations == nil {
		return nil, errors.New("organization reader must not be nil")
	}
	if deps.Proposals == nil {
		return nil, errors.New("proposal reader must not be nil")
	}
	if deps.Recorder == nil {
		return nil, errors.New("generation recorder must not be nil")
	}
	if deps.Auditor == nil {
		return nil, errors.New("auditor must not be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	verifier, err := claims.NewVerifier(deps.Retriever, deps.Thresholds, deps.Logger)
	if err != nil {
		return nil, err
	}
	attributor, err := attribution.NewAttributor(deps.Retriever, deps.Thresholds, deps.Logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		thresholds: deps.Thresholds,
		retriever:  deps.Retriever,
		generator:  deps.Generator,
		extractor:  claims.NewExtractor(deps.Thresholds.ClaimContextRadius),
		verifier:   verifier,
		attributor: attributor,
		injector:   attribution.NewInjector(),
		scanner:    deps.Scanner,
		checker:    compliance.NewChecker(deps.Thresholds),
		evaluator:  gate.NewEvaluator(),
		orgs:       deps.Organizations,
		proposals:  deps.Proposals,
		recorder:   deps.Recorder,
		auditor:    deps.Auditor,
		snapshots:  deps.Snapshots,
		decisions:  deps.Decisions,
		logger:     deps.Logger,
	}, nil
}

// GenerateSection runs one section through the full pipeline.
//
// Description:
//
//	Retrieval and the sufficiency gate run before any model call; an
//	insufficient corpus produces placeholder-only content and an
//	enforcement banner, never a draft from the model's general
//	knowledge. A draft that does arrive is verified claim by claim and
//	paragraph by paragraph, then rewritten so nothing unsupported
//	survives. If the verification stages themselves fail, the raw
//	draft is returned behind a warning banner and the proposal's
//	persistent enforcement-failure flag is set. A provider that fails
//	to produce a draft resolves the same way, with placeholder content
//	standing in for the draft that never arrived.
//
//	Exactly one metadata record is upserted per completed attempt. A
//	request abandoned by cancellation writes nothing.
func (s *Service) GenerateSection(ctx context.Context, req datatypes.GenerationRequest) (GenerationResult, error) {
	ctx, span := serviceTracer.Start(ctx, "Service.GenerateSection")
	defer span.End()

	if err := req.Validate(); err != nil {
		return GenerationResult{}, err
	}
	req.EnsureDefaults()
	sectionId := req.EnsureSectionId()
	span.SetAttributes(
		attribute.String("organization_id", req.Context.OrganizationId),
		attribute.String("section_id", sectionId),
	)

	org, err := s.orgs.GetOrganization(ctx, req.Context.OrganizationId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "organization lookup failed")
		return GenerationResult{}, fmt.Errorf("failed to load organization %s: %w", req.Context.OrganizationId, err)
	}

	scan := s.scanner.ScanInstructions(req.CustomInstructions)
	if len(scan.Findings) > 0 {
		s.logger.Warn("custom instructions sanitized",
			"section_id", sectionId,
			"findings", len(scan.Findings),
			"override_attempted", scan.OverrideAttempted)
	}

	chunks, decision := s.retrieveAndGate(ctx, req)
	if !decision.Sufficient {
		return s.placeholderOnlyResult(ctx, req, sectionId, decision, scan.OverrideAttempted)
	}

	draft, err := s.generator.Generate(ctx, req, org, chunks, scan.Sanitized)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "draft generation failed")
		// An abandoned request writes nothing; everything else fails
		// closed with readable placeholder content, never a blank
		// section or an opaque error.
		if ctx.Err() != nil {
			return GenerationResult{}, fmt.Errorf("draft generation failed: %w", err)
		}
		return s.providerFailureResult(ctx, req, sectionId, len(chunks), scan.OverrideAttempted, err)
	}

	result, enforceErr := s.enforce(ctx, req, sectionId, draft)
	if enforceErr != nil {
		return s.failOpenResult(ctx, req, sectionId, draft, len(chunks), scan.OverrideAttempted, enforceErr)
	}

	result.Metadata = datatypes.GenerationMetadata{
		SectionId:               sectionId,
		OrganizationId:          req.Context.OrganizationId,
		RetrievedChunkCount:     len(chunks),
		EnforcementApplied:      result.Metadata.EnforcementApplied,
		ClaimsReplaced:          result.Metadata.ClaimsReplaced,
		ParagraphsPlaceholdered: result.Metadata.ParagraphsPlaceholdered,
		PolicyOverride:          scan.OverrideAttempted,
		RawGeneration:           draft,
		EnforcedGeneration:      result.Content,
	}
	if result.Metadata.EnforcementApplied {
		result.Banner = fmt.Sprintf(appliedBannerFormat,
			result.Metadata.ClaimsReplaced, result.Metadata.ParagraphsPlaceholdered)
	}

	if err := s.record(ctx, req.Context.ProposalId, result.Metadata); err != nil {
		return GenerationResult{}, err
	}
	return result, nil
}

// retrieveAndGate fetches chunks and evaluates sufficiency. A retrieval
// failure is treated as an insufficient corpus: with no searchable
// sources there is nothing to ground a draft on.
func (s *Service) retrieveAndGate(ctx context.Context, req datatypes.GenerationRequest) ([]datatypes.SourceChunk, retrieval.SufficiencyDecision) {
	chunks, err := s.retriever.Retrieve(ctx, retrieval.Query{
		OrganizationId: req.Context.OrganizationId,
		Text:           req.SectionName + " " + req.Description,
		Limit:          s.thresholds.RetrievalLimit,
	})
	if err != nil {
		s.logger.Error("retrieval failed before drafting",
			"section_id", req.Context.SectionId,
			"error", err)
		return nil, retrieval.SufficiencyDecision{
			Sufficient: false,
			Reason:     "source documents could not be searched",
		}
	}
	return chunks, retrieval.EvaluateSufficiency(chunks, s.thresholds)
}

// placeholderOnlyResult handles the insufficient-sources branch.
func (s *Service) placeholderOnlyResult(ctx context.Context, req datatypes.GenerationRequest, sectionId string, decision retrieval.SufficiencyDecision, policyOverride bool) (GenerationResult, error) {
	injection := s.injector.PlaceholderOnlyContent(sectionId, req.SectionName)

	result := GenerationResult{
		Banner:       fmt.Sprintf(enforcementBannerFormat, decision.Reason),
		Content:      injection.Content,
		Placeholders: injection.Placeholders,
		Coverage:     coverage.ScoreSection(sectionId, nil, s.thresholds),
		Metadata: datatypes.GenerationMetadata{
			SectionId:               sectionId,
			OrganizationId:          req.Context.OrganizationId,
			RetrievedChunkCount:     decision.UsableChunks,
			UsedGenericKnowledge:    true,
			EnforcementApplied:      true,
			ParagraphsPlaceholdered: injection.ParagraphsPlaceholdered,
			PolicyOverride:          policyOverride,
			EnforcedGeneration:      injection.Content,
		},
	}
	if err := s.record(ctx, req.Context.ProposalId, result.Metadata); err != nil {
		return GenerationResult{}, err
	}
	return result, nil
}

// providerFailureResult handles a drafting provider failure or timeout.
// No draft exists, so the section gets placeholder-only content behind
// a warning banner, and the proposal's persistent failure flag latches
// until a human reviews what happened.
func (s *Service) providerFailureResult(ctx context.Context, req datatypes.GenerationRequest, sectionId string, chunkCount int, policyOverride bool, cause error) (GenerationResult, error) {
	s.logger.Error("draft generation failed, returning placeholder content",
		"section_id", sectionId,
		"proposal_id", req.Context.ProposalId,
		"error", cause)

	if err := s.recorder.SetEnforcementFailure(req.Context.ProposalId, true); err != nil {
		return GenerationResult{}, fmt.Errorf("failed to latch enforcement failure: %w", err)
	}

	injection := s.injector.PlaceholderOnlyContent(sectionId, req.SectionName)
	result := GenerationResult{
		Banner:       providerFailureBanner,
		Content:      injection.Content,
		Placeholders: injection.Placeholders,
		Coverage:     coverage.ScoreSection(sectionId, nil, s.thresholds),
		Metadata: datatypes.GenerationMetadata{
			SectionId:               sectionId,
			OrganizationId:          req.Context.OrganizationId,
			RetrievedChunkCount:     chunkCount,
			EnforcementApplied:      true,
			ParagraphsPlaceholdered: injection.ParagraphsPlaceholdered,
			PolicyOverride:          policyOverride,
			EnforcedGeneration:      injection.Content,
		},
	}
	if err := s.record(ctx, req.Context.ProposalId, result.Metadata); err != nil {
		return GenerationResult{}, err
	}
	return result, nil
}

// enforce runs extraction, verification, attribution, injection, and
// scoring over a raw draft. A panic in any stage is converted to an
// error so the caller can fail open with the warning banner instead of
// crashing the request.
func (s *Service) enforce(ctx context.Context, req datatypes.GenerationRequest, sectionId, draft string) (result GenerationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("enforcement stage panicked: %v", r)
		}
	}()

	extracted := s.extractor.Extract(draft)
	verified, summary := s.verifier.VerifySection(ctx, req.Context.OrganizationId, extracted)
	paragraphs := s.attributor.AttributeSection(ctx, req.Context.OrganizationId, sectionId, draft)
	injection := s.injector.Enforce(sectionId, paragraphs, verified)

	return GenerationResult{
		Content:      injection.Content,
		Claims:       verified,
		ClaimSummary: summary,
		Paragraphs:   paragraphs,
		Placeholders: injection.Placeholders,
		Coverage:     coverage.ScoreSection(sectionId, paragraphs, s.thresholds),
		Metadata: datatypes.GenerationMetadata{
			EnforcementApplied:      injection.EnforcementApplied(),
			ClaimsReplaced:          injection.ClaimsReplaced,
			ParagraphsPlaceholdered: injection.ParagraphsPlaceholdered,
		},
	}, nil
}

// failOpenResult returns the raw draft behind a warning banner when
// enforcement itself broke, and latches the proposal's persistent
// failure flag so the export gate blocks until a human clears it.
func (s *Service) failOpenResult(ctx context.Context, req datatypes.GenerationRequest, sectionId, draft string, chunkCount int, policyOverride bool, cause error) (GenerationResult, error) {
	s.logger.Error("enforcement failed, returning unverified draft",
		"section_id", sectionId,
		"proposal_id", req.Context.ProposalId,
		"error", cause)

	if err := s.recorder.SetEnforcementFailure(req.Context.ProposalId, true); err != nil {
		// Losing the latch would let unverified content export cleanly.
		return GenerationResult{}, fmt.Errorf("failed to latch enforcement failure: %w", err)
	}

	result := GenerationResult{
		Banner:  warningBanner,
		Content: draft,
		Metadata: datatypes.GenerationMetadata{
			SectionId:           sectionId,
			OrganizationId:      req.Context.OrganizationId,
			RetrievedChunkCount: chunkCount,
			PolicyOverride:      policyOverride,
			RawGeneration:       draft,
			EnforcedGeneration:  draft,
		},
	}
	if err := s.record(ctx, req.Context.ProposalId, result.Metadata); err != nil {
		return GenerationResult{}, err
	}
	return result, nil
}

// record performs the single end-of-pipeline metadata upsert. An
// abandoned request writes nothing.
func (s *Service) record(ctx context.Context, proposalId string, metadata datatypes.GenerationMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.recorder.RecordGeneration(metadata); err != nil {
		return fmt.Errorf("failed to record generation metadata: %w", err)
	}
	s.invalidateSnapshot(proposalId)
	return nil
}

func (s *Service) invalidateSnapshot(proposalId string) {
	if s.snapshots != nil {
		s.snapshots.Invalidate(proposalId)
	}
	if s.decisions != nil {
		s.decisions.Invalidate(proposalId)
	}
}

// ComplianceFor computes (or serves from cache) the compliance snapshot
// for a proposal, overlaying the persistent enforcement-failure flag
// from the ledger.
func (s *Service) ComplianceFor(ctx context.Context, proposalId string) (datatypes.ComplianceStatus, error) {
	ctx, span := serviceTracer.Start(ctx, "Service.ComplianceFor")
	defer span.End()
	span.SetAttributes(attribute.String("proposal_id", proposalId))

	if s.snapshots != nil {
		if cached, ok := s.snapshots.Get(proposalId); ok {
			return cached, nil
		}
	}

	proposal, err := s.proposals.GetProposal(ctx, proposalId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "proposal lookup failed")
		return datatypes.ComplianceStatus{}, fmt.Errorf("failed to load proposal %s: %w", proposalId, err)
	}

	failed, err := s.recorder.EnforcementFailed(proposalId)
	if err != nil {
		return datatypes.ComplianceStatus{}, fmt.Errorf("failed to read enforcement flag: %w", err)
	}
	proposal.EnforcementFailure = proposal.EnforcementFailure || failed

	status := s.checker.Check(ctx, proposal)
	if s.snapshots != nil {
		s.snapshots.Set(proposalId, status)
	}
	return status, nil
}

// EvaluateExport returns the export gate decision for the current
// proposal state, appending each fresh evaluation to the audit trail.
//
// Description:
//
//	Coverage is recomputed live: every section with content is
//	re-attributed against the corpus so the decision reflects edits
//	made since generation, not a stale stored score. Because that walk
//	hits the vector store once per paragraph, fresh decisions are
//	cached for the poll interval; a cached poll neither recomputes nor
//	appends a duplicate audit record. Generations and flag changes
//	drop the cache entry.
func (s *Service) EvaluateExport(ctx context.Context, proposalId string) (datatypes.ExportGateResult, error) {
	if s.decisions != nil {
		if cached, ok := s.decisions.Get(proposalId); ok {
			return cached, nil
		}
	}
	return s.evaluateExport(ctx, proposalId)
}

// evaluateExport always recomputes, appends the audit record, and
// refreshes the decision cache.
func (s *Service) evaluateExport(ctx context.Context, proposalId string) (datatypes.ExportGateResult, error) {
	ctx, span := serviceTracer.Start(ctx, "Service.EvaluateExport")
	defer span.End()
	span.SetAttributes(attribute.String("proposal_id", proposalId))

	status, err := s.ComplianceFor(ctx, proposalId)
	if err != nil {
		return datatypes.ExportGateResult{}, err
	}

	proposal, err := s.proposals.GetProposal(ctx, proposalId)
	if err != nil {
		return datatypes.ExportGateResult{}, fmt.Errorf("failed to load proposal %s: %w", proposalId, err)
	}

	sections := make([]datatypes.SectionCoverage, 0, len(proposal.Sections))
	for _, section := range proposal.Sections {
		paragraphs := s.attributor.AttributeSection(ctx, proposal.OrganizationId, section.SectionId, section.Content)
		sections = append(sections, coverage.ScoreSection(section.SectionId, paragraphs, s.thresholds))
	}
	proposalCoverage := coverage.ScoreProposal(proposalId, sections, s.thresholds)

	result := s.evaluator.Evaluate(status, proposalCoverage)
	if err := s.auditor.RecordDecision(gate.AuditRecord(result)); err != nil {
		return datatypes.ExportGateResult{}, fmt.Errorf("failed to record gate decision: %w", err)
	}
	if s.decisions != nil {
		s.decisions.Set(proposalId, result)
	}

	span.SetAttributes(attribute.String("decision", string(result.Decision)))
	return result, nil
}

// Attest records a human sign-off on a WARN decision. The decision is
// always re-evaluated fresh first, never taken from the cache;
// attesting a BLOCK or a clean ALLOW is rejected.
func (s *Service) Attest(ctx context.Context, proposalId, attestationText, attestedBy string) (datatypes.ExportGateResult, error) {
	result, err := s.evaluateExport(ctx, proposalId)
	if err != nil {
		return datatypes.ExportGateResult{}, err
	}
	if result.Decision != datatypes.GateWarn {
		return result, fmt.Errorf("%w: current decision is %s", ErrWarnRequired, result.Decision)
	}
	if err := s.auditor.RecordDecision(gate.AttestationRecord(result, attestationText, attestedBy)); err != nil {
		return datatypes.ExportGateResult{}, fmt.Errorf("failed to record attestation: %w", err)
	}
	return result, nil
}

// ClearEnforcementFailure removes the persistent fail-closed flag after
// a human has reviewed the affected sections.
func (s *Service) ClearEnforcementFailure(proposalId string) error {
	if err := s.recorder.SetEnforcementFailure(proposalId, false); err != nil {
		return fmt.Errorf("failed to clear enforcement failure: %w", err)
	}
	s.invalidateSnapshot(proposalId)
	return nil
}
