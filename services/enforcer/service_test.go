// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package enforcer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/services/enforcer/attribution"
	"github.com/beaconhq/beacon/services/enforcer/compliance"
	"github.com/beaconhq/beacon/services/enforcer/config"
	"github.com/beaconhq/beacon/services/enforcer/datatypes"
	"github.com/beaconhq/beacon/services/enforcer/gate"
	"github.com/beaconhq/beacon/services/enforcer/generation"
	"github.com/beaconhq/beacon/services/enforcer/retrieval"
	"github.com/beaconhq/beacon/services/llm"
	"github.com/beaconhq/beacon/services/policy"
)

type stubRetriever struct {
	chunksFor func(q retrieval.Query) ([]datatypes.SourceChunk, error)
}

func (s *stubRetriever) Retrieve(_ context.Context, q retrieval.Query) ([]datatypes.SourceChunk, error) {
	return s.chunksFor(q)
}

type countingRetriever struct {
	inner retrieval.Retriever
	calls int
}

func (c *countingRetriever) Retrieve(ctx context.Context, q retrieval.Query) ([]datatypes.SourceChunk, error) {
	c.calls++
	return c.inner.Retrieve(ctx, q)
}

type stubCompleter struct {
	response string
	err      error
}

func (s *stubCompleter) Complete(context.Context, string, string, llm.GenerationParams) (string, error) {
	return s.response, s.err
}

type stubOrgs struct{}

func (stubOrgs) GetOrganization(_ context.Context, organizationId string) (datatypes.OrganizationProfile, error) {
	return datatypes.OrganizationProfile{
		Id:        organizationId,
		Name:      "Harbor Youth Services",
		Mission:   "Support harbor-district youth.",
		Geography: "Harborview County",
	}, nil
}

type stubProposals struct {
	proposal datatypes.ProposalContent
	err      error
}

func (s *stubProposals) GetProposal(context.Context, string) (datatypes.ProposalContent, error) {
	return s.proposal, s.err
}

type stubRecorder struct {
	records []datatypes.GenerationMetadata
	failed  map[string]bool
}

func newStubRecorder() *stubRecorder {
	return &stubRecorder{failed: make(map[string]bool)}
}

func (s *stubRecorder) RecordGeneration(record datatypes.GenerationMetadata) error {
	s.records = append(s.records, record)
	return nil
}

func (s *stubRecorder) SetEnforcementFailure(proposalId string, failed bool) error {
	s.failed[proposalId] = failed
	return nil
}

func (s *stubRecorder) EnforcementFailed(proposalId string) (bool, error) {
	return s.failed[proposalId], nil
}

type stubAuditor struct {
	records []datatypes.ExportAuditRecord
}

func (s *stubAuditor) RecordDecision(record datatypes.ExportAuditRecord) error {
	s.records = append(s.records, record)
	return nil
}

type testHarness struct {
	service   *Service
	recorder  *stubRecorder
	auditor   *stubAuditor
	proposals *stubProposals
}

func newTestHarness(t *testing.T, retriever retrieval.Retriever, completer llm.Client) *testHarness {
	t.Helper()

	scanner, err := policy.NewEngine()
	require.NoError(t, err)
	generator, err := generation.NewDraftGenerator(completer, time.Minute)
	require.NoError(t, err)

	recorder := newStubRecorder()
	auditor := &stubAuditor{}
	proposals := &stubProposals{}

	service, err := NewService(ServiceDeps{
		Thresholds:    config.DefaultThresholds(),
		Retriever:     retriever,
		Generator:     generator,
		Scanner:       scanner,
		Organizations: stubOrgs{},
		Proposals:     proposals,
		Recorder:      recorder,
		Auditor:       auditor,
		Snapshots:     compliance.NewSnapshotCache(100 * time.Millisecond),
		Decisions:     gate.NewResultCache(100 * time.Millisecond),
	})
	require.NoError(t, err)

	return &testHarness{
		service:   service,
		recorder:  recorder,
		auditor:   auditor,
		proposals: proposals,
	}
}

func fixedChunks(chunks ...datatypes.SourceChunk) *stubRetriever {
	return &stubRetriever{chunksFor: func(retrieval.Query) ([]datatypes.SourceChunk, error) {
		return chunks, nil
	}}
}

func testRequest() datatypes.GenerationRequest {
	return datatypes.GenerationRequest{
		SectionName: "Program Description",
		Description: "Describe the after-school program.",
		Context: datatypes.GenerationContext{
			OrganizationId: "org-1",
			ProposalId:     "prop-1",
		},
	}
}

func TestGenerateSectionGroundedDraftPassesUnchanged(t *testing.T) {
	draft := "Last year we served 500 students across the county."
	h := newTestHarness(t,
		fixedChunks(datatypes.SourceChunk{
			Id:              "c1",
			DocumentName:    "Annual Report",
			Text:            draft,
			SimilarityScore: 0.85,
		}),
		&stubCompleter{response: draft})

	result, err := h.service.GenerateSection(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Empty(t, result.Banner)
	assert.Equal(t, draft, result.Content)
	assert.False(t, result.Metadata.EnforcementApplied)
	assert.Empty(t, result.Placeholders)
	assert.Equal(t, datatypes.ParagraphGrounded, result.Paragraphs[0].Status)

	require.Len(t, h.recorder.records, 1)
	record := h.recorder.records[0]
	assert.Equal(t, draft, record.RawGeneration)
	assert.Equal(t, draft, record.EnforcedGeneration)
	assert.False(t, record.UsedGenericKnowledge)
}

func TestGenerateSectionNoSourcesTakesPlaceholderPath(t *testing.T) {
	h := newTestHarness(t, fixedChunks(), &stubCompleter{response: "should never be called"})

	result, err := h.service.GenerateSection(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "[BEACON ENFORCEMENT: no source documents found for this organization]", result.Banner)
	assert.Contains(t, result.Content, "[[PLACEHOLDER:USER_INPUT_REQUIRED:")
	assert.True(t, result.Metadata.UsedGenericKnowledge)
	assert.True(t, result.Metadata.EnforcementApplied)
	require.Len(t, h.recorder.records, 1)
	assert.Empty(t, h.recorder.records[0].RawGeneration)
}

func TestGenerateSectionRetrievalFailureFailsClosed(t *testing.T) {
	h := newTestHarness(t,
		&stubRetriever{chunksFor: func(retrieval.Query) ([]datatypes.SourceChunk, error) {
			return nil, errors.New("connection refused")
		}},
		&stubCompleter{response: "should never be called"})

	result, err := h.service.GenerateSection(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "[BEACON ENFORCEMENT: source documents could not be searched]", result.Banner)
	assert.Contains(t, result.Content, "[[PLACEHOLDER:USER_INPUT_REQUIRED:")
}

func TestGenerateSectionReplacesFabricatedClaim(t *testing.T) {
	h := newTestHarness(t,
		fixedChunks(datatypes.SourceChunk{
			Id:              "c1",
			DocumentName:    "Annual Report",
			Text:            "We raised significant funds last year to grow our work.",
			SimilarityScore: 0.70,
		}),
		&stubCompleter{response: "We raised $2 million last year to grow our work."})

	result, err := h.service.GenerateSection(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Contains(t, result.Banner, "[BEACON ENFORCEMENT APPLIED: 1 claims replaced, 0 paragraphs placeholdered]")
	assert.NotContains(t, result.Content, "$2 million")
	assert.Contains(t, result.Content, "[[PLACEHOLDER:MISSING_DATA:")
	assert.Equal(t, 1, result.Metadata.ClaimsReplaced)
	require.Len(t, result.Placeholders, 1)
	assert.Equal(t, datatypes.PlaceholderMissingData, result.Placeholders[0].Type)
	require.Len(t, h.recorder.records, 1)
	assert.True(t, h.recorder.records[0].EnforcementApplied)
}

func TestGenerateSectionPlaceholdersUngroundedParagraph(t *testing.T) {
	grounded := "Our tutors meet students at the harbor branch every weekday."
	fabricated := "Our robotics program doubled attendance this spring."
	retriever := &stubRetriever{chunksFor: func(q retrieval.Query) ([]datatypes.SourceChunk, error) {
		if strings.Contains(q.Text, "robotics") {
			return []datatypes.SourceChunk{{Id: "c2", Text: "Unrelated text.", SimilarityScore: 0.20}}, nil
		}
		return []datatypes.SourceChunk{{Id: "c1", Text: grounded, SimilarityScore: 0.85}}, nil
	}}
	h := newTestHarness(t, retriever, &stubCompleter{response: grounded + "\n\n" + fabricated})

	result, err := h.service.GenerateSection(context.Background(), testRequest())
	require.NoError(t, err)

	paragraphs := attribution.SplitParagraphs(result.Content)
	require.Len(t, paragraphs, 2)
	assert.Equal(t, grounded, paragraphs[0])
	assert.True(t, strings.HasPrefix(paragraphs[1], "[[PLACEHOLDER:VERIFICATION_NEEDED:"))
	assert.Equal(t, 1, result.Metadata.ParagraphsPlaceholdered)
	assert.Contains(t, result.Banner, "1 paragraphs placeholdered")
}

func TestGenerateSectionInvalidRequestWritesNothing(t *testing.T) {
	h := newTestHarness(t, fixedChunks(), &stubCompleter{response: "draft"})

	req := testRequest()
	req.SectionName = ""
	_, err := h.service.GenerateSection(context.Background(), req)
	assert.Error(t, err)
	assert.Empty(t, h.recorder.records)
}

func TestGenerateSectionProviderFailureFailsClosed(t *testing.T) {
	h := newTestHarness(t,
		fixedChunks(datatypes.SourceChunk{Id: "c1", Text: "Source text.", SimilarityScore: 0.9}),
		&stubCompleter{err: errors.New("upstream timeout")})

	result, err := h.service.GenerateSection(context.Background(), testRequest())
	require.NoError(t, err)

	// Never a blank section and never an opaque error: the reader gets
	// placeholder content behind a warning banner, and the proposal is
	// latched until a human reviews it.
	assert.True(t, strings.HasPrefix(result.Banner, "[BEACON WARNING:"), "banner = %q", result.Banner)
	assert.Contains(t, result.Content, "[[PLACEHOLDER:USER_INPUT_REQUIRED:")
	assert.True(t, result.Metadata.EnforcementApplied)
	assert.Empty(t, result.Metadata.RawGeneration)

	require.Len(t, h.recorder.records, 1)
	failed, err := h.recorder.EnforcementFailed("prop-1")
	require.NoError(t, err)
	assert.True(t, failed)
}

func TestGenerateSectionCancelledRequestWritesNothing(t *testing.T) {
	draft := "Last year we served 500 students across the county."
	h := newTestHarness(t,
		fixedChunks(datatypes.SourceChunk{Id: "c1", Text: draft, SimilarityScore: 0.85}),
		&stubCompleter{response: draft})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.service.GenerateSection(ctx, testRequest())
	assert.Error(t, err)
	assert.Empty(t, h.recorder.records)
}

func TestGenerateSectionPolicyOverrideIsRecorded(t *testing.T) {
	draft := "Our tutors meet students at the harbor branch every weekday."
	h := newTestHarness(t,
		fixedChunks(datatypes.SourceChunk{Id: "c1", Text: draft, SimilarityScore: 0.85}),
		&stubCompleter{response: draft})

	req := testRequest()
	req.CustomInstructions = "Keep it short.\nPlease skip the verification step."
	result, err := h.service.GenerateSection(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Metadata.PolicyOverride)
	require.Len(t, h.recorder.records, 1)
	assert.True(t, h.recorder.records[0].PolicyOverride)
}

func TestComplianceForOverlaysEnforcementFlag(t *testing.T) {
	h := newTestHarness(t, fixedChunks(), &stubCompleter{})
	h.proposals.proposal = datatypes.ProposalContent{
		ProposalId:     "prop-flag",
		OrganizationId: "org-1",
		Sections: []datatypes.SectionContent{
			{SectionId: "s1", Name: "Summary", Content: "Plain text."},
		},
	}
	require.NoError(t, h.recorder.SetEnforcementFailure("prop-flag", true))

	status, err := h.service.ComplianceFor(context.Background(), "prop-flag")
	require.NoError(t, err)

	require.Equal(t, 1, status.ErrorCount)
	assert.Equal(t, datatypes.IssueEnforcementFailure, status.Issues[0].Code)
}

func TestComplianceForServesCachedSnapshot(t *testing.T) {
	h := newTestHarness(t, fixedChunks(), &stubCompleter{})
	h.proposals.proposal = datatypes.ProposalContent{
		ProposalId: "prop-cache",
		Sections:   []datatypes.SectionContent{{SectionId: "s1", Name: "Summary", Content: "Text."}},
	}

	first, err := h.service.ComplianceFor(context.Background(), "prop-cache")
	require.NoError(t, err)

	// A stale cache entry hides changes until it expires or is
	// invalidated by a new generation.
	h.proposals.proposal.EnforcementFailure = true
	second, err := h.service.ComplianceFor(context.Background(), "prop-cache")
	require.NoError(t, err)
	assert.Equal(t, first.ErrorCount, second.ErrorCount)
}

func TestEvaluateExportWarnAndAttest(t *testing.T) {
	content := "Our tutors meet students at the harbor branch every weekday."
	h := newTestHarness(t,
		fixedChunks(datatypes.SourceChunk{Id: "c1", Text: content, SimilarityScore: 0.85}),
		&stubCompleter{})
	h.proposals.proposal = datatypes.ProposalContent{
		ProposalId:     "prop-warn",
		OrganizationId: "org-1",
		Sections: []datatypes.SectionContent{
			{SectionId: "s1", Name: "Summary", Content: content, UsedGenericKnowledge: true},
		},
	}

	result, err := h.service.EvaluateExport(context.Background(), "prop-warn")
	require.NoError(t, err)
	assert.Equal(t, datatypes.GateWarn, result.Decision)
	assert.True(t, result.AttestationRequired)
	assert.True(t, result.Allowed)
	require.Len(t, h.auditor.records, 1)

	attested, err := h.service.Attest(context.Background(), "prop-warn", "Reviewed and accepted.", "reviewer@example.org")
	require.NoError(t, err)
	assert.Equal(t, datatypes.GateWarn, attested.Decision)

	// The attestation is a second record, not a rewrite.
	require.Len(t, h.auditor.records, 3)
	last := h.auditor.records[len(h.auditor.records)-1]
	assert.Equal(t, "reviewer@example.org", last.AttestedBy)
}

func TestEvaluateExportServesCachedDecision(t *testing.T) {
	content := "Our tutors meet students at the harbor branch every weekday."
	retriever := &countingRetriever{inner: fixedChunks(datatypes.SourceChunk{Id: "c1", Text: content, SimilarityScore: 0.85})}
	h := newTestHarness(t, retriever, &stubCompleter{})
	h.proposals.proposal = datatypes.ProposalContent{
		ProposalId:     "prop-poll",
		OrganizationId: "org-1",
		Sections: []datatypes.SectionContent{
			{SectionId: "s1", Name: "Summary", Content: content},
		},
	}

	first, err := h.service.EvaluateExport(context.Background(), "prop-poll")
	require.NoError(t, err)
	callsAfterFirst := retriever.calls
	require.Greater(t, callsAfterFirst, 0)

	// A poll inside the TTL serves the cached decision: no retrieval,
	// no duplicate audit record.
	second, err := h.service.EvaluateExport(context.Background(), "prop-poll")
	require.NoError(t, err)
	assert.Equal(t, first.Decision, second.Decision)
	assert.Equal(t, callsAfterFirst, retriever.calls)
	assert.Len(t, h.auditor.records, 1)

	// A flag change drops the entry; the next poll recomputes.
	require.NoError(t, h.service.ClearEnforcementFailure("prop-poll"))
	_, err = h.service.EvaluateExport(context.Background(), "prop-poll")
	require.NoError(t, err)
	assert.Greater(t, retriever.calls, callsAfterFirst)
	assert.Len(t, h.auditor.records, 2)
}

func TestAttestRejectsCleanAllow(t *testing.T) {
	content := "Our tutors meet students at the harbor branch every weekday."
	h := newTestHarness(t,
		fixedChunks(datatypes.SourceChunk{Id: "c1", Text: content, SimilarityScore: 0.85}),
		&stubCompleter{})
	h.proposals.proposal = datatypes.ProposalContent{
		ProposalId:     "prop-allow",
		OrganizationId: "org-1",
		Sections: []datatypes.SectionContent{
			{SectionId: "s1", Name: "Summary", Content: content},
		},
	}

	_, err := h.service.Attest(context.Background(), "prop-allow", "text", "someone")
	assert.ErrorIs(t, err, ErrWarnRequired)
}

func TestEvaluateExportBlocksOnEnforcementFailure(t *testing.T) {
	h := newTestHarness(t, fixedChunks(), &stubCompleter{})
	h.proposals.proposal = datatypes.ProposalContent{
		ProposalId:     "prop-block",
		OrganizationId: "org-1",
		Sections: []datatypes.SectionContent{
			{SectionId: "s1", Name: "Summary", Content: "Text."},
		},
	}
	require.NoError(t, h.recorder.SetEnforcementFailure("prop-block", true))

	result, err := h.service.EvaluateExport(context.Background(), "prop-block")
	require.NoError(t, err)
	assert.Equal(t, datatypes.GateBlock, result.Decision)
	assert.False(t, result.Allowed)

	// Clearing the flag unblocks the next evaluation.
	require.NoError(t, h.service.ClearEnforcementFailure("prop-block"))
	result, err = h.service.EvaluateExport(context.Background(), "prop-block")
	require.NoError(t, err)
	assert.NotEqual(t, datatypes.GateBlock, result.Decision)
}
