// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/services/enforcer"
	"github.com/beaconhq/beacon/services/enforcer/config"
	"github.com/beaconhq/beacon/services/enforcer/datatypes"
	"github.com/beaconhq/beacon/services/enforcer/generation"
	"github.com/beaconhq/beacon/services/enforcer/retrieval"
	"github.com/beaconhq/beacon/services/enforcer/routes"
	"github.com/beaconhq/beacon/services/llm"
	"github.com/beaconhq/beacon/services/policy"
)

type stubRetriever struct {
	chunks []datatypes.SourceChunk
	err    error
}

func (s *stubRetriever) Retrieve(context.Context, retrieval.Query) ([]datatypes.SourceChunk, error) {
	return s.chunks, s.err
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
	return datatypes.OrganizationProfile{Id: organizationId, Name: "Harbor Youth Services"}, nil
}

type stubProposals struct {
	proposal datatypes.ProposalContent
}

func (s *stubProposals) GetProposal(context.Context, string) (datatypes.ProposalContent, error) {
	return s.proposal, nil
}

type stubRecorder struct {
	records []datatypes.GenerationMetadata
	failed  map[string]bool
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

type fixture struct {
	router    *gin.Engine
	recorder  *stubRecorder
	proposals *stubProposals
}

func newFixture(t *testing.T, retriever retrieval.Retriever, completer llm.Client) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	scanner, err := policy.NewEngine()
	require.NoError(t, err)
	generator, err := generation.NewDraftGenerator(completer, time.Minute)
	require.NoError(t, err)

	recorder := &stubRecorder{failed: make(map[string]bool)}
	proposals := &stubProposals{}

	service, err := enforcer.NewService(enforcer.ServiceDeps{
		Thresholds:    config.DefaultThresholds(),
		Retriever:     retriever,
		Generator:     generator,
		Scanner:       scanner,
		Organizations: stubOrgs{},
		Proposals:     proposals,
		Recorder:      recorder,
		Auditor:       &stubAuditor{},
	})
	require.NoError(t, err)

	router := gin.New()
	routes.SetupRoutes(router, service, nil)
	return &fixture{router: router, recorder: recorder, proposals: proposals}
}

func generateBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(datatypes.GenerationRequest{
		SectionName: "Program Description",
		Context: datatypes.GenerationContext{
			OrganizationId: "org-1",
			ProposalId:     "prop-1",
		},
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestGenerateStreamsBannerBeforeContent(t *testing.T) {
	// No sources: the placeholder-only path always carries a banner.
	f := newFixture(t, &stubRetriever{}, &stubCompleter{response: "never used"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sections/generate", generateBody(t))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "[BEACON ENFORCEMENT: "))
	bannerEnd := strings.Index(body, "\n\n")
	require.Greater(t, bannerEnd, 0)
	assert.Contains(t, body[bannerEnd:], "[[PLACEHOLDER:USER_INPUT_REQUIRED:")
}

func TestGenerateReturnsJSONWhenAsked(t *testing.T) {
	draft := "Our tutors meet students at the harbor branch every weekday."
	f := newFixture(t,
		&stubRetriever{chunks: []datatypes.SourceChunk{{Id: "c1", Text: draft, SimilarityScore: 0.85}}},
		&stubCompleter{response: draft})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sections/generate", generateBody(t))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result enforcer.GenerationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, draft, result.Content)
	assert.Empty(t, result.Banner)
	require.Len(t, f.recorder.records, 1)
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t, &stubRetriever{}, &stubCompleter{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sections/generate",
		strings.NewReader(`{"section_name": ""}`))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.recorder.records)
}

func TestGetComplianceReturnsSnapshot(t *testing.T) {
	f := newFixture(t, &stubRetriever{}, &stubCompleter{})
	f.proposals.proposal = datatypes.ProposalContent{
		ProposalId: "prop-1",
		Sections: []datatypes.SectionContent{
			{SectionId: "s1", Name: "Summary", Required: true, Content: ""},
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/proposals/prop-1/compliance", nil)
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var status datatypes.ComplianceStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 1, status.ErrorCount)
}

func TestGetExportGateReturnsDecision(t *testing.T) {
	content := "Our tutors meet students at the harbor branch every weekday."
	f := newFixture(t,
		&stubRetriever{chunks: []datatypes.SourceChunk{{Id: "c1", Text: content, SimilarityScore: 0.85}}},
		&stubCompleter{})
	f.proposals.proposal = datatypes.ProposalContent{
		ProposalId:     "prop-1",
		OrganizationId: "org-1",
		Sections: []datatypes.SectionContent{
			{SectionId: "s1", Name: "Summary", Content: content},
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/proposals/prop-1/export-gate", nil)
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result datatypes.ExportGateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, datatypes.GateAllow, result.Decision)
	assert.True(t, result.Allowed)
}

func TestAttestConflictsOutsideWarn(t *testing.T) {
	content := "Our tutors meet students at the harbor branch every weekday."
	f := newFixture(t,
		&stubRetriever{chunks: []datatypes.SourceChunk{{Id: "c1", Text: content, SimilarityScore: 0.85}}},
		&stubCompleter{})
	f.proposals.proposal = datatypes.ProposalContent{
		ProposalId:     "prop-1",
		OrganizationId: "org-1",
		Sections: []datatypes.SectionContent{
			{SectionId: "s1", Name: "Summary", Content: content},
		},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/proposals/prop-1/export-gate/attest",
		strings.NewReader(`{"attestation_text": "Reviewed.", "attested_by": "reviewer@example.org"}`))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAttestRequiresBody(t *testing.T) {
	f := newFixture(t, &stubRetriever{}, &stubCompleter{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/proposals/prop-1/export-gate/attest",
		strings.NewReader(`{"attestation_text": "missing signer"}`))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearEnforcementFailure(t *testing.T) {
	f := newFixture(t, &stubRetriever{}, &stubCompleter{})
	f.recorder.failed["prop-1"] = true

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/proposals/prop-1/enforcement-failure", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, f.recorder.failed["prop-1"])
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, &stubRetriever{}, &stubCompleter{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
