// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
	"github.com/beaconhq/beacon/services/llm"
)

type stubLLM struct {
	response     string
	err          error
	systemPrompt string
	userPrompt   string
}

func (s *stubLLM) Complete(_ context.Context, systemPrompt, userPrompt string, _ llm.GenerationParams) (string, error) {
	s.systemPrompt = systemPrompt
	s.userPrompt = userPrompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func sampleRequest() datatypes.GenerationRequest {
	return datatypes.GenerationRequest{
		SectionName: "Program Description",
		Description: "Describe the after-school program.",
		WordLimit:   300,
		Context: datatypes.GenerationContext{
			OrganizationId: "org-1",
			ProposalId:     "prop-1",
			FunderName:     "Community Trust",
			ProgramTitle:   "Youth Futures",
			FundingAmount:  &datatypes.FundingRange{Min: 25000, Max: 50000},
		},
	}
}

func TestBuildSystemPromptCarriesIdentityAndRules(t *testing.T) {
	org := datatypes.OrganizationProfile{
		Name:      "Harbor Youth Services",
		Mission:   "Support harbor-district youth.",
		Geography: "Harborview County",
	}
	prompt := BuildSystemPrompt(org)

	assert.Contains(t, prompt, "Harbor Youth Services")
	assert.Contains(t, prompt, "Harborview County")
	assert.Contains(t, prompt, "[[PLACEHOLDER:MISSING_DATA:")
	assert.Contains(t, prompt, "Never invent numbers")
}

func TestBuildUserPromptLayout(t *testing.T) {
	chunks := []datatypes.SourceChunk{
		{DocumentName: "Annual Report 2024", Text: "We served 500 individuals."},
		{DocumentName: "Program Evaluation", Text: "Attendance rose each term."},
	}
	prompt := BuildUserPrompt(sampleRequest(), chunks, "Keep the tone warm.")

	assert.Contains(t, prompt, `"Program Description"`)
	assert.Contains(t, prompt, "Funder: Community Trust")
	assert.Contains(t, prompt, "Word limit: 300")
	assert.Contains(t, prompt, "$25000 to $50000")
	assert.Contains(t, prompt, "Excerpt 1 (from Annual Report 2024)")
	assert.Contains(t, prompt, "Excerpt 2 (from Program Evaluation)")
	assert.Contains(t, prompt, "Keep the tone warm.")
	assert.NotContains(t, prompt, "earlier draft")

	// Excerpts appear after the request framing.
	assert.Less(t, strings.Index(prompt, "Funder:"), strings.Index(prompt, "Excerpt 1"))
}

func TestBuildUserPromptRevisionPass(t *testing.T) {
	req := sampleRequest()
	req.ExistingContent = "Our program serves local youth."
	prompt := BuildUserPrompt(req, nil, "")

	assert.Contains(t, prompt, "Improve it rather than starting over")
	assert.Contains(t, prompt, "Our program serves local youth.")
}

func TestGenerateTrimsDraft(t *testing.T) {
	stub := &stubLLM{response: "\n\nA solid draft paragraph.\n"}
	g, err := NewDraftGenerator(stub, 0)
	require.NoError(t, err)

	draft, err := g.Generate(context.Background(), sampleRequest(), datatypes.OrganizationProfile{Name: "Org"}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "A solid draft paragraph.", draft)
	assert.Contains(t, stub.systemPrompt, "grant writer")
	assert.Contains(t, stub.userPrompt, "Program Description")
}

func TestGenerateEmptyDraftIsError(t *testing.T) {
	g, err := NewDraftGenerator(&stubLLM{response: "   \n "}, 0)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), sampleRequest(), datatypes.OrganizationProfile{}, nil, "")
	assert.Error(t, err)
}

func TestGeneratePropagatesProviderFailure(t *testing.T) {
	g, err := NewDraftGenerator(&stubLLM{err: errors.New("timeout")}, 0)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), sampleRequest(), datatypes.OrganizationProfile{}, nil, "")
	assert.Error(t, err)
}

func TestNewDraftGeneratorRequiresClient(t *testing.T) {
	_, err := NewDraftGenerator(nil, 0)
	assert.Error(t, err)
}
