// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"testing"

	"github.com/weaviate/weaviate/entities/models"
)

func responseWith(className string, objects ...interface{}) *models.GraphQLResponse {
	return &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				className: objects,
			},
		},
	}
}

func TestParseOrganization(t *testing.T) {
	result := responseWith(OrganizationClassName, map[string]interface{}{
		"organization_id": "org-1",
		"name":            "Harbor Youth Services",
		"mission":         "Support harbor-district youth.",
		"geography":       "Harborview County",
	})

	org, ok := ParseOrganization(result)
	if !ok {
		t.Fatal("expected an organization")
	}
	if org.Id != "org-1" || org.Name != "Harbor Youth Services" {
		t.Errorf("unexpected organization: %+v", org)
	}
	if org.Geography != "Harborview County" {
		t.Errorf("geography = %q", org.Geography)
	}
}

func TestParseOrganizationEmpty(t *testing.T) {
	if _, ok := ParseOrganization(responseWith(OrganizationClassName)); ok {
		t.Error("empty result should not parse")
	}
	if _, ok := ParseOrganization(&models.GraphQLResponse{Data: map[string]models.JSONObject{}}); ok {
		t.Error("missing Get block should not parse")
	}
}

func TestParseProposal(t *testing.T) {
	content := `{"sections":[{"section_id":"s1","name":"Summary","content":"Text.","required":true}],"enforcement_failure":true}`
	result := responseWith(ProposalClassName, map[string]interface{}{
		"proposal_id":     "prop-1",
		"organization_id": "org-1",
		"content":         content,
	})

	proposal, ok, err := ParseProposal(result)
	if err != nil {
		t.Fatalf("ParseProposal() = %v", err)
	}
	if !ok {
		t.Fatal("expected a proposal")
	}
	if proposal.ProposalId != "prop-1" || proposal.OrganizationId != "org-1" {
		t.Errorf("ids not taken from indexed properties: %+v", proposal)
	}
	if len(proposal.Sections) != 1 || proposal.Sections[0].Name != "Summary" {
		t.Errorf("sections not decoded: %+v", proposal.Sections)
	}
	if !proposal.EnforcementFailure {
		t.Error("enforcement_failure flag lost in decode")
	}
}

func TestParseProposalBadBlob(t *testing.T) {
	result := responseWith(ProposalClassName, map[string]interface{}{
		"proposal_id": "prop-1",
		"content":     "{not json",
	})
	if _, _, err := ParseProposal(result); err == nil {
		t.Error("malformed blob should error, not be silently dropped")
	}
}

func TestParseProposalEmptyBlob(t *testing.T) {
	result := responseWith(ProposalClassName, map[string]interface{}{
		"proposal_id": "prop-1",
	})
	proposal, ok, err := ParseProposal(result)
	if err != nil || !ok {
		t.Fatalf("ParseProposal() = %v, ok=%v", err, ok)
	}
	if proposal.ProposalId != "prop-1" {
		t.Errorf("proposal id = %q", proposal.ProposalId)
	}
	if len(proposal.Sections) != 0 {
		t.Errorf("expected no sections, got %d", len(proposal.Sections))
	}
}
