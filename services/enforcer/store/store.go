// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store reads organization profiles and proposal state from
// Weaviate. Both classes are written by the ingestion and editing
// services; this service only reads them.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// Class names shared with the ingestion service.
const (
	OrganizationClassName = "Organization"
	ProposalClassName     = "Proposal"
)

// ErrNotFound is returned when no object matches the requested id.
var ErrNotFound = errors.New("not found")

// WeaviateStore implements the organization and proposal readers over a
// shared Weaviate client.
//
// Thread Safety: Safe for concurrent use.
type WeaviateStore struct {
	client *weaviate.Client
}

// NewWeaviateStore creates a store.
func NewWeaviateStore(client *weaviate.Client) (*WeaviateStore, error) {
	if client == nil {
		return nil, errors.New("client must not be nil")
	}
	return &WeaviateStore{client: client}, nil
}

// GetOrganization loads one organization profile by id.
func (s *WeaviateStore) GetOrganization(ctx context.Context, organizationId string) (datatypes.OrganizationProfile, error) {
	if organizationId == "" {
		return datatypes.OrganizationProfile{}, errors.New("organization id must not be empty")
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(OrganizationClassName).
		WithFields(
			graphql.Field{Name: "organization_id"},
			graphql.Field{Name: "name"},
			graphql.Field{Name: "mission"},
			graphql.Field{Name: "geography"},
		).
		WithWhere(filters.Where().
			WithPath([]string{"organization_id"}).
			WithOperator(filters.Equal).
			WithValueString(organizationId)).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return datatypes.OrganizationProfile{}, fmt.Errorf("organization query failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return datatypes.OrganizationProfile{}, fmt.Errorf("organization query error: %s", result.Errors[0].Message)
	}

	org, ok := ParseOrganization(result)
	if !ok {
		return datatypes.OrganizationProfile{}, fmt.Errorf("organization %s: %w", organizationId, ErrNotFound)
	}
	return org, nil
}

// GetProposal loads the full proposal state by id.
//
// The proposal object stores its sections, checklist and flags as one
// JSON document: the editing service owns the shape and this service
// never updates it piecemeal, so a blob read is both simpler and safer
// than mirroring the nested schema in Weaviate properties.
func (s *WeaviateStore) GetProposal(ctx context.Context, proposalId string) (datatypes.ProposalContent, error) {
	if proposalId == "" {
		return datatypes.ProposalContent{}, errors.New("proposal id must not be empty")
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(ProposalClassName).
		WithFields(
			graphql.Field{Name: "proposal_id"},
			graphql.Field{Name: "organization_id"},
			graphql.Field{Name: "content"},
		).
		WithWhere(filters.Where().
			WithPath([]string{"proposal_id"}).
			WithOperator(filters.Equal).
			WithValueString(proposalId)).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return datatypes.ProposalContent{}, fmt.Errorf("proposal query failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return datatypes.ProposalContent{}, fmt.Errorf("proposal query error: %s", result.Errors[0].Message)
	}

	proposal, ok, err := ParseProposal(result)
	if err != nil {
		return datatypes.ProposalContent{}, err
	}
	if !ok {
		return datatypes.ProposalContent{}, fmt.Errorf("proposal %s: %w", proposalId, ErrNotFound)
	}
	return proposal, nil
}

// ParseOrganization extracts the first organization object from a
// GraphQL response.
func ParseOrganization(result *models.GraphQLResponse) (datatypes.OrganizationProfile, bool) {
	obj, ok := firstObject(result, OrganizationClassName)
	if !ok {
		return datatypes.OrganizationProfile{}, false
	}
	return datatypes.OrganizationProfile{
		Id:        stringProp(obj, "organization_id"),
		Name:      stringProp(obj, "name"),
		Mission:   stringProp(obj, "mission"),
		Geography: stringProp(obj, "geography"),
	}, true
}

// ParseProposal extracts and decodes the first proposal object from a
// GraphQL response.
func ParseProposal(result *models.GraphQLResponse) (datatypes.ProposalContent, bool, error) {
	obj, ok := firstObject(result, ProposalClassName)
	if !ok {
		return datatypes.ProposalContent{}, false, nil
	}

	var proposal datatypes.ProposalContent
	if content := stringProp(obj, "content"); content != "" {
		if err := json.Unmarshal([]byte(content), &proposal); err != nil {
			return datatypes.ProposalContent{}, false, fmt.Errorf("decode proposal content: %w", err)
		}
	}
	// The indexed properties win over whatever the blob carries.
	proposal.ProposalId = stringProp(obj, "proposal_id")
	proposal.OrganizationId = stringProp(obj, "organization_id")
	return proposal, true, nil
}

func firstObject(result *models.GraphQLResponse, className string) (map[string]interface{}, bool) {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	objects, ok := data[className].([]interface{})
	if !ok || len(objects) == 0 {
		return nil, false
	}
	obj, ok := objects[0].(map[string]interface{})
	return obj, ok
}

func stringProp(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}
