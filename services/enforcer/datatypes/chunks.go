// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the data model for the grounded generation
// enforcement pipeline.
//
// The types here fall into three groups:
//   - Retrieval shapes (SourceChunk) owned by the ingestion collaborator
//     and read-only to this service.
//   - Per-generation-pass artifacts (ExtractedClaim, VerifiedClaim,
//     AttributedParagraph, Placeholder) which are created once per pass
//     and never mutated in place.
//   - Derived aggregates (coverage, compliance, export gate) which are
//     recomputed on demand and never hand-edited.
package datatypes

// SourceChunk is a slice of an ingested source document together with its
// similarity score at query time.
//
// # Description
//
// Chunks are written by the ingestion pipeline (out of scope for this
// service) and read back through vector similarity queries. The
// SimilarityScore field is only meaningful in the context of the query
// that produced the chunk; it is not a stored property.
//
// # Fields
//
//   - Id: Weaviate object id of the chunk
//   - DocumentId: id of the source document this chunk was cut from
//   - DocumentName: human-readable document name for evidence display
//   - DocumentType: coarse document kind ("annual_report", "990", etc.)
//   - Text: the chunk text
//   - Embedding: stored vector, present only when explicitly requested
//   - SimilarityScore: certainty of the match for the current query (0-1)
//   - ProgramArea: optional program-area tag used for funder matching
type SourceChunk struct {
	Id              string    `json:"id"`
	DocumentId      string    `json:"document_id"`
	DocumentName    string    `json:"document_name"`
	DocumentType    string    `json:"document_type"`
	Text            string    `json:"text"`
	Embedding       []float32 `json:"embedding,omitempty"`
	SimilarityScore float64   `json:"similarity_score"`
	ProgramArea     string    `json:"program_area,omitempty"`
}

// OrganizationProfile is the slice of an organization record the prompt
// builder needs. Read through the OrganizationReader collaborator.
type OrganizationProfile struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Mission   string `json:"mission"`
	Geography string `json:"geography"`
}

// FundingRange bounds the ask amount for a proposal.
type FundingRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}
