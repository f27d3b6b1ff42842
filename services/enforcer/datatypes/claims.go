// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// ClaimType categorizes a factual assertion extracted from generated text.
type ClaimType string

const (
	// ClaimNumber is a bare numeric count ("500 participants").
	ClaimNumber ClaimType = "NUMBER"

	// ClaimPercentage is a percentage figure ("42% increase").
	ClaimPercentage ClaimType = "PERCENTAGE"

	// ClaimCurrency is a money amount ("$125,000").
	ClaimCurrency ClaimType = "CURRENCY"

	// ClaimDate is a calendar reference ("since 2019", "March 2024").
	ClaimDate ClaimType = "DATE"

	// ClaimOrganization is a named-organization mention.
	ClaimOrganization ClaimType = "ORGANIZATION"

	// ClaimOutcome is an outcome statement ("reduced recidivism by half").
	ClaimOutcome ClaimType = "OUTCOME"
)

// RiskLevel indicates how damaging an unverified claim of this kind would
// be if it reached a funder.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// RiskForClaimType returns the fixed risk level for a claim type.
//
// Quantitative and outcome claims are HIGH risk because a wrong number in
// a funded proposal is a reportable misstatement. Dates and organization
// names are MEDIUM. Anything else is LOW.
func RiskForClaimType(t ClaimType) RiskLevel {
	switch t {
	case ClaimNumber, ClaimPercentage, ClaimCurrency, ClaimOutcome:
		return RiskHigh
	case ClaimDate, ClaimOrganization:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Span is a half-open [Start, End) byte range into the generated text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ExtractedClaim is one pattern-matched factual assertion.
//
// Claims are immutable once created. Overlapping patterns may produce
// duplicate claims for the same text span; downstream consumers must
// tolerate duplicates.
type ExtractedClaim struct {
	Id string `json:"id"`

	// Type is the matcher that produced this claim.
	Type ClaimType `json:"type"`

	// Value is the matched literal ("500 participants", "$1.2M").
	Value string `json:"value"`

	// Context is the matched value plus up to 40 characters of
	// surrounding text on each side.
	Context string `json:"context"`

	// Position locates the value within the generated section text.
	Position Span `json:"position"`

	// RiskLevel is fixed by Type via RiskForClaimType.
	RiskLevel RiskLevel `json:"risk_level"`
}

// ClaimStatus is the verification outcome for one claim within one
// generation pass. Terminal per pass.
type ClaimStatus string

const (
	ClaimVerified    ClaimStatus = "VERIFIED"
	ClaimPartial     ClaimStatus = "PARTIAL"
	ClaimUnverified  ClaimStatus = "UNVERIFIED"
	ClaimConflicting ClaimStatus = "CONFLICTING"
	ClaimOutdated    ClaimStatus = "OUTDATED"
)

// ClaimEvidence records one supporting chunk for a verified claim.
type ClaimEvidence struct {
	ChunkId      string  `json:"chunk_id"`
	DocumentId   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	MatchedText  string  `json:"matched_text"`
	Similarity   float64 `json:"similarity"`
	DocumentDate string  `json:"document_date,omitempty"`
}

// VerifiedClaim is an ExtractedClaim plus its verification outcome.
type VerifiedClaim struct {
	ExtractedClaim

	Status   ClaimStatus     `json:"status"`
	Evidence []ClaimEvidence `json:"evidence,omitempty"`
}

// ClaimVerificationSummary aggregates claim results for one section.
//
// When more claims were extracted than verified (the verifier caps work
// at a fixed claim budget), EstimatedVerified extrapolates the sampled
// verification rate across the full claim set. That estimate is an
// explicit cost-control approximation, not a measurement; Sampled
// reports whether extrapolation happened.
type ClaimVerificationSummary struct {
	TotalExtracted    int     `json:"total_extracted"`
	Checked           int     `json:"checked"`
	Verified          int     `json:"verified"`
	Partial           int     `json:"partial"`
	Unverified        int     `json:"unverified"`
	Sampled           bool    `json:"sampled"`
	VerificationRate  float64 `json:"verification_rate"`
	EstimatedVerified int     `json:"estimated_verified"`
}
