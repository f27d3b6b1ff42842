// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package claims extracts typed factual assertions from generated text
// and verifies them against the organization's source corpus.
package claims

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// Package-level compiled regexes for claim extraction (compiled once).
var (
	// numberPattern matches counts attached to a population noun:
	// "500 participants", "1,200 families served".
	numberPattern = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})*(?:\.\d+)?\+?\s+(?:participants?|people|individuals?|families|students?|youth|children|clients?|members?|households?|volunteers?|seniors?|residents?|veterans?|meals?|sessions?|workshops?|schools?|communities)\b`)

	// percentagePattern matches percentage figures with an optional
	// trailing qualifier: "42% increase", "87.5% graduation rate".
	percentagePattern = regexp.MustCompile(`\b\d{1,3}(?:\.\d+)?%(?:\s+(?:increase|decrease|reduction|improvement|growth|rate|of\s+\w+))?`)

	// currencyPattern matches dollar amounts: "$125,000", "$1.2 million".
	currencyPattern = regexp.MustCompile(`\$\d{1,3}(?:,\d{3})*(?:\.\d+)?(?:\s?(?:million|billion|thousand|[MKB]))?\b`)

	// datePattern matches year references and month-year pairs:
	// "since 2019", "in March 2024".
	datePattern = regexp.MustCompile(`\b(?:(?:since|in|by|from|until|through)\s+(?:19|20)\d{2}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+(?:19|20)\d{2})\b`)

	// organizationPattern matches capitalized names ending in an
	// institutional noun: "Ford Foundation", "County Health Department".
	organizationPattern = regexp.MustCompile(`\b(?:[A-Z][\w&'.-]*\s+){1,4}(?:Foundation|Institute|University|College|Department|Agency|Association|Coalition|Council|Center|Centre|Trust|Fund|Initiative|Alliance)\b`)

	// outcomePattern matches outcome statements anchored on a result
	// verb, up to the end of the clause.
	outcomePattern = regexp.MustCompile(`(?i)\b(?:reduced|increased|improved|decreased|achieved|served|reached|expanded|doubled|tripled)\b[^.!?\n]{3,80}`)
)

// matcher pairs one claim type with its compiled pattern. Order is
// fixed; overlapping matches across matchers are all kept.
type matcher struct {
	claimType datatypes.ClaimType
	pattern   *regexp.Regexp
}

var matchers = []matcher{
	{datatypes.ClaimCurrency, currencyPattern},
	{datatypes.ClaimPercentage, percentagePattern},
	{datatypes.ClaimNumber, numberPattern},
	{datatypes.ClaimDate, datePattern},
	{datatypes.ClaimOrganization, organizationPattern},
	{datatypes.ClaimOutcome, outcomePattern},
}

// Extractor scans generated text for factual claims.
//
// Thread Safety: Safe for concurrent use; extraction is pure apart from
// id generation.
type Extractor struct {
	contextRadius int
}

// NewExtractor creates an extractor capturing contextRadius characters
// of surrounding text on each side of a match.
func NewExtractor(contextRadius int) *Extractor {
	if contextRadius <= 0 {
		contextRadius = 40
	}
	return &Extractor{contextRadius: contextRadius}
}

// Extract runs every matcher over the text in order.
//
// Description:
//
//	Each regex match yields one claim with a fixed risk level derived
//	from its type. Matches are not deduplicated across overlapping
//	patterns; "42% increase since 2019" produces both a PERCENTAGE and
//	a DATE claim, and downstream consumers tolerate the overlap.
//
// Outputs:
//
//	[]datatypes.ExtractedClaim - All matches in matcher order, then
//	text order within a matcher. Empty slice for claim-free text.
func (e *Extractor) Extract(text string) []datatypes.ExtractedClaim {
	var out []datatypes.ExtractedClaim
	for _, m := range matchers {
		for _, loc := range m.pattern.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			out = append(out, datatypes.ExtractedClaim{
				Id:        uuid.New().String(),
				Type:      m.claimType,
				Value:     text[start:end],
				Context:   e.contextWindow(text, start, end),
				Position:  datatypes.Span{Start: start, End: end},
				RiskLevel: datatypes.RiskForClaimType(m.claimType),
			})
		}
	}
	return out
}

// contextWindow returns the match plus up to contextRadius characters
// on each side, clamped to the text bounds.
func (e *Extractor) contextWindow(text string, start, end int) string {
	from := start - e.contextRadius
	if from < 0 {
		from = 0
	}
	to := end + e.contextRadius
	if to > len(text) {
		to = len(text)
	}
	return text[from:to]
}
