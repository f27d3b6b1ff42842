// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package attribution

import (
	"fmt"
	"strings"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// InjectionResult is the enforced section content plus everything the
// rewrite did to produce it.
type InjectionResult struct {
	Content                 string
	Placeholders            []datatypes.Placeholder
	ClaimsReplaced          int
	ParagraphsPlaceholdered int
}

// EnforcementApplied reports whether the rewrite changed anything.
func (r InjectionResult) EnforcementApplied() bool {
	return r.ClaimsReplaced > 0 || r.ParagraphsPlaceholdered > 0
}

// Injector deterministically rewrites unsupported content into
// placeholder tokens.
//
// Thread Safety: Stateless; safe for concurrent use.
type Injector struct{}

// NewInjector creates an injector.
func NewInjector() *Injector {
	return &Injector{}
}

// Enforce rewrites the attributed paragraphs into enforced content.
//
// Description:
//
//	UNGROUNDED and FAILED paragraphs are replaced whole by a
//	VERIFICATION_NEEDED token. Inside surviving paragraphs, every
//	HIGH-risk claim that failed verification is replaced in place by a
//	MISSING_DATA token. Text is never silently deleted or accepted;
//	the reader always sees where something was removed and why.
//
//	The rewrite is idempotent: paragraphs that already consist of
//	placeholder tokens are left alone, and claim values inside
//	existing tokens are never wrapped again. Token ids are unique
//	within the section.
func (inj *Injector) Enforce(sectionId string, paragraphs []datatypes.AttributedParagraph, claims []datatypes.VerifiedClaim) InjectionResult {
	var result InjectionResult

	// Surviving paragraphs can already carry tokens, from a revision
	// pass or from the model following its placeholder instructions, so
	// fresh ids must skip every id already present in the input.
	used := make(map[string]bool)
	for _, p := range paragraphs {
		for _, token := range ParsePlaceholders(p.Text) {
			used[token.Id] = true
		}
	}
	nextId := 0
	newId := func() string {
		for {
			nextId++
			id := fmt.Sprintf("ph_%d", nextId)
			if !used[id] {
				used[id] = true
				return id
			}
		}
	}

	rewritten := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		text := p.Text

		switch p.Status {
		case datatypes.ParagraphUngrounded, datatypes.ParagraphFailed:
			// A paragraph that already carries a token went through
			// enforcement on an earlier pass; wrapping it again would
			// destroy the token.
			if ContainsPlaceholder(text) {
				break
			}
			text = FormatPlaceholder(datatypes.PlaceholderVerification, DescribeParagraph(p.Text), newId())
			result.ParagraphsPlaceholdered++

		default:
			for _, claim := range claims {
				if claim.RiskLevel != datatypes.RiskHigh || claim.Status != datatypes.ClaimUnverified {
					continue
				}
				if !strings.Contains(text, claim.Value) {
					continue
				}
				description := fmt.Sprintf("missing verified figure, was %s", SanitizeDescription(claim.Value))
				var replaced int
				text, replaced = replaceOutsideTokens(text, claim.Value, func() string {
					return FormatPlaceholder(datatypes.PlaceholderMissingData, description, newId())
				})
				result.ClaimsReplaced += replaced
			}
		}
		rewritten = append(rewritten, text)
	}

	result.Content = strings.Join(rewritten, "\n\n")
	result.Placeholders = placeholderRecords(sectionId, result.Content)
	return result
}

// PlaceholderOnlyContent builds the fallback content for a section that
// could not be drafted from sources at all.
func (inj *Injector) PlaceholderOnlyContent(sectionId, sectionName string) InjectionResult {
	description := fmt.Sprintf("write the %s section, no organization documents cover it",
		SanitizeDescription(sectionName))
	content := FormatPlaceholder(datatypes.PlaceholderUserInput, description, "ph_1")
	return InjectionResult{
		Content:                 content,
		Placeholders:            placeholderRecords(sectionId, content),
		ParagraphsPlaceholdered: 1,
	}
}

// replaceOutsideTokens replaces occurrences of value that do not fall
// inside an existing placeholder token, returning the new text and the
// replacement count. Each replacement draws a fresh token so ids stay
// unique.
func replaceOutsideTokens(text, value string, nextToken func() string) (string, int) {
	tokenSpans := PlaceholderRegex.FindAllStringIndex(text, -1)
	inToken := func(start, end int) bool {
		for _, span := range tokenSpans {
			if start >= span[0] && end <= span[1] {
				return true
			}
		}
		return false
	}

	var b strings.Builder
	replaced := 0
	pos := 0
	for {
		i := strings.Index(text[pos:], value)
		if i < 0 {
			b.WriteString(text[pos:])
			break
		}
		start := pos + i
		end := start + len(value)
		b.WriteString(text[pos:start])
		if inToken(start, end) {
			b.WriteString(value)
		} else {
			b.WriteString(nextToken())
			replaced++
		}
		pos = end
	}
	return b.String(), replaced
}

// placeholderRecords parses the enforced content back into structured
// placeholder records, guaranteeing the stored records and the tokens
// in the text can never disagree.
func placeholderRecords(sectionId, content string) []datatypes.Placeholder {
	parsed := ParsePlaceholders(content)
	out := make([]datatypes.Placeholder, 0, len(parsed))
	for _, p := range parsed {
		out = append(out, datatypes.Placeholder{
			Id:          p.Id,
			SectionId:   sectionId,
			Type:        p.Type,
			Description: p.Description,
			Position:    p.Position,
		})
	}
	return out
}
