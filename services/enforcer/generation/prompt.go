// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package generation builds grant-writing prompts and produces the raw
// section draft from the language model.
package generation

import (
	"fmt"
	"strings"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// BuildSystemPrompt assembles the writing rules for one organization.
//
// The model is told to draft only from the provided excerpts and to
// mark anything it cannot support with the exact placeholder grammar;
// the extractor and verifier downstream assume that contract even
// though they never trust it.
func BuildSystemPrompt(org datatypes.OrganizationProfile) string {
	var b strings.Builder
	b.WriteString("You are a professional grant writer drafting proposal sections for the nonprofit organization ")
	b.WriteString(org.Name)
	b.WriteString(".\n\n")

	if org.Mission != "" {
		b.WriteString("Mission: ")
		b.WriteString(org.Mission)
		b.WriteString("\n")
	}
	if org.Geography != "" {
		b.WriteString("Service area: ")
		b.WriteString(org.Geography)
		b.WriteString("\n")
	}

	b.WriteString(`
Writing rules:
1. Draft only from the source excerpts provided in the request. Do not use outside knowledge about this or any other organization.
2. Never invent numbers, percentages, dollar amounts, dates, partner names, or outcomes. If a fact you need is not in the excerpts, insert a placeholder token instead, in exactly this form:
   [[PLACEHOLDER:MISSING_DATA:short description of the missing fact:unique_id]]
   The description must not contain colons or brackets; the id must be lowercase letters, digits and underscores.
3. Write in clear, confident prose appropriate for a grant proposal. Separate paragraphs with a blank line.
4. Respect any word or character limit given in the request.
5. Return only the section text. No headings, preamble, or commentary.
`)
	return b.String()
}

// BuildUserPrompt assembles the per-request prompt: section identity,
// funder context, limits, formatted source excerpts, any existing
// draft to revise, and sanitized custom instructions.
func BuildUserPrompt(req datatypes.GenerationRequest, chunks []datatypes.SourceChunk, sanitizedInstructions string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write the %q section of a grant proposal.\n", req.SectionName)
	if req.Description != "" {
		fmt.Fprintf(&b, "Section purpose: %s\n", req.Description)
	}
	if req.Context.FunderName != "" {
		fmt.Fprintf(&b, "Funder: %s\n", req.Context.FunderName)
	}
	if req.Context.ProgramTitle != "" {
		fmt.Fprintf(&b, "Program: %s\n", req.Context.ProgramTitle)
	}
	if fa := req.Context.FundingAmount; fa != nil && fa.Max > 0 {
		fmt.Fprintf(&b, "Funding request range: $%.0f to $%.0f\n", fa.Min, fa.Max)
	}
	if req.WordLimit > 0 {
		fmt.Fprintf(&b, "Word limit: %d\n", req.WordLimit)
	}
	if req.CharLimit > 0 {
		fmt.Fprintf(&b, "Character limit: %d\n", req.CharLimit)
	}

	b.WriteString("\nSource excerpts from the organization's documents:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n--- Excerpt %d (from %s) ---\n%s\n", i+1, c.DocumentName, strings.TrimSpace(c.Text))
	}

	if strings.TrimSpace(req.ExistingContent) != "" {
		b.WriteString("\nAn earlier draft of this section exists. Improve it rather than starting over:\n")
		b.WriteString(strings.TrimSpace(req.ExistingContent))
		b.WriteString("\n")
	}

	if sanitizedInstructions != "" {
		b.WriteString("\nAdditional style guidance from the writer:\n")
		b.WriteString(sanitizedInstructions)
		b.WriteString("\n")
	}

	return b.String()
}
