// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package attribution maps generated paragraphs to their supporting
// source chunks and rewrites unsupported content into explicit
// placeholder tokens.
package attribution

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/beaconhq/beacon/services/enforcer/datatypes"
)

// PlaceholderRegex is the wire grammar for placeholder tokens. Group 1
// is the type, group 2 the human description, group 3 the id. The
// grammar is a compatibility surface shared with the UI; changing it
// breaks stored proposals.
var PlaceholderRegex = regexp.MustCompile(`\[\[PLACEHOLDER:([A-Z_]+):([^:\]]+):([a-z0-9_]+)\]\]`)

var (
	descStripPattern = regexp.MustCompile(`[:\[\]]+`)
	idStripPattern   = regexp.MustCompile(`[^a-z0-9_]+`)
)

// FormatPlaceholder renders a token in the fixed grammar. The
// description is sanitized so the token always parses back out.
func FormatPlaceholder(pType datatypes.PlaceholderType, description, id string) string {
	return fmt.Sprintf("[[PLACEHOLDER:%s:%s:%s]]", pType, SanitizeDescription(description), sanitizeId(id))
}

// SanitizeDescription strips the characters the grammar reserves
// (colons and brackets) and collapses whitespace.
func SanitizeDescription(description string) string {
	clean := descStripPattern.ReplaceAllString(description, " ")
	clean = strings.Join(strings.Fields(clean), " ")
	if clean == "" {
		clean = "additional information required"
	}
	return clean
}

func sanitizeId(id string) string {
	clean := idStripPattern.ReplaceAllString(strings.ToLower(id), "_")
	clean = strings.Trim(clean, "_")
	if clean == "" {
		clean = "ph"
	}
	return clean
}

// ParsedPlaceholder is one token recovered from enforced content.
type ParsedPlaceholder struct {
	Type        datatypes.PlaceholderType
	Description string
	Id          string

	// Position is the byte offset of the token in the text.
	Position int
}

// ParsePlaceholders recovers every placeholder token from the text, in
// document order. Round-trips with FormatPlaceholder without loss.
func ParsePlaceholders(text string) []ParsedPlaceholder {
	matches := PlaceholderRegex.FindAllStringSubmatchIndex(text, -1)
	out := make([]ParsedPlaceholder, 0, len(matches))
	for _, m := range matches {
		out = append(out, ParsedPlaceholder{
			Type:        datatypes.PlaceholderType(text[m[2]:m[3]]),
			Description: text[m[4]:m[5]],
			Id:          text[m[6]:m[7]],
			Position:    m[0],
		})
	}
	return out
}

// ContainsPlaceholder reports whether the text holds at least one
// well-formed token.
func ContainsPlaceholder(text string) bool {
	return PlaceholderRegex.MatchString(text)
}
