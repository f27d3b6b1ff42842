// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"fmt"
	"regexp"
	"sort"
)

// Pattern is one rule within a classification.
type Pattern struct {
	Id          string `yaml:"id"`
	Description string `yaml:"description"`
	Regex       string `yaml:"regex"`
	Confidence  string `yaml:"confidence"`

	compiledPattern *regexp.Regexp
}

// Classification groups patterns that share one enforcement meaning.
type Classification struct {
	Name     string    `yaml:"name"`
	Priority int       `yaml:"priority"`
	Patterns []Pattern `yaml:"patterns"`
}

// PolicyFile is the root of the embedded YAML.
type PolicyFile struct {
	InstructionPatterns []Classification `yaml:"instruction_patterns"`
}

// CompileRegexes compiles every pattern once, up front, so a malformed
// rule fails at startup instead of mid-request.
func (f *PolicyFile) CompileRegexes() error {
	for i := range f.InstructionPatterns {
		for j := range f.InstructionPatterns[i].Patterns {
			p := &f.InstructionPatterns[i].Patterns[j]
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return fmt.Errorf("pattern %s: %w", p.Id, err)
			}
			p.compiledPattern = compiled
		}
	}
	return nil
}

// SortByPriority orders classifications from highest to lowest
// priority so the most severe rule names a finding first.
func (f *PolicyFile) SortByPriority() {
	sort.SliceStable(f.InstructionPatterns, func(i, j int) bool {
		return f.InstructionPatterns[i].Priority > f.InstructionPatterns[j].Priority
	})
}

// Finding is one matched rule in the scanned instructions.
type Finding struct {
	LineNumber         int    `json:"line_number"`
	MatchedContent     string `json:"matched_content"`
	ClassificationName string `json:"classification_name"`
	PatternId          string `json:"pattern_id"`
	PatternDescription string `json:"pattern_description"`
	Confidence         string `json:"confidence"`
}

// ScanResult is the outcome of scanning one instruction block.
type ScanResult struct {
	// Sanitized is the instruction text with every matched line
	// removed. Safe to place in a prompt.
	Sanitized string `json:"sanitized"`

	Findings []Finding `json:"findings,omitempty"`

	// OverrideAttempted is set when any finding belongs to the
	// enforcement_override class; it is persisted in the generation
	// metadata as policyOverride.
	OverrideAttempted bool `json:"override_attempted"`
}
