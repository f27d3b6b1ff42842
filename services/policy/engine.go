// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package policy scans user-supplied custom instructions for attempts
// to weaken generation enforcement before they reach the prompt.
package policy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/beaconhq/beacon/services/policy/enforcement"
)

// overrideClass is the classification whose findings flip the
// policyOverride flag in generation metadata.
const overrideClass = "enforcement_override"

// Engine holds the compiled instruction rules.
//
// Thread Safety: Safe for concurrent use after construction.
type Engine struct {
	classifiers []Classification
}

// NewEngine loads the embedded policy file, compiles every regex, and
// sorts classifications by priority. Returns an error if the embedded
// YAML is malformed or a regex does not compile.
func NewEngine() (*Engine, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(enforcement.InstructionPolicyPatterns, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded policy file: %w", err)
	}
	if err := file.CompileRegexes(); err != nil {
		return nil, fmt.Errorf("failed to compile a policy regex: %w", err)
	}
	file.SortByPriority()
	return &Engine{classifiers: file.InstructionPatterns}, nil
}

// ScanInstructions audits one custom-instruction block line by line.
//
// Description:
//
//	Every line is checked against every rule. Matched lines are
//	dropped from the sanitized output entirely; partial redaction
//	would leave the surrounding injected context intact. Clean lines
//	pass through unchanged, so legitimate style guidance survives.
func (e *Engine) ScanInstructions(instructions string) ScanResult {
	result := ScanResult{}
	if strings.TrimSpace(instructions) == "" {
		return result
	}

	var kept []string
	for lineNum, line := range strings.Split(instructions, "\n") {
		matched := false
		for _, classifier := range e.classifiers {
			for _, pattern := range classifier.Patterns {
				match := pattern.compiledPattern.FindString(line)
				if match == "" {
					continue
				}
				matched = true
				if classifier.Name == overrideClass {
					result.OverrideAttempted = true
				}
				result.Findings = append(result.Findings, Finding{
					LineNumber:         lineNum + 1,
					MatchedContent:     strings.TrimSpace(match),
					ClassificationName: classifier.Name,
					PatternId:          pattern.Id,
					PatternDescription: pattern.Description,
					Confidence:         pattern.Confidence,
				})
			}
		}
		if !matched {
			kept = append(kept, line)
		}
	}

	result.Sanitized = strings.TrimSpace(strings.Join(kept, "\n"))
	return result
}
