// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package enforcement bakes the instruction policy patterns into the
// binary so the rules are immutable at runtime and travel with the
// executable.
package enforcement

import (
	_ "embed"
)

// InstructionPolicyPatterns holds the raw bytes of the
// instruction_policy_patterns.yaml file, embedded at compile time.
//
//go:embed instruction_policy_patterns.yaml
var InstructionPolicyPatterns []byte
