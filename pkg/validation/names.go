// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for externally
// supplied identifiers.
//
// Stage names arrive from harness fixtures and compiler-generated stage
// descriptors. Validating them up front keeps registry lookups, update
// caller identifiers, and rendered diagnostics well-formed: a name with
// an embedded dot or parenthesis would collide with the "name.update(0)"
// caller syntax and corrupt graph comparisons.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// stageNamePattern matches valid stage names.
// Allows: letters, digits, underscores, and $ suffixes appended by the
// compiler's name uniquifier (img_in_g_in_g$1). Must not start with a
// digit or $. Max length: 256 characters.
var stageNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]{0,255}$`)

// ValidateStageName validates a stage name from an external source.
//
// Valid stage names:
//   - 1-256 characters
//   - Letters A-Z a-z, digits 0-9, underscores
//   - $ for compiler-uniquified copies like img_in_g_in_g$1
//   - First character must be a letter or underscore
//
// Dots are rejected: "g.update(0)" is an update caller identifier, not
// a stage name, and registering one would shadow the derived form.
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateStageName(name); err != nil {
//	    return fmt.Errorf("invalid stage name: %w", err)
//	}
//	// Safe to register and to embed in diagnostics
func ValidateStageName(name string) error {
	if name == "" {
		return fmt.Errorf("stage name cannot be empty")
	}

	if !stageNamePattern.MatchString(name) {
		return fmt.Errorf("invalid stage name: %q (must be 1-256 chars of letters, digits, underscores, or $, not starting with a digit)", name)
	}

	return nil
}

// ValidateStageNames validates multiple stage names.
// Returns an error listing all invalid names if any fail validation.
func ValidateStageNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateStageName(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid stage names: %v", invalid)
	}
	return nil
}

// CleanStageName trims surrounding whitespace and validates the result.
// Returns the trimmed name if valid, or an error if invalid.
//
// Use this when decoding fixture files where incidental whitespace is
// common:
//
//	name, err := validation.CleanStageName(raw)
//	if err != nil {
//	    return err
//	}
//	// name is trimmed and validated
//
// Case is preserved: stage names are case-sensitive.
func CleanStageName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateStageName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
