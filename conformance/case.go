// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conformance

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/stagewalk/callgraph"
	"github.com/AleutianAI/stagewalk/ir"
	"github.com/AleutianAI/stagewalk/stage"
)

// MaxCaseNameLength is the maximum length of a case name.
const MaxCaseNameLength = 128

// =============================================================================
// Shared Validator Instance
// =============================================================================

// caseValidate is the validator instance for conformance cases.
// Initialized in init() with custom validators.
var caseValidate *validator.Validate

func init() {
	caseValidate = validator.New()
	_ = caseValidate.RegisterValidation("casename", validateCaseNameField)
}

// validateCaseNameField checks that a case name is printable ASCII and
// within length limits. Case names end up in log lines, span
// attributes, and report summaries, so control characters and
// unbounded lengths are rejected up front.
func validateCaseNameField(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if len(name) == 0 || len(name) > MaxCaseNameLength {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}

// =============================================================================
// Case
// =============================================================================

// Case is one conformance check: extract a call graph from Tree using
// Registry and compare it against Expected.
//
// # Fields
//
//   - Name: Required. Identifies the case in reports and logs.
//     Printable ASCII, at most 128 characters.
//   - Tree: Required. The lowered statement tree to walk.
//   - Registry: Required. Stage metadata for the tree's producers.
//   - Expected: Required. The graph the walk should recover. Need not
//     be frozen; comparison ignores lifecycle state.
type Case struct {
	Name     string           `validate:"required,casename"`
	Tree     ir.Stmt          `validate:"required"`
	Registry *stage.Registry  `validate:"required"`
	Expected *callgraph.Graph `validate:"required"`
}

// Validate checks the case structure before execution.
//
// A typed-nil Tree (a nil *ir.Block stored in the interface) passes
// the struct tag check, so it is rejected separately.
func (c *Case) Validate() error {
	if err := caseValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCase, err)
	}
	if ir.IsNil(c.Tree) {
		return fmt.Errorf("%w: nil tree", ErrInvalidCase)
	}
	return nil
}
