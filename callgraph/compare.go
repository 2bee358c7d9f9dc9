// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package callgraph

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// MISMATCH
// =============================================================================

// MismatchKind identifies which structural check a comparison failed.
type MismatchKind int

const (
	// MismatchCardinality means the graphs have different caller counts.
	MismatchCardinality MismatchKind = iota

	// MismatchMissingCaller means an expected caller is absent from the
	// actual graph.
	MismatchMissingCaller

	// MismatchCallees means a caller present in both graphs reads a
	// different set of stages.
	MismatchCallees
)

// mismatchKindNames maps MismatchKind values to their string forms.
var mismatchKindNames = map[MismatchKind]string{
	MismatchCardinality:   "cardinality",
	MismatchMissingCaller: "missing-caller",
	MismatchCallees:       "callee-set",
}

// String returns the human-readable name of the mismatch kind.
func (k MismatchKind) String() string {
	if name, ok := mismatchKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Mismatch describes the first structural difference found between an
// actual and an expected call graph.
//
// A Mismatch is verification data, not a walk failure: harnesses report
// it and keep going. It implements error so it can flow through
// error-shaped plumbing, but the fields are the interface — Kind says
// which check failed and the remaining fields carry what a human needs
// to diagnose the difference without re-running the extraction.
type Mismatch struct {
	// Kind identifies which check failed.
	Kind MismatchKind

	// Caller is the caller the mismatch concerns. Empty for
	// MismatchCardinality.
	Caller string

	// ExpectedCount and ActualCount are the caller counts of the two
	// graphs. Set only for MismatchCardinality.
	ExpectedCount int
	ActualCount   int

	// Expected and Actual are the lexicographically sorted callee
	// lists of Caller in each graph. Set only for MismatchCallees.
	Expected []string
	Actual   []string
}

// Error renders the mismatch in the harness's diagnostic wording.
func (m *Mismatch) Error() string {
	switch m.Kind {
	case MismatchCardinality:
		return fmt.Sprintf("expected %d callers instead of %d",
			m.ExpectedCount, m.ActualCount)
	case MismatchMissingCaller:
		return fmt.Sprintf("expected %s to be in the call graph", m.Caller)
	case MismatchCallees:
		return fmt.Sprintf("expected callees of %s to be (%s); got (%s) instead",
			m.Caller, strings.Join(m.Expected, ", "), strings.Join(m.Actual, ", "))
	default:
		return "unknown mismatch"
	}
}

// =============================================================================
// COMPARISON
// =============================================================================

// Compare checks an extracted call graph against an expected one and
// returns the first structural difference, or nil if they match.
//
// Description:
//
//	Three checks run in order: caller counts must agree, every
//	expected caller must be present, and each caller's callee set
//	must agree. Callee comparison is order-insensitive — both lists
//	are sorted before comparing — because read order inside a scope
//	is a lowering artifact, not a dependency fact. Presence and set
//	membership are strict in both directions: the count check makes
//	an extra actual caller a failure even though only expected
//	callers are enumerated.
//
//	Expected callers are visited in sorted order, so which mismatch
//	is reported first is deterministic. A nil graph compares as
//	empty. Never panics.
//
// Inputs:
//
//	actual - Graph recovered by the extractor
//	expected - Graph the harness constructed
//
// Outputs:
//
//	*Mismatch - First difference found, or nil on a match
func Compare(actual, expected *Graph) *Mismatch {
	if actual == nil {
		actual = NewGraph()
	}
	if expected == nil {
		expected = NewGraph()
	}

	if actual.Len() != expected.Len() {
		return &Mismatch{
			Kind:          MismatchCardinality,
			ExpectedCount: expected.Len(),
			ActualCount:   actual.Len(),
		}
	}

	for _, caller := range expected.SortedCallers() {
		want, _ := expected.Callees(caller)
		got, ok := actual.Callees(caller)
		if !ok {
			return &Mismatch{
				Kind:   MismatchMissingCaller,
				Caller: caller,
			}
		}

		// Callees returns copies, so sorting in place is safe.
		sort.Strings(want)
		sort.Strings(got)
		if !equalStrings(want, got) {
			return &Mismatch{
				Kind:     MismatchCallees,
				Caller:   caller,
				Expected: want,
				Actual:   got,
			}
		}
	}

	return nil
}

// Equal reports whether two graphs match under Compare.
func Equal(a, b *Graph) bool {
	return Compare(a, b) == nil
}

// equalStrings reports element-wise equality of two string slices.
func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
