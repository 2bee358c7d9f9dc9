// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conformance runs batches of call-graph checks: each case
// pairs a lowered statement tree and its stage registry with the graph
// the extraction is expected to recover.
//
// The Runner executes cases with bounded parallelism. A case that
// extracts a graph differing from its expectation is a mismatch — data
// in the report, never an error from Run. A case whose extraction
// itself fails (an unregistered producer, a nil tree) is errored. Run
// only returns a non-nil error for harness-level problems: invalid
// cases, duplicate names, or context cancellation.
package conformance

import "errors"

// Sentinel errors for batch execution.
var (
	// ErrNilContext is returned when Run is called with a nil context.
	ErrNilContext = errors.New("context is required")

	// ErrInvalidCase is returned when a case fails structural
	// validation before any execution starts.
	ErrInvalidCase = errors.New("invalid conformance case")

	// ErrDuplicateCase is returned when two cases in one run share a
	// name. Names key the report; duplicates would make it ambiguous.
	ErrDuplicateCase = errors.New("duplicate case name")
)
