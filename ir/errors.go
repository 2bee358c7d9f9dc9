// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ir defines the lowered statement tree produced by the pipeline
// compiler and generic traversal over it.
//
// The tree is a closed set of statement and expression kinds: loops,
// producer regions, conditionals, sequencing, stores, and the expression
// forms that appear inside them. Closedness is enforced with unexported
// marker methods so that analyses dispatching on kind (the call-graph
// extractor, the printer) can use exhaustive type switches and rely on
// the compiler to flag a new kind that is not yet handled.
//
// # Ownership Model
//
// Trees are built once by the compiler (or by a test harness) and are
// read-only afterwards:
//   - Nodes MUST NOT be mutated after the root is handed to an analysis
//   - Analyses never modify, re-lower, or optimize the tree
//   - Sharing subtrees between trees is allowed because nothing writes
//
// # Thread Safety
//
// Nodes carry no synchronization. A tree that is no longer being built
// may be walked by any number of goroutines concurrently.
package ir

import "errors"

// Sentinel errors for tree traversal.
var (
	// ErrNilNode is returned when a walk is started on a nil root.
	// Interior nil children (an absent Else branch, an absent Load
	// predicate) are legal and skipped; a nil root is a caller bug.
	ErrNilNode = errors.New("nil root node")
)
