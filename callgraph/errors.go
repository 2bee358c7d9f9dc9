// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package callgraph recovers stage dependency graphs from lowered
// statement trees and verifies them against expected graphs.
//
// A Graph maps caller identifiers (stage names, plus one derived
// "name.update(0)" identifier per stage whose producer body carries
// update statements) to the set of stages they read, in first-read
// order with duplicates suppressed. The Extractor builds a Graph in a
// single pass over a tree; Compare renders the verdict between an
// extracted graph and an expected one.
//
// # Error Taxonomy
//
// Two failure families never mix:
//
//   - Contract violations (a producer missing from the registry, a nil
//     tree, mutation after Freeze) are Go errors returned immediately.
//   - Structural mismatches between produced and expected graphs are
//     data: Compare returns a *Mismatch describing the first divergence
//     and nil when the graphs agree.
//
// # Lifecycle
//
// A Graph is created building, populated monotonically, and frozen
// before being handed to readers. The Extractor freezes the graph it
// returns; harness code building expected graphs should call Freeze
// itself. A frozen graph is safe for concurrent reads.
package callgraph

import "errors"

// Sentinel errors for graph construction and extraction.
var (
	// ErrGraphFrozen is returned when attempting to modify a frozen
	// graph. Once Freeze() is called the graph is read-only.
	ErrGraphFrozen = errors.New("call graph is frozen and cannot be modified")

	// ErrEmptyCaller is returned when adding an entry under an empty
	// caller identifier.
	ErrEmptyCaller = errors.New("empty caller identifier")

	// ErrEmptyCallee is returned when recording a read of an empty
	// stage name.
	ErrEmptyCallee = errors.New("empty callee stage name")

	// ErrMaxCallersExceeded is returned when the graph has reached its
	// configured maximum caller capacity.
	ErrMaxCallersExceeded = errors.New("maximum caller count exceeded")

	// ErrNilTree is returned when extraction is started on a nil root.
	ErrNilTree = errors.New("nil statement tree")

	// ErrNilRegistry is returned when an extractor is constructed
	// without a stage registry.
	ErrNilRegistry = errors.New("nil stage registry")

	// ErrUnknownProducer is returned when a walk enters a producer
	// region whose stage is not in the registry. The tree and the
	// registry came from different lowerings; continuing would build a
	// graph that compares against the wrong expectations, so the walk
	// aborts at the first occurrence.
	ErrUnknownProducer = errors.New("producer not in stage registry")

	// ErrGraphTooLarge is returned when an encoded graph exceeds the
	// decode size limits.
	ErrGraphTooLarge = errors.New("encoded graph too large")
)
