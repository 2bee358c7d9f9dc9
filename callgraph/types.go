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
// Caller Identifiers
// =============================================================================

// UpdateSuffix is appended to a stage name to form the caller
// identifier for its update statements.
//
// The index is fixed at 0 no matter how many update definitions the
// stage carries: every update statement of a producer is attributed to
// the same caller entry. Expected graphs are written against this
// lumping, so it must not be "fixed" to number updates individually.
const UpdateSuffix = ".update(0)"

// UpdateCaller returns the caller identifier for the update statements
// of the named stage.
func UpdateCaller(stage string) string {
	return stage + UpdateSuffix
}

// IsUpdateCaller reports whether caller is an update identifier.
func IsUpdateCaller(caller string) bool {
	return strings.HasSuffix(caller, UpdateSuffix)
}

// BaseStage returns the stage name underlying a caller identifier,
// stripping the update suffix if present.
func BaseStage(caller string) string {
	return strings.TrimSuffix(caller, UpdateSuffix)
}

// =============================================================================
// Lifecycle State
// =============================================================================

// GraphState represents the lifecycle state of a call graph.
type GraphState int

const (
	// GraphStateBuilding indicates the graph is accepting
	// EnsureCaller/AddCallee calls.
	GraphStateBuilding GraphState = iota

	// GraphStateFrozen indicates the graph is read-only.
	GraphStateFrozen
)

// String returns the string representation of the GraphState.
func (s GraphState) String() string {
	switch s {
	case GraphStateBuilding:
		return "building"
	case GraphStateFrozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// =============================================================================
// Options
// =============================================================================

// GraphOptions configures capacity limits for a graph.
type GraphOptions struct {
	// MaxCallers is the maximum number of caller entries the graph can
	// hold. Zero means unlimited.
	// Default: 0
	MaxCallers int
}

// DefaultGraphOptions returns the default graph options.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{}
}

// GraphOption modifies GraphOptions.
type GraphOption func(*GraphOptions)

// WithMaxCallers caps the number of caller entries the graph accepts.
// Harnesses use this as a tripwire against runaway trees.
func WithMaxCallers(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxCallers = n
	}
}

// =============================================================================
// Graph
// =============================================================================

// Graph is a stage dependency graph: caller identifier to the ordered
// set of distinct stages it reads.
//
// Two properties carry meaning beyond plain adjacency:
//
//   - Entry presence: every producer region entered during extraction
//     has an entry even if it read nothing. An empty callee list and an
//     absent caller are different verdicts.
//   - Callee order: callees appear in first-read order. Comparison is
//     order-insensitive, but the order is kept for diagnostics.
//
// Membership is tracked in a per-caller set alongside the ordered
// slice, so duplicate suppression stays O(1) per read on large trees.
type Graph struct {
	state   GraphState
	order   []string
	callees map[string][]string
	seen    map[string]map[string]struct{}
	options GraphOptions
}

// NewGraph creates an empty graph in the building state.
func NewGraph(opts ...GraphOption) *Graph {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Graph{
		state:   GraphStateBuilding,
		callees: make(map[string][]string),
		seen:    make(map[string]map[string]struct{}),
		options: options,
	}
}

// State returns the graph's lifecycle state.
func (g *Graph) State() GraphState {
	return g.state
}

// Frozen reports whether the graph is read-only.
func (g *Graph) Frozen() bool {
	return g.state == GraphStateFrozen
}

// Freeze transitions the graph to read-only. Idempotent.
//
// After Freeze the graph is safe for concurrent reads and any further
// EnsureCaller/AddCallee call returns ErrGraphFrozen.
func (g *Graph) Freeze() {
	g.state = GraphStateFrozen
}

// EnsureCaller adds an entry for caller if absent, with no callees.
//
// The extractor calls this on entry to every producer region so that a
// stage that reads nothing still appears in the graph.
//
// Outputs:
//   - error: ErrGraphFrozen, ErrEmptyCaller, or ErrMaxCallersExceeded
func (g *Graph) EnsureCaller(caller string) error {
	if g.Frozen() {
		return fmt.Errorf("%w: EnsureCaller(%q)", ErrGraphFrozen, caller)
	}
	if caller == "" {
		return ErrEmptyCaller
	}
	if _, exists := g.seen[caller]; exists {
		return nil
	}
	if g.options.MaxCallers > 0 && len(g.order) >= g.options.MaxCallers {
		return fmt.Errorf("%w: %d", ErrMaxCallersExceeded, g.options.MaxCallers)
	}

	g.order = append(g.order, caller)
	g.callees[caller] = nil
	g.seen[caller] = make(map[string]struct{})
	return nil
}

// AddCallee records that caller reads callee.
//
// The caller entry is created if absent. A callee already recorded for
// this caller is ignored: first occurrence wins its position and later
// reads change nothing.
//
// Outputs:
//   - error: ErrGraphFrozen, ErrEmptyCaller, ErrEmptyCallee, or
//     ErrMaxCallersExceeded
func (g *Graph) AddCallee(caller, callee string) error {
	if callee == "" {
		return fmt.Errorf("%w: caller %q", ErrEmptyCallee, caller)
	}
	if err := g.EnsureCaller(caller); err != nil {
		return err
	}
	if _, dup := g.seen[caller][callee]; dup {
		return nil
	}

	g.seen[caller][callee] = struct{}{}
	g.callees[caller] = append(g.callees[caller], callee)
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// HasCaller reports whether caller has an entry.
func (g *Graph) HasCaller(caller string) bool {
	_, ok := g.seen[caller]
	return ok
}

// Callers returns all caller identifiers in insertion order.
//
// The returned slice is a copy.
func (g *Graph) Callers() []string {
	callers := make([]string, len(g.order))
	copy(callers, g.order)
	return callers
}

// SortedCallers returns all caller identifiers in lexicographic order.
func (g *Graph) SortedCallers() []string {
	callers := g.Callers()
	sort.Strings(callers)
	return callers
}

// Callees returns the stages read by caller in first-read order, and
// whether the caller has an entry at all.
//
// The returned slice is a copy. A (nil, true) result means the caller
// exists and read nothing.
func (g *Graph) Callees(caller string) ([]string, bool) {
	if _, ok := g.seen[caller]; !ok {
		return nil, false
	}
	src := g.callees[caller]
	if len(src) == 0 {
		return nil, true
	}
	callees := make([]string, len(src))
	copy(callees, src)
	return callees, true
}

// Len returns the number of caller entries.
func (g *Graph) Len() int {
	return len(g.order)
}

// EdgeCount returns the total number of caller-to-callee edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, callees := range g.callees {
		count += len(callees)
	}
	return count
}

// Stats summarizes a graph for logs and metrics.
type Stats struct {
	// Callers is the number of caller entries.
	Callers int

	// Edges is the total number of caller-to-callee edges.
	Edges int

	// UpdateCallers is the number of update identifiers among callers.
	UpdateCallers int
}

// Stats returns summary counts for the graph.
func (g *Graph) Stats() Stats {
	s := Stats{
		Callers: len(g.order),
		Edges:   g.EdgeCount(),
	}
	for _, caller := range g.order {
		if IsUpdateCaller(caller) {
			s.UpdateCallers++
		}
	}
	return s
}

// Clone returns a deep copy of the graph in the same lifecycle state.
func (g *Graph) Clone() *Graph {
	clone := &Graph{
		state:   g.state,
		order:   make([]string, len(g.order)),
		callees: make(map[string][]string, len(g.callees)),
		seen:    make(map[string]map[string]struct{}, len(g.seen)),
		options: g.options,
	}
	copy(clone.order, g.order)
	for caller, callees := range g.callees {
		dup := make([]string, len(callees))
		copy(dup, callees)
		clone.callees[caller] = dup
	}
	for caller, set := range g.seen {
		dupSet := make(map[string]struct{}, len(set))
		for callee := range set {
			dupSet[callee] = struct{}{}
		}
		clone.seen[caller] = dupSet
	}
	return clone
}

// String renders the graph with sorted callers for deterministic
// diagnostics:
//
//	g: [w img]
//	g.update(0): [img_f g]
func (g *Graph) String() string {
	var sb strings.Builder
	for _, caller := range g.SortedCallers() {
		callees := g.callees[caller]
		sb.WriteString(caller)
		sb.WriteString(": [")
		sb.WriteString(strings.Join(callees, " "))
		sb.WriteString("]\n")
	}
	return sb.String()
}
