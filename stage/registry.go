// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stage

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/stagewalk/pkg/validation"
)

// =============================================================================
// Types
// =============================================================================

// Stage describes one registered pipeline stage.
type Stage struct {
	// Name is the compiler-uniquified stage name.
	Name string

	// UpdateCount is the number of update definitions the stage
	// carries. Zero means the stage has a pure initialization and its
	// producer body is never split.
	UpdateCount int
}

// HasUpdates reports whether the stage carries update definitions.
func (s Stage) HasUpdates() bool {
	return s.UpdateCount > 0
}

// Registry maps stage names to their metadata.
//
// Insertion order is preserved so that diagnostics and encodings are
// deterministic for a given build sequence.
type Registry struct {
	stages map[string]Stage
	order  []string
}

// =============================================================================
// Construction
// =============================================================================

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		stages: make(map[string]Stage),
	}
}

// FromCounts builds a registry from a name to update-count mapping.
//
// Names are registered in lexicographic order so the result is
// deterministic regardless of map iteration order. Intended for tests
// and harness code; compiler integrations should Add stages in
// pipeline order instead.
//
// Inputs:
//   - counts: stage name to update definition count
//
// Outputs:
//   - *Registry: populated registry
//   - error: first validation failure, wrapped with the stage name
func FromCounts(counts map[string]int) (*Registry, error) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	r := NewRegistry()
	for _, name := range names {
		if err := r.Add(name, counts[name]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a stage.
//
// Inputs:
//   - name: stage name; must pass validation.ValidateStageName
//   - updateCount: number of update definitions; must be >= 0
//
// Outputs:
//   - error: ErrInvalidName, ErrNegativeUpdateCount, or
//     ErrDuplicateStage, each wrapped with the offending name
func (r *Registry) Add(name string, updateCount int) error {
	if err := validation.ValidateStageName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	if updateCount < 0 {
		return fmt.Errorf("%w: stage %q has count %d", ErrNegativeUpdateCount, name, updateCount)
	}
	if _, exists := r.stages[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateStage, name)
	}

	r.stages[name] = Stage{Name: name, UpdateCount: updateCount}
	r.order = append(r.order, name)
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// Lookup returns the stage registered under name.
func (r *Registry) Lookup(name string) (Stage, bool) {
	s, ok := r.stages[name]
	return s, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.stages[name]
	return ok
}

// Len returns the number of registered stages.
func (r *Registry) Len() int {
	return len(r.stages)
}

// Names returns the registered stage names in insertion order.
//
// The returned slice is a copy.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
