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

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/stagewalk/pkg/validation"
)

// =============================================================================
// Constants (fixture size limits)
// =============================================================================

const (
	// MaxRegistryYAMLSize is the maximum allowed fixture size (1MB).
	// Prevents memory issues from runaway files.
	MaxRegistryYAMLSize = 1024 * 1024

	// MaxStagesInRegistry is the maximum stages allowed per fixture.
	MaxStagesInRegistry = 1024
)

// =============================================================================
// YAML Schema
// =============================================================================

// registryYAML is the on-disk fixture schema:
//
//	stages:
//	  - name: img_f
//	    updates: 0
//	  - name: g
//	    updates: 1
type registryYAML struct {
	Stages []stageYAML `yaml:"stages"`
}

type stageYAML struct {
	Name    string `yaml:"name"`
	Updates int    `yaml:"updates"`
}

// =============================================================================
// Decode / Encode
// =============================================================================

// DecodeRegistry parses a YAML fixture into a registry.
//
// Names are trimmed before validation so hand-written fixtures with
// incidental whitespace decode cleanly. Stages are registered in
// fixture order.
//
// Inputs:
//   - data: raw YAML bytes (callers read the file; this package never
//     touches the filesystem)
//
// Outputs:
//   - *Registry: populated registry
//   - error: ErrRegistryTooLarge, a YAML syntax error, or the first
//     per-stage validation failure wrapped with its index
func DecodeRegistry(data []byte) (*Registry, error) {
	if len(data) > MaxRegistryYAMLSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrRegistryTooLarge, len(data), MaxRegistryYAMLSize)
	}

	var fixture registryYAML
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("unmarshaling registry fixture: %w", err)
	}

	if len(fixture.Stages) > MaxStagesInRegistry {
		return nil, fmt.Errorf("%w: %d stages (max %d)", ErrRegistryTooLarge, len(fixture.Stages), MaxStagesInRegistry)
	}

	r := NewRegistry()
	for i, s := range fixture.Stages {
		name, err := validation.CleanStageName(s.Name)
		if err != nil {
			return nil, fmt.Errorf("stage at index %d: %w: %v", i, ErrInvalidName, err)
		}
		if err := r.Add(name, s.Updates); err != nil {
			return nil, fmt.Errorf("stage at index %d: %w", i, err)
		}
	}
	return r, nil
}

// EncodeRegistry renders a registry to the YAML fixture schema.
//
// Stages are emitted in insertion order, so decode-encode round-trips
// preserve the fixture's stage sequence.
func EncodeRegistry(r *Registry) ([]byte, error) {
	fixture := registryYAML{
		Stages: make([]stageYAML, 0, r.Len()),
	}
	for _, name := range r.Names() {
		s, _ := r.Lookup(name)
		fixture.Stages = append(fixture.Stages, stageYAML{
			Name:    s.Name,
			Updates: s.UpdateCount,
		})
	}

	data, err := yaml.Marshal(&fixture)
	if err != nil {
		return nil, fmt.Errorf("marshaling registry fixture: %w", err)
	}
	return data, nil
}
