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
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/stagewalk/pkg/validation"
)

// =============================================================================
// GOLDEN ENCODING
// =============================================================================

// Encoding limits. Golden graphs are small; anything near these limits
// is a malformed file, not a real pipeline.
const (
	// MaxGraphDocumentSize is the maximum accepted size of an encoded
	// graph document in bytes.
	MaxGraphDocumentSize = 1024 * 1024 // 1MB

	// MaxCallersInDocument is the maximum number of caller entries
	// accepted in an encoded graph document.
	MaxCallersInDocument = 4096
)

// graphDocument is the on-disk schema for a call graph.
//
// Callers are written in sorted order so encoded graphs diff cleanly;
// a decoded graph's insertion order is therefore the sorted order, not
// whatever order the original extraction produced. Comparison is
// order-insensitive, so round-tripping preserves meaning.
type graphDocument struct {
	Callers []callerEntry `yaml:"callers" json:"callers"`
}

// callerEntry is one caller and the stages it reads. An entry with no
// callees is a producer scope that read nothing; the entry itself still
// counts.
type callerEntry struct {
	Caller  string   `yaml:"caller" json:"caller"`
	Callees []string `yaml:"callees,omitempty" json:"callees,omitempty"`
}

// buildDocument converts a graph to its deterministic document form.
func buildDocument(g *Graph) graphDocument {
	doc := graphDocument{}
	if g == nil {
		return doc
	}
	for _, caller := range g.SortedCallers() {
		callees, _ := g.Callees(caller)
		doc.Callers = append(doc.Callers, callerEntry{
			Caller:  caller,
			Callees: callees,
		})
	}
	return doc
}

// buildGraph converts a decoded document back into a frozen graph.
func buildGraph(doc graphDocument) (*Graph, error) {
	if len(doc.Callers) > MaxCallersInDocument {
		return nil, fmt.Errorf("%w: %d callers exceeds limit of %d",
			ErrGraphTooLarge, len(doc.Callers), MaxCallersInDocument)
	}

	g := NewGraph()
	for i, entry := range doc.Callers {
		caller, err := cleanCallerName(entry.Caller)
		if err != nil {
			return nil, fmt.Errorf("caller at index %d: %w", i, err)
		}
		if g.HasCaller(caller) {
			return nil, fmt.Errorf("caller at index %d: duplicate caller %q", i, caller)
		}
		if err := g.EnsureCaller(caller); err != nil {
			return nil, fmt.Errorf("caller at index %d: %w", i, err)
		}
		for j, callee := range entry.Callees {
			name, err := validation.CleanStageName(callee)
			if err != nil {
				return nil, fmt.Errorf("caller at index %d: callee at index %d: %w", i, j, err)
			}
			if err := g.AddCallee(caller, name); err != nil {
				return nil, fmt.Errorf("caller at index %d: callee at index %d: %w", i, j, err)
			}
		}
	}

	g.Freeze()
	return g, nil
}

// cleanCallerName validates a caller identifier, which is either a
// stage name or a stage name carrying the update suffix.
func cleanCallerName(caller string) (string, error) {
	if IsUpdateCaller(caller) {
		base, err := validation.CleanStageName(BaseStage(caller))
		if err != nil {
			return "", err
		}
		return UpdateCaller(base), nil
	}
	return validation.CleanStageName(caller)
}

// EncodeYAML renders a graph as a deterministic YAML document suitable
// for golden files. A nil graph encodes as an empty document.
func EncodeYAML(g *Graph) ([]byte, error) {
	data, err := yaml.Marshal(buildDocument(g))
	if err != nil {
		return nil, fmt.Errorf("encoding graph as YAML: %w", err)
	}
	return data, nil
}

// DecodeYAML parses a YAML graph document and returns the frozen graph
// it describes.
func DecodeYAML(data []byte) (*Graph, error) {
	if len(data) > MaxGraphDocumentSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d",
			ErrGraphTooLarge, len(data), MaxGraphDocumentSize)
	}

	var doc graphDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing graph YAML: %w", err)
	}
	return buildGraph(doc)
}

// EncodeJSON renders a graph as a deterministic, indented JSON document
// suitable for golden files. A nil graph encodes as an empty document.
func EncodeJSON(g *Graph) ([]byte, error) {
	data, err := json.MarshalIndent(buildDocument(g), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding graph as JSON: %w", err)
	}
	return data, nil
}

// DecodeJSON parses a JSON graph document and returns the frozen graph
// it describes.
func DecodeJSON(data []byte) (*Graph, error) {
	if len(data) > MaxGraphDocumentSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d",
			ErrGraphTooLarge, len(data), MaxGraphDocumentSize)
	}

	var doc graphDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing graph JSON: %w", err)
	}
	return buildGraph(doc)
}
