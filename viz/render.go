// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package viz

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/stagewalk/callgraph"
)

// OutputFormat specifies the visualization output format.
type OutputFormat string

const (
	FormatMermaid OutputFormat = "mermaid"
	FormatDOT     OutputFormat = "dot"
	FormatD3      OutputFormat = "d3"
)

// Node kinds used for styling. A stage node is a caller recovered from
// a producer scope, an update node is the collapsed update caller of a
// stage, and an input node is a name that only ever appears as a
// callee (an input buffer the pipeline reads but never computes).
const (
	kindStage  = "stage"
	kindUpdate = "update"
	kindInput  = "input"
)

// Renderer generates visual representations of stage call graphs.
//
// # Description
//
// Creates visual output in various formats including Mermaid diagrams,
// Graphviz DOT, and D3.js JSON. All rendering is done locally without
// external services, and output is deterministic for a given graph:
// nodes appear in sorted order so renders diff cleanly.
//
// # Thread Safety
//
// Safe for concurrent use.
type Renderer struct {
	options RenderOptions
}

// RenderOptions configures graph rendering.
type RenderOptions struct {
	// MaxNodes limits the number of nodes in the output.
	// Default: 100
	MaxNodes int

	// Direction is the graph direction (TB, LR, BT, RL).
	// Default: "TB"
	Direction string

	// HighlightUpdates styles update callers distinctly from their
	// base stages.
	// Default: true
	HighlightUpdates bool
}

// DefaultRenderOptions returns sensible defaults.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		MaxNodes:         100,
		Direction:        "TB",
		HighlightUpdates: true,
	}
}

// NewRenderer creates a new renderer. Zero-valued fields in opts fall
// back to their defaults.
func NewRenderer(opts *RenderOptions) *Renderer {
	if opts == nil {
		defaults := DefaultRenderOptions()
		opts = &defaults
	}
	r := &Renderer{options: *opts}
	if r.options.MaxNodes <= 0 {
		r.options.MaxNodes = DefaultRenderOptions().MaxNodes
	}
	if r.options.Direction == "" {
		r.options.Direction = DefaultRenderOptions().Direction
	}
	return r
}

// Render creates a visual representation of a call graph.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - g: The call graph to visualize.
//   - format: The output format.
//
// # Outputs
//
//   - string: The visualization in the requested format.
//   - error: Non-nil on failure.
func (r *Renderer) Render(ctx context.Context, g *callgraph.Graph, format OutputFormat) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("context is required")
	}
	if g == nil {
		return "", fmt.Errorf("graph is required")
	}

	switch format {
	case FormatMermaid:
		return r.generateMermaid(g), nil
	case FormatDOT:
		return r.generateDOT(g), nil
	case FormatD3:
		return r.generateD3JSON(g)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// graphNode is one renderable node with its styling kind.
type graphNode struct {
	name string
	kind string
}

// collectNodes returns the graph's nodes in render order: callers
// sorted by name, then callee-only names (inputs) sorted by name.
func (r *Renderer) collectNodes(g *callgraph.Graph) []graphNode {
	callers := g.SortedCallers()
	seen := make(map[string]bool, len(callers))
	nodes := make([]graphNode, 0, len(callers))

	for _, caller := range callers {
		seen[caller] = true
		kind := kindStage
		if r.options.HighlightUpdates && callgraph.IsUpdateCaller(caller) {
			kind = kindUpdate
		}
		nodes = append(nodes, graphNode{name: caller, kind: kind})
	}

	var inputs []string
	for _, caller := range callers {
		callees, _ := g.Callees(caller)
		for _, callee := range callees {
			if !seen[callee] {
				seen[callee] = true
				inputs = append(inputs, callee)
			}
		}
	}
	sort.Strings(inputs)
	for _, name := range inputs {
		nodes = append(nodes, graphNode{name: name, kind: kindInput})
	}

	return nodes
}

// generateMermaid creates a Mermaid flowchart diagram.
func (r *Renderer) generateMermaid(g *callgraph.Graph) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("flowchart %s\n", r.options.Direction))

	nodes := r.collectNodes(g)
	included := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		if i >= r.options.MaxNodes {
			sb.WriteString(fmt.Sprintf("    more[\"...%d more stages\"]\n", len(nodes)-i))
			break
		}
		included[n.name] = true
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]:::%s\n",
			sanitizeMermaidID(n.name), escapeMermaidLabel(n.name), n.kind))
	}

	// Edges run caller --> callee: an arrow means "reads from".
	sb.WriteString("\n")
	for _, caller := range g.SortedCallers() {
		if !included[caller] {
			continue
		}
		callerID := sanitizeMermaidID(caller)
		callees, _ := g.Callees(caller)
		for _, callee := range callees {
			if !included[callee] {
				continue
			}
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", callerID, sanitizeMermaidID(callee)))
		}
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef stage fill:#74b9ff,stroke:#333\n")
	sb.WriteString("    classDef update fill:#ffd93d,stroke:#333,stroke-width:2px\n")
	sb.WriteString("    classDef input fill:#10ac84,stroke:#333,color:#fff\n")

	return sb.String()
}

// generateDOT creates a Graphviz DOT format graph.
func (r *Renderer) generateDOT(g *callgraph.Graph) string {
	var sb strings.Builder

	sb.WriteString("digraph CallGraph {\n")
	sb.WriteString(fmt.Sprintf("    rankdir=%s;\n", r.options.Direction))
	sb.WriteString("    node [shape=box, style=filled];\n")
	sb.WriteString("\n")

	nodes := r.collectNodes(g)
	included := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		if i >= r.options.MaxNodes {
			sb.WriteString(fmt.Sprintf("    overflow [label=\"+%d more\", shape=plaintext];\n", len(nodes)-i))
			break
		}
		included[n.name] = true

		color := "#74b9ff"
		fontAttr := ""
		switch n.kind {
		case kindUpdate:
			color = "#ffd93d"
		case kindInput:
			color = "#10ac84"
			fontAttr = ", fontcolor=\"white\""
		}
		sb.WriteString(fmt.Sprintf("    %s [label=\"%s\", fillcolor=\"%s\"%s];\n",
			sanitizeDOTID(n.name), escapeDOTLabel(n.name), color, fontAttr))
	}

	sb.WriteString("\n")
	for _, caller := range g.SortedCallers() {
		if !included[caller] {
			continue
		}
		callerID := sanitizeDOTID(caller)
		callees, _ := g.Callees(caller)
		for _, callee := range callees {
			if !included[callee] {
				continue
			}
			sb.WriteString(fmt.Sprintf("    %s -> %s;\n", callerID, sanitizeDOTID(callee)))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// generateD3JSON creates D3.js compatible JSON.
func (r *Renderer) generateD3JSON(g *callgraph.Graph) (string, error) {
	type d3Node struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Kind string `json:"kind"`
	}

	type d3Link struct {
		Source string `json:"source"`
		Target string `json:"target"`
		Value  int    `json:"value"`
	}

	type d3Graph struct {
		Nodes []d3Node `json:"nodes"`
		Links []d3Link `json:"links"`
	}

	graph := d3Graph{
		Nodes: make([]d3Node, 0),
		Links: make([]d3Link, 0),
	}

	nodes := r.collectNodes(g)
	included := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		if i >= r.options.MaxNodes {
			break
		}
		included[n.name] = true
		graph.Nodes = append(graph.Nodes, d3Node{
			ID:   n.name,
			Name: n.name,
			Kind: n.kind,
		})
	}

	for _, caller := range g.SortedCallers() {
		if !included[caller] {
			continue
		}
		callees, _ := g.Callees(caller)
		for _, callee := range callees {
			if !included[callee] {
				continue
			}
			graph.Links = append(graph.Links, d3Link{
				Source: caller,
				Target: callee,
				Value:  1,
			})
		}
	}

	data, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// RenderDiff creates a combined Mermaid diagram of an actual and an
// expected graph, styling each caller by how the two disagree.
//
// # Description
//
// Callers present in both graphs with identical callee sets render as
// "match"; callers in both with differing callees render as "changed";
// callers only in the expected graph render as "missing"; callers only
// in the actual graph render as "extra". Edges present in the actual
// graph are solid, edges only in the expected graph are dashed.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - actual: The extracted graph.
//   - expected: The golden graph it was checked against.
//
// # Outputs
//
//   - string: A Mermaid flowchart.
//   - error: Non-nil on failure.
func (r *Renderer) RenderDiff(ctx context.Context, actual, expected *callgraph.Graph) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("context is required")
	}
	if actual == nil || expected == nil {
		return "", fmt.Errorf("both graphs are required")
	}

	classes := make(map[string]string)
	for _, caller := range expected.SortedCallers() {
		if !actual.HasCaller(caller) {
			classes[caller] = "missing"
			continue
		}
		if sameCallees(actual, expected, caller) {
			classes[caller] = "match"
		} else {
			classes[caller] = "changed"
		}
	}
	for _, caller := range actual.SortedCallers() {
		if !expected.HasCaller(caller) {
			classes[caller] = "extra"
		}
	}
	for _, g := range []*callgraph.Graph{actual, expected} {
		for _, caller := range g.Callers() {
			callees, _ := g.Callees(caller)
			for _, callee := range callees {
				if _, ok := classes[callee]; !ok {
					classes[callee] = kindInput
				}
			}
		}
	}

	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("flowchart %s\n", r.options.Direction))

	included := make(map[string]bool, len(names))
	for i, name := range names {
		if i >= r.options.MaxNodes {
			sb.WriteString(fmt.Sprintf("    more[\"...%d more stages\"]\n", len(names)-i))
			break
		}
		included[name] = true
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]:::%s\n",
			sanitizeMermaidID(name), escapeMermaidLabel(name), classes[name]))
	}

	// Solid edges come from the actual graph; expected-only edges are
	// dashed so a reviewer can see what the extraction failed to
	// record.
	sb.WriteString("\n")
	actualEdges := make(map[string]bool)
	for _, caller := range actual.SortedCallers() {
		if !included[caller] {
			continue
		}
		callerID := sanitizeMermaidID(caller)
		callees, _ := actual.Callees(caller)
		for _, callee := range callees {
			if !included[callee] {
				continue
			}
			actualEdges[caller+"->"+callee] = true
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", callerID, sanitizeMermaidID(callee)))
		}
	}
	for _, caller := range expected.SortedCallers() {
		if !included[caller] {
			continue
		}
		callerID := sanitizeMermaidID(caller)
		callees, _ := expected.Callees(caller)
		for _, callee := range callees {
			if !included[callee] || actualEdges[caller+"->"+callee] {
				continue
			}
			sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", callerID, sanitizeMermaidID(callee)))
		}
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef match fill:#10ac84,stroke:#333\n")
	sb.WriteString("    classDef changed fill:#ff9f43,stroke:#333,stroke-width:2px\n")
	sb.WriteString("    classDef missing fill:#ff6b6b,stroke:#333,stroke-width:2px,color:#fff\n")
	sb.WriteString("    classDef extra fill:#ffd93d,stroke:#333,stroke-width:2px\n")
	sb.WriteString("    classDef input fill:#dfe6e9,stroke:#333\n")

	return sb.String(), nil
}

// Mermaid renders a graph as a Mermaid flowchart. A nil graph renders
// as the empty string. Pass nil opts for defaults.
func Mermaid(g *callgraph.Graph, opts *RenderOptions) string {
	if g == nil {
		return ""
	}
	return NewRenderer(opts).generateMermaid(g)
}

// DOT renders a graph in Graphviz DOT format. A nil graph renders as
// the empty string. Pass nil opts for defaults.
func DOT(g *callgraph.Graph, opts *RenderOptions) string {
	if g == nil {
		return ""
	}
	return NewRenderer(opts).generateDOT(g)
}

// sameCallees reports whether a caller has the same callee set in both
// graphs, ignoring order.
func sameCallees(a, b *callgraph.Graph, caller string) bool {
	ac, _ := a.Callees(caller)
	bc, _ := b.Callees(caller)
	if len(ac) != len(bc) {
		return false
	}
	sort.Strings(ac)
	sort.Strings(bc)
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}

// Helper functions

func sanitizeMermaidID(s string) string {
	// Replace characters Mermaid treats as syntax
	replacer := strings.NewReplacer(
		".", "_",
		"-", "_",
		" ", "_",
		"$", "_",
		"(", "",
		")", "",
	)
	result := replacer.Replace(s)
	// Ensure starts with letter
	if len(result) > 0 && (result[0] >= '0' && result[0] <= '9') {
		result = "n" + result
	}
	return result
}

func sanitizeDOTID(s string) string {
	// DOT IDs can be quoted
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(s, "\"", "\\\""))
}

func escapeMermaidLabel(s string) string {
	replacer := strings.NewReplacer(
		"\"", "#quot;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(s)
}

func escapeDOTLabel(s string) string {
	replacer := strings.NewReplacer(
		"\"", "\\\"",
		"\n", "\\n",
	)
	return replacer.Replace(s)
}
