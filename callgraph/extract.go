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
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/stagewalk/ir"
	"github.com/AleutianAI/stagewalk/pkg/logging"
	"github.com/AleutianAI/stagewalk/stage"
)

// =============================================================================
// EXTRACTOR
// =============================================================================

// Extractor recovers the stage call graph from a lowered statement tree.
//
// The walk attributes every buffer read (ir.Load) to the producer scope
// it occurs under. Producer bodies of stages with update definitions are
// split into their initialization and update parts, and reads in the
// update part are attributed to the stage's update identifier
// (UpdateCaller) instead of the stage itself. See splitProducerBody for
// the split rules.
//
// Thread Safety: safe for concurrent use. Each Extract call allocates
// its own traversal state; the registry is read-only.
type Extractor struct {
	registry  *stage.Registry
	logger    *logging.Logger
	graphOpts []GraphOption
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets the logger used for debug tracing of the walk.
func WithLogger(logger *logging.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithGraphOptions sets the options applied to every graph the
// extractor builds, such as WithMaxCallers.
func WithGraphOptions(opts ...GraphOption) ExtractorOption {
	return func(e *Extractor) {
		e.graphOpts = append(e.graphOpts, opts...)
	}
}

// NewExtractor creates an extractor bound to a stage registry.
//
// Inputs:
//
//	reg - Registry naming every stage that may appear as a producer
//	opts - Optional configuration
//
// Outputs:
//
//	*Extractor - Configured extractor
//	error - ErrNilRegistry if reg is nil
func NewExtractor(reg *stage.Registry, opts ...ExtractorOption) (*Extractor, error) {
	if reg == nil {
		return nil, ErrNilRegistry
	}
	e := &Extractor{registry: reg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	return e, nil
}

// Extract walks root and returns the frozen call graph it implies.
//
// Description:
//
//	Performs a single linear pass over the tree. Every producer scope
//	yields a caller entry (empty if the scope reads nothing); every
//	read under a scope appends the read stage to the scope's callee
//	list on first occurrence. A producer naming a stage absent from
//	the registry aborts the walk.
//
// Inputs:
//
//	ctx - Context for trace/metric attribution only; the walk itself
//	      has no cancellation points
//	root - Root of the lowered statement tree
//
// Outputs:
//
//	*Graph - Frozen call graph
//	error - ErrNilTree, ErrUnknownProducer, or a graph capacity error
func (e *Extractor) Extract(ctx context.Context, root ir.Stmt) (*Graph, error) {
	if ir.IsNil(root) {
		return nil, ErrNilTree
	}

	ctx, span := startExtractSpan(ctx, e.registry.Len())
	defer span.End()

	start := time.Now()
	w := &walker{
		graph:    NewGraph(e.graphOpts...),
		registry: e.registry,
		logger:   e.logger,
	}

	if err := w.stmt(root, ""); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordExtractMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, err
	}

	w.graph.Freeze()

	setExtractSpanResult(span, w.graph.Len(), w.graph.EdgeCount(), w.nodes)
	span.SetStatus(codes.Ok, "")
	recordExtractMetrics(ctx, time.Since(start), w.graph.Len(), w.graph.EdgeCount(), true)
	e.logger.Debug("extraction complete",
		"callers", w.graph.Len(),
		"edges", w.graph.EdgeCount(),
		"nodes_walked", w.nodes,
	)

	return w.graph, nil
}

// Extract is a convenience wrapper that builds a one-shot extractor.
func Extract(ctx context.Context, root ir.Stmt, reg *stage.Registry) (*Graph, error) {
	e, err := NewExtractor(reg)
	if err != nil {
		return nil, err
	}
	return e.Extract(ctx, root)
}

// =============================================================================
// WALK
// =============================================================================

// walker carries the per-extraction traversal state. The current
// producer is threaded as an explicit parameter through the recursion
// so scope save/restore is the call stack itself.
type walker struct {
	graph    *Graph
	registry *stage.Registry
	logger   *logging.Logger
	nodes    int
}

// stmt dispatches on a statement kind, attributing reads to producer.
func (w *walker) stmt(s ir.Stmt, producer string) error {
	if ir.IsNil(s) {
		return nil
	}
	w.nodes++

	switch n := s.(type) {
	case *ir.Produce:
		return w.produce(n, producer)
	case *ir.Consume:
		return w.stmt(n.Body, producer)
	case *ir.LetStmt:
		if err := w.expr(n.Value, producer); err != nil {
			return err
		}
		return w.stmt(n.Body, producer)
	case *ir.IfThenElse:
		if err := w.expr(n.Cond, producer); err != nil {
			return err
		}
		if err := w.stmt(n.Then, producer); err != nil {
			return err
		}
		return w.stmt(n.Else, producer)
	case *ir.Block:
		if err := w.stmt(n.First, producer); err != nil {
			return err
		}
		return w.stmt(n.Rest, producer)
	case *ir.For:
		if err := w.expr(n.Min, producer); err != nil {
			return err
		}
		if err := w.expr(n.Extent, producer); err != nil {
			return err
		}
		return w.stmt(n.Body, producer)
	case *ir.Store:
		if err := w.expr(n.Index, producer); err != nil {
			return err
		}
		return w.expr(n.Value, producer)
	case *ir.Allocate:
		for _, extent := range n.Extents {
			if err := w.expr(extent, producer); err != nil {
				return err
			}
		}
		return w.stmt(n.Body, producer)
	case *ir.Evaluate:
		return w.expr(n.Value, producer)
	case *ir.AssertStmt:
		return w.expr(n.Cond, producer)
	default:
		return fmt.Errorf("unhandled statement kind %T", s)
	}
}

// expr dispatches on an expression kind, attributing reads to producer.
func (w *walker) expr(e ir.Expr, producer string) error {
	if ir.IsNil(e) {
		return nil
	}
	w.nodes++

	switch n := e.(type) {
	case *ir.IntImm, *ir.FloatImm, *ir.Variable:
		return nil
	case *ir.Cast:
		return w.expr(n.Value, producer)
	case *ir.Binary:
		if err := w.expr(n.A, producer); err != nil {
			return err
		}
		return w.expr(n.B, producer)
	case *ir.Compare:
		if err := w.expr(n.A, producer); err != nil {
			return err
		}
		return w.expr(n.B, producer)
	case *ir.Not:
		return w.expr(n.Value, producer)
	case *ir.Select:
		if err := w.expr(n.Cond, producer); err != nil {
			return err
		}
		if err := w.expr(n.TrueValue, producer); err != nil {
			return err
		}
		return w.expr(n.FalseValue, producer)
	case *ir.Ramp:
		if err := w.expr(n.Base, producer); err != nil {
			return err
		}
		return w.expr(n.Stride, producer)
	case *ir.Broadcast:
		return w.expr(n.Value, producer)
	case *ir.Let:
		if err := w.expr(n.Value, producer); err != nil {
			return err
		}
		return w.expr(n.Body, producer)
	case *ir.Call:
		for _, arg := range n.Args {
			if err := w.expr(arg, producer); err != nil {
				return err
			}
		}
		return nil
	case *ir.Load:
		return w.load(n, producer)
	default:
		return fmt.Errorf("unhandled expression kind %T", e)
	}
}

// load records a read edge after walking the load's own operands, so a
// read nested in an index takes its callee-list position first.
func (w *walker) load(n *ir.Load, producer string) error {
	if err := w.expr(n.Index, producer); err != nil {
		return err
	}
	if err := w.expr(n.Predicate, producer); err != nil {
		return err
	}
	if producer == "" {
		// Read outside any producer scope; nothing to attribute.
		return nil
	}
	return w.graph.AddCallee(producer, n.Stage)
}

// produce enters a producer scope, splitting the body into its
// initialization and update parts when the stage has updates.
func (w *walker) produce(n *ir.Produce, producer string) error {
	st, ok := w.registry.Lookup(n.Stage)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProducer, n.Stage)
	}

	init := n.Body
	var update ir.Stmt
	if st.HasUpdates() {
		init, update = splitProducerBody(n.Body)
	}

	w.logger.Debug("entering producer scope",
		"stage", n.Stage,
		"has_update", !ir.IsNil(update),
	)

	// The entry is created before the part is walked: a scope that
	// reads nothing still appears in the graph.
	if err := w.graph.EnsureCaller(n.Stage); err != nil {
		return err
	}
	if err := w.stmt(init, n.Stage); err != nil {
		return err
	}

	if !ir.IsNil(update) {
		// All update stages are lumped under the index-0 identifier.
		caller := UpdateCaller(n.Stage)
		if err := w.graph.EnsureCaller(caller); err != nil {
			return err
		}
		if err := w.stmt(update, caller); err != nil {
			return err
		}
	}

	return nil
}

// splitProducerBody splits the body of a producer whose stage has
// update definitions into (init, update).
//
// Lowering emits such a body as Block{init, updates}, wrapped in any
// number of LetStmt bindings and IfThenElse specialization guards. The
// split peels wrappers — descending LetStmt bodies and IfThenElse
// then-branches only — until it reaches a Block, then returns its two
// halves. The peeled wrappers themselves are not part of either half,
// so reads in let values and guard conditions are deliberately
// unattributed.
//
// If peeling bottoms out without finding a Block the body is returned
// whole as the initialization, with no update part. Callers treat that
// as "nothing was peeled", not as an error.
func splitProducerBody(body ir.Stmt) (ir.Stmt, ir.Stmt) {
	s := body
	for {
		switch n := s.(type) {
		case *ir.LetStmt:
			s = n.Body
		case *ir.IfThenElse:
			s = n.Then
		case *ir.Block:
			return n.First, n.Rest
		default:
			return body, nil
		}
	}
}
