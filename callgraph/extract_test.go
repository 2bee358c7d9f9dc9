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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/stagewalk/ir"
	"github.com/AleutianAI/stagewalk/pkg/logging"
	"github.com/AleutianAI/stagewalk/stage"
)

// mustRegistry builds a registry from stage name to update count.
func mustRegistry(t *testing.T, counts map[string]int) *stage.Registry {
	t.Helper()
	reg, err := stage.FromCounts(counts)
	require.NoError(t, err)
	return reg
}

// loadOf is a load of stage at a plain loop-variable index.
func loadOf(name string) *ir.Load {
	return &ir.Load{Stage: name, Index: &ir.Variable{Name: "x"}}
}

// storeLoop is the shape lowering emits for a pointwise definition: a
// serial loop storing value into stage at the loop variable.
func storeLoop(name string, value ir.Expr) ir.Stmt {
	return &ir.For{
		Name:   "x",
		Min:    &ir.IntImm{Value: 0},
		Extent: &ir.IntImm{Value: 200},
		Kind:   ir.Serial,
		Body: &ir.Store{
			Stage: name,
			Index: &ir.Variable{Name: "x"},
			Value: value,
		},
	}
}

// callees fetches a caller's callee list, failing the test if the
// entry is absent.
func callees(t *testing.T, g *Graph, caller string) []string {
	t.Helper()
	got, ok := g.Callees(caller)
	require.True(t, ok, "caller %q has no entry; callers: %v", caller, g.Callers())
	return got
}

func TestNewExtractor_NilRegistry(t *testing.T) {
	e, err := NewExtractor(nil)
	require.ErrorIs(t, err, ErrNilRegistry)
	assert.Nil(t, e)
}

func TestExtract_NilTree(t *testing.T) {
	reg := mustRegistry(t, map[string]int{"g": 0})
	e, err := NewExtractor(reg)
	require.NoError(t, err)

	g, err := e.Extract(context.Background(), nil)
	require.ErrorIs(t, err, ErrNilTree)
	assert.Nil(t, g)

	var typedNil *ir.Produce
	g, err = e.Extract(context.Background(), typedNil)
	require.ErrorIs(t, err, ErrNilTree)
	assert.Nil(t, g)
}

func TestExtract_SingleProducer(t *testing.T) {
	reg := mustRegistry(t, map[string]int{"g": 0})
	tree := &ir.Produce{Stage: "g", Body: storeLoop("g", loadOf("img"))}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	assert.True(t, g.Frozen(), "extraction must return a frozen graph")
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, []string{"img"}, callees(t, g, "g"))
}

func TestExtract_ScopeSaveRestore(t *testing.T) {
	// produce h {
	//   produce g { g[x] = img[x] }
	//   consume g { h[x] = g[x] }
	// }
	// The inner scope must not leak: h's read of g lands on h.
	reg := mustRegistry(t, map[string]int{"g": 0, "h": 0})
	tree := &ir.Produce{
		Stage: "h",
		Body: &ir.Block{
			First: &ir.Produce{Stage: "g", Body: storeLoop("g", loadOf("img"))},
			Rest: &ir.Consume{
				Stage: "g",
				Body:  storeLoop("h", loadOf("g")),
			},
		},
	}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"g"}, callees(t, g, "h"))
	assert.Equal(t, []string{"img"}, callees(t, g, "g"))
	assert.Equal(t, 2, g.Len())
}

func TestExtract_EmptyProducerEntry(t *testing.T) {
	// A producer that reads nothing still gets an entry.
	reg := mustRegistry(t, map[string]int{"g": 0})
	tree := &ir.Produce{Stage: "g", Body: storeLoop("g", &ir.IntImm{Value: 10})}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	got := callees(t, g, "g")
	assert.Empty(t, got)
	assert.Equal(t, 1, g.Len())
}

func TestExtract_DedupFirstOccurrence(t *testing.T) {
	// g reads img, f, img, f: the list is [img, f].
	reg := mustRegistry(t, map[string]int{"g": 0})
	value := &ir.Binary{
		Op: ir.Add,
		A:  &ir.Binary{Op: ir.Add, A: loadOf("img"), B: loadOf("f")},
		B:  &ir.Binary{Op: ir.Add, A: loadOf("img"), B: loadOf("f")},
	}
	tree := &ir.Produce{Stage: "g", Body: storeLoop("g", value)}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"img", "f"}, callees(t, g, "g"))
}

func TestExtract_LoadInsideLoadIndex(t *testing.T) {
	// g[x] = img[f[x]]: the inner load is recorded before the outer.
	reg := mustRegistry(t, map[string]int{"g": 0})
	gather := &ir.Load{Stage: "img", Index: loadOf("f")}
	tree := &ir.Produce{Stage: "g", Body: storeLoop("g", gather)}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"f", "img"}, callees(t, g, "g"))
}

func TestExtract_UnknownProducer(t *testing.T) {
	reg := mustRegistry(t, map[string]int{"g": 0})
	tree := &ir.Produce{
		Stage: "g",
		Body: &ir.Produce{
			Stage: "phantom",
			Body:  storeLoop("phantom", loadOf("img")),
		},
	}

	g, err := Extract(context.Background(), tree, reg)
	require.ErrorIs(t, err, ErrUnknownProducer)
	assert.ErrorContains(t, err, "phantom")
	assert.Nil(t, g, "a failed walk returns no graph")
}

func TestExtract_TopLevelLoadsIgnored(t *testing.T) {
	// Asserts and evaluates outside any producer scope read buffers,
	// but there is no caller to attribute them to.
	reg := mustRegistry(t, map[string]int{"g": 0})
	tree := &ir.Block{
		First: &ir.AssertStmt{
			Cond:    &ir.Compare{Op: ir.GE, A: loadOf("img"), B: &ir.IntImm{Value: 0}},
			Message: "img out of range",
		},
		Rest: &ir.Produce{Stage: "g", Body: storeLoop("g", loadOf("img"))},
	}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	assert.Equal(t, 1, g.Len(), "only the producer scope yields an entry")
	assert.Equal(t, []string{"img"}, callees(t, g, "g"))
}

func TestExtract_UpdateSplit(t *testing.T) {
	// produce g { { init; update } } with one registered update: the
	// update's reads land on g.update(0), including the self-read.
	reg := mustRegistry(t, map[string]int{"g": 1, "w": 0})
	tree := &ir.Produce{
		Stage: "g",
		Body: &ir.Block{
			First: storeLoop("g", loadOf("w")),
			Rest: storeLoop("g", &ir.Binary{
				Op: ir.Add,
				A:  loadOf("g"),
				B:  loadOf("w"),
			}),
		},
	}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"w"}, callees(t, g, "g"))
	assert.Equal(t, []string{"g", "w"}, callees(t, g, "g.update(0)"))
	assert.Equal(t, 2, g.Len())
}

func TestExtract_UpdateCollapse(t *testing.T) {
	// Two update definitions lower as Block{init, Block{upd0, upd1}}.
	// Both updates land on the single g.update(0) entry, deduped, in
	// first-occurrence order across the whole update part.
	reg := mustRegistry(t, map[string]int{"g": 2})
	tree := &ir.Produce{
		Stage: "g",
		Body: &ir.Block{
			First: storeLoop("g", &ir.IntImm{Value: 10}),
			Rest: &ir.Block{
				First: storeLoop("g", &ir.Binary{Op: ir.Add, A: loadOf("g"), B: loadOf("a")}),
				Rest:  storeLoop("g", &ir.Binary{Op: ir.Add, A: loadOf("g"), B: loadOf("b")}),
			},
		},
	}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	assert.Empty(t, callees(t, g, "g"))
	assert.Equal(t, []string{"g", "a", "b"}, callees(t, g, "g.update(0)"))
	assert.Equal(t, 2, g.Len(), "all updates share one caller entry")
	assert.False(t, g.HasCaller("g.update(1)"))
}

func TestExtract_PeelSkipsWrappers(t *testing.T) {
	// Specialization wraps the init/update block in a let and a guard:
	//
	//   produce g {
	//     let t0 = f[x]            <- read in peeled value: skipped
	//     if (p[x] != 0) {         <- read in peeled guard: skipped
	//       { init; update }
	//     } else {
	//       q[x]                   <- read in untaken peel branch: skipped
	//     }
	//   }
	//
	// Peeling positions the split at the then-branch block; the peeled
	// wrappers themselves are never walked.
	reg := mustRegistry(t, map[string]int{"g": 1, "w": 0})
	tree := &ir.Produce{
		Stage: "g",
		Body: &ir.LetStmt{
			Name:  "t0",
			Value: loadOf("f"),
			Body: &ir.IfThenElse{
				Cond: &ir.Compare{Op: ir.NE, A: loadOf("p"), B: &ir.IntImm{Value: 0}},
				Then: &ir.Block{
					First: storeLoop("g", loadOf("w")),
					Rest:  storeLoop("g", &ir.Binary{Op: ir.Add, A: loadOf("g"), B: loadOf("w")}),
				},
				Else: &ir.Evaluate{Value: loadOf("q")},
			},
		},
	}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"w"}, callees(t, g, "g"))
	assert.Equal(t, []string{"g", "w"}, callees(t, g, "g.update(0)"))
	for _, caller := range g.Callers() {
		got, _ := g.Callees(caller)
		assert.NotContains(t, got, "f", "peeled let value leaked into %s", caller)
		assert.NotContains(t, got, "p", "peeled guard condition leaked into %s", caller)
		assert.NotContains(t, got, "q", "peeled else branch leaked into %s", caller)
	}
}

func TestExtract_NoBlockFallback(t *testing.T) {
	// The registry claims an update but the body peels to a loop, not
	// a block. The whole original body, wrappers included, walks as
	// the initialization and no update entry appears.
	reg := mustRegistry(t, map[string]int{"g": 1})
	tree := &ir.Produce{
		Stage: "g",
		Body: &ir.LetStmt{
			Name:  "t0",
			Value: loadOf("f"),
			Body:  storeLoop("g", loadOf("w")),
		},
	}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	assert.Equal(t, 1, g.Len())
	assert.False(t, g.HasCaller("g.update(0)"))
	// The let value is part of the walked body in the fallback.
	assert.Equal(t, []string{"f", "w"}, callees(t, g, "g"))
}

func TestExtract_ElseBranchWalkedWithoutUpdates(t *testing.T) {
	// Peeling only applies to stages with updates. A plain conditional
	// in an update-free producer walks both branches and the guard.
	reg := mustRegistry(t, map[string]int{"g": 0})
	tree := &ir.Produce{
		Stage: "g",
		Body: &ir.IfThenElse{
			Cond: &ir.Compare{Op: ir.LT, A: loadOf("p"), B: &ir.IntImm{Value: 50}},
			Then: storeLoop("g", loadOf("a")),
			Else: storeLoop("g", loadOf("b")),
		},
	}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"p", "a", "b"}, callees(t, g, "g"))
}

func TestExtract_LoadInUpdatePredicate(t *testing.T) {
	// A guard inside the update part is not a peeled wrapper: its
	// condition reads are attributed to the update caller.
	reg := mustRegistry(t, map[string]int{"g": 1})
	tree := &ir.Produce{
		Stage: "g",
		Body: &ir.Block{
			First: storeLoop("g", &ir.IntImm{Value: 10}),
			Rest: &ir.For{
				Name:   "r",
				Min:    &ir.IntImm{Value: 0},
				Extent: &ir.IntImm{Value: 100},
				Kind:   ir.Serial,
				Body: &ir.IfThenElse{
					Cond: &ir.Compare{Op: ir.LT, A: loadOf("p"), B: &ir.IntImm{Value: 50}},
					Then: &ir.Store{
						Stage: "g",
						Index: &ir.Variable{Name: "r"},
						Value: &ir.Binary{Op: ir.Add, A: loadOf("g"), B: loadOf("h")},
					},
				},
			},
		},
	}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	assert.Empty(t, callees(t, g, "g"))
	assert.Equal(t, []string{"p", "g", "h"}, callees(t, g, "g.update(0)"))
}

func TestExtract_VectorizedLoad(t *testing.T) {
	// Reads stay attributed under vector shapes: ramp indices,
	// broadcast operands, and predicated loads.
	reg := mustRegistry(t, map[string]int{"g": 0})
	tree := &ir.Produce{
		Stage: "g",
		Body: &ir.For{
			Name:   "x.v",
			Min:    &ir.IntImm{Value: 0},
			Extent: &ir.IntImm{Value: 8},
			Kind:   ir.Vectorized,
			Body: &ir.Store{
				Stage: "g",
				Index: &ir.Ramp{Base: &ir.Variable{Name: "x.v"}, Stride: &ir.IntImm{Value: 1}, Lanes: 8},
				Value: &ir.Binary{
					Op: ir.Mul,
					A: &ir.Load{
						Stage:     "img",
						Index:     &ir.Ramp{Base: &ir.Variable{Name: "x.v"}, Stride: &ir.IntImm{Value: 1}, Lanes: 8},
						Predicate: &ir.Broadcast{Value: loadOf("mask"), Lanes: 8},
					},
					B: &ir.Broadcast{Value: &ir.IntImm{Value: 2}, Lanes: 8},
				},
			},
		},
	}

	g, err := Extract(context.Background(), tree, reg)
	require.NoError(t, err)

	// Index and predicate walk before the load itself records.
	assert.Equal(t, []string{"mask", "img"}, callees(t, g, "g"))
}

func TestExtract_Idempotent(t *testing.T) {
	reg := mustRegistry(t, map[string]int{"g": 0, "h": 0})
	tree := &ir.Produce{
		Stage: "h",
		Body: &ir.Block{
			First: &ir.Produce{Stage: "g", Body: storeLoop("g", loadOf("img"))},
			Rest:  storeLoop("h", loadOf("g")),
		},
	}

	e, err := NewExtractor(reg)
	require.NoError(t, err)

	first, err := e.Extract(context.Background(), tree)
	require.NoError(t, err)
	second, err := e.Extract(context.Background(), tree)
	require.NoError(t, err)

	assert.Nil(t, Compare(first, second), "re-walking the same tree must agree")
	assert.Equal(t, first.Callers(), second.Callers(), "insertion order must be stable")
}

func TestExtract_GraphOptionsPropagate(t *testing.T) {
	reg := mustRegistry(t, map[string]int{"g": 0, "h": 0})
	tree := &ir.Block{
		First: &ir.Produce{Stage: "g", Body: storeLoop("g", loadOf("img"))},
		Rest:  &ir.Produce{Stage: "h", Body: storeLoop("h", loadOf("g"))},
	}

	e, err := NewExtractor(reg, WithGraphOptions(WithMaxCallers(1)))
	require.NoError(t, err)

	g, err := e.Extract(context.Background(), tree)
	require.ErrorIs(t, err, ErrMaxCallersExceeded)
	assert.Nil(t, g)
}

func TestExtract_DebugLogging(t *testing.T) {
	exporter := logging.NewBufferedExporter()
	logger := logging.New(logging.Config{
		Level:    logging.LevelDebug,
		Quiet:    true,
		Service:  "extract-test",
		Exporter: exporter,
	})
	defer logger.Close()

	reg := mustRegistry(t, map[string]int{"g": 0})
	tree := &ir.Produce{Stage: "g", Body: storeLoop("g", loadOf("img"))}

	e, err := NewExtractor(reg, WithLogger(logger))
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), tree)
	require.NoError(t, err)

	// Exports are asynchronous.
	require.Eventually(t, func() bool {
		for _, entry := range exporter.Entries() {
			if entry.Message == "entering producer scope" && entry.Attrs["stage"] == "g" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond, "expected a producer-scope debug entry")
}

func TestSplitProducerBody(t *testing.T) {
	initStmt := storeLoop("g", &ir.IntImm{Value: 0})
	updateStmt := storeLoop("g", loadOf("g"))

	t.Run("bare block", func(t *testing.T) {
		gotInit, gotUpdate := splitProducerBody(&ir.Block{First: initStmt, Rest: updateStmt})
		assert.Same(t, initStmt, gotInit)
		assert.Same(t, updateStmt, gotUpdate)
	})

	t.Run("wrapped block", func(t *testing.T) {
		body := &ir.LetStmt{
			Name:  "t0",
			Value: &ir.IntImm{Value: 1},
			Body: &ir.IfThenElse{
				Cond: &ir.Variable{Name: "p"},
				Then: &ir.LetStmt{
					Name:  "t1",
					Value: &ir.IntImm{Value: 2},
					Body:  &ir.Block{First: initStmt, Rest: updateStmt},
				},
				Else: updateStmt,
			},
		}
		gotInit, gotUpdate := splitProducerBody(body)
		assert.Same(t, initStmt, gotInit)
		assert.Same(t, updateStmt, gotUpdate)
	})

	t.Run("peel bottoms out", func(t *testing.T) {
		body := &ir.LetStmt{Name: "t0", Value: &ir.IntImm{Value: 1}, Body: initStmt}
		gotInit, gotUpdate := splitProducerBody(body)
		assert.Same(t, body, gotInit, "fallback returns the original body, not the peeled one")
		assert.Nil(t, gotUpdate)
	})

	t.Run("else branch never steers the peel", func(t *testing.T) {
		body := &ir.IfThenElse{
			Cond: &ir.Variable{Name: "p"},
			Then: initStmt,
			Else: &ir.Block{First: initStmt, Rest: updateStmt},
		}
		gotInit, gotUpdate := splitProducerBody(body)
		assert.Same(t, body, gotInit)
		assert.Nil(t, gotUpdate)
	})
}
