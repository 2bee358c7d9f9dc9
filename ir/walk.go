// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ir

import (
	"fmt"
	"reflect"
)

// =============================================================================
// Traversal
// =============================================================================

// TraversalAction tells Walk how to proceed after a handler call.
type TraversalAction int

const (
	// ContinueTraversal visits the node's children normally.
	ContinueTraversal TraversalAction = iota

	// Prune skips the node's children but continues the walk.
	Prune

	// StopTraversal ends the whole walk immediately.
	StopTraversal
)

// Handler is called for each node during a walk.
//
// parent is nil for the root. Returning Prune from the pre handler skips
// the node's children; returning StopTraversal ends the walk. Actions
// returned by the post handler other than StopTraversal are ignored.
type Handler func(node, parent Node) (TraversalAction, error)

// Walk performs a pre-order, depth-first traversal of the tree rooted
// at root.
//
// pre is called before a node's children are visited and post after;
// either may be nil. Children are visited in source order: condition
// before branches, index before predicate, first before rest.
//
// Inputs:
//   - root: tree to walk; must be non-nil
//   - pre: handler called on entry to each node (may be nil)
//   - post: handler called after a node's children (may be nil)
//
// Outputs:
//   - error: ErrNilNode for a nil root, or the first error returned
//     by a handler
//
// The walk itself is single-threaded and has no suspension points; it
// always terminates because trees are finite and acyclic.
func Walk(root Node, pre, post Handler) error {
	if IsNil(root) {
		return ErrNilNode
	}
	_, err := walk(root, nil, pre, post)
	return err
}

// walk recurses into node. The bool result is true when the traversal
// should stop entirely.
func walk(node, parent Node, pre, post Handler) (bool, error) {
	if IsNil(node) {
		return false, nil
	}

	if pre != nil {
		action, err := pre(node, parent)
		if err != nil {
			return true, err
		}
		switch action {
		case StopTraversal:
			return true, nil
		case Prune:
			return false, nil
		}
	}

	children, err := childNodes(node)
	if err != nil {
		return true, err
	}
	for _, child := range children {
		stop, err := walk(child, node, pre, post)
		if err != nil || stop {
			return stop, err
		}
	}

	if post != nil {
		action, err := post(node, parent)
		if err != nil {
			return true, err
		}
		if action == StopTraversal {
			return true, nil
		}
	}
	return false, nil
}

// childNodes returns the children of node in source order.
//
// The type switch is exhaustive over the closed kind set; a kind added
// to the package without a case here is reported as an error rather
// than silently skipped.
func childNodes(node Node) ([]Node, error) {
	switch n := node.(type) {
	// Statements
	case *Produce:
		return []Node{n.Body}, nil
	case *Consume:
		return []Node{n.Body}, nil
	case *LetStmt:
		return []Node{n.Value, n.Body}, nil
	case *IfThenElse:
		return []Node{n.Cond, n.Then, n.Else}, nil
	case *Block:
		return []Node{n.First, n.Rest}, nil
	case *For:
		return []Node{n.Min, n.Extent, n.Body}, nil
	case *Store:
		return []Node{n.Index, n.Value}, nil
	case *Allocate:
		children := make([]Node, 0, len(n.Extents)+1)
		for _, e := range n.Extents {
			children = append(children, e)
		}
		return append(children, n.Body), nil
	case *Evaluate:
		return []Node{n.Value}, nil
	case *AssertStmt:
		return []Node{n.Cond}, nil

	// Expressions
	case *IntImm, *FloatImm, *Variable:
		return nil, nil
	case *Cast:
		return []Node{n.Value}, nil
	case *Binary:
		return []Node{n.A, n.B}, nil
	case *Compare:
		return []Node{n.A, n.B}, nil
	case *Not:
		return []Node{n.Value}, nil
	case *Select:
		return []Node{n.Cond, n.TrueValue, n.FalseValue}, nil
	case *Ramp:
		return []Node{n.Base, n.Stride}, nil
	case *Broadcast:
		return []Node{n.Value}, nil
	case *Let:
		return []Node{n.Value, n.Body}, nil
	case *Call:
		children := make([]Node, 0, len(n.Args))
		for _, a := range n.Args {
			children = append(children, a)
		}
		return children, nil
	case *Load:
		return []Node{n.Index, n.Predicate}, nil

	default:
		return nil, fmt.Errorf("unhandled node kind %T", node)
	}
}

// IsNil reports whether node is nil, including a typed nil pointer
// stored in the interface.
func IsNil(node Node) bool {
	if node == nil {
		return true
	}
	v := reflect.ValueOf(node)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// =============================================================================
// Utilities
// =============================================================================

// Producers returns the stage names of all Produce nodes under root in
// pre-order. Names repeat if a stage is produced in more than one place.
func Producers(root Node) []string {
	var names []string
	_ = Walk(root, func(node, parent Node) (TraversalAction, error) {
		if p, ok := node.(*Produce); ok {
			names = append(names, p.Stage)
		}
		return ContinueTraversal, nil
	}, nil)
	return names
}

// CountNodes returns the number of nodes under root, root included.
func CountNodes(root Node) int {
	count := 0
	_ = Walk(root, func(node, parent Node) (TraversalAction, error) {
		count++
		return ContinueTraversal, nil
	}, nil)
	return count
}
