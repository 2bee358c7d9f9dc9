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
	"io"
	"strconv"
	"strings"
)

// =============================================================================
// Printer
// =============================================================================

// Fprint writes a deterministic rendering of the tree rooted at node
// to w.
//
// Statements render as indented lines, each ending in a newline.
// Expressions render single-line with no trailing newline. The
// rendering is stable across runs for the same tree, making it
// suitable for golden files and failure diagnostics. It is not a
// serialization format; there is no parser for it.
//
// Inputs:
//   - w: destination writer
//   - node: statement or expression to render; must be non-nil
//
// Outputs:
//   - error: ErrNilNode for a nil node, or the first write error
func Fprint(w io.Writer, node Node) error {
	if IsNil(node) {
		return ErrNilNode
	}
	switch n := node.(type) {
	case Expr:
		_, err := io.WriteString(w, exprString(n))
		return err
	case Stmt:
		p := &printer{w: w}
		p.stmt(n)
		return p.err
	default:
		return fmt.Errorf("unhandled node kind %T", node)
	}
}

// String renders the tree rooted at node to a string.
//
// Returns "<nil>" for a nil node so diagnostics never fail mid-format.
func String(node Node) string {
	if IsNil(node) {
		return "<nil>"
	}
	var sb strings.Builder
	_ = Fprint(&sb, node)
	return sb.String()
}

// printer accumulates indented lines and remembers the first write
// error so the render code stays free of error plumbing.
type printer struct {
	w      io.Writer
	indent int
	err    error
}

func (p *printer) line(s string) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("  ", p.indent), s)
}

// stmt renders a statement and its children.
func (p *printer) stmt(s Stmt) {
	if IsNil(s) {
		return
	}
	switch n := s.(type) {
	case *Produce:
		p.line("produce " + n.Stage + " {")
		p.indented(n.Body)
		p.line("}")
	case *Consume:
		p.line("consume " + n.Stage + " {")
		p.indented(n.Body)
		p.line("}")
	case *LetStmt:
		p.line("let " + n.Name + " = " + exprString(n.Value))
		p.stmt(n.Body)
	case *IfThenElse:
		p.line("if (" + exprString(n.Cond) + ") {")
		p.indented(n.Then)
		if !IsNil(n.Else) {
			p.line("} else {")
			p.indented(n.Else)
		}
		p.line("}")
	case *Block:
		p.stmt(n.First)
		p.stmt(n.Rest)
	case *For:
		keyword := "for"
		if n.Kind != Serial {
			keyword = n.Kind.String()
		}
		p.line(fmt.Sprintf("%s (%s, %s, %s) {", keyword, n.Name, exprString(n.Min), exprString(n.Extent)))
		p.indented(n.Body)
		p.line("}")
	case *Store:
		p.line(n.Stage + "[" + exprString(n.Index) + "] = " + exprString(n.Value))
	case *Allocate:
		extents := make([]string, len(n.Extents))
		for i, e := range n.Extents {
			extents[i] = exprString(e)
		}
		p.line("allocate " + n.Stage + "[" + strings.Join(extents, ", ") + "] {")
		p.indented(n.Body)
		p.line("}")
	case *Evaluate:
		p.line(exprString(n.Value))
	case *AssertStmt:
		p.line("assert(" + exprString(n.Cond) + ", " + strconv.Quote(n.Message) + ")")
	}
}

// indented renders body one level deeper.
func (p *printer) indented(body Stmt) {
	p.indent++
	p.stmt(body)
	p.indent--
}

// exprString renders an expression to a single-line string.
func exprString(e Expr) string {
	if IsNil(e) {
		return "<nil>"
	}
	switch n := e.(type) {
	case *IntImm:
		return strconv.FormatInt(n.Value, 10)
	case *FloatImm:
		return strconv.FormatFloat(n.Value, 'g', -1, 64)
	case *Variable:
		return n.Name
	case *Cast:
		return "cast(" + exprString(n.Value) + ")"
	case *Binary:
		switch n.Op {
		case Min, Max:
			return n.Op.String() + "(" + exprString(n.A) + ", " + exprString(n.B) + ")"
		default:
			return "(" + exprString(n.A) + " " + n.Op.String() + " " + exprString(n.B) + ")"
		}
	case *Compare:
		return "(" + exprString(n.A) + " " + n.Op.String() + " " + exprString(n.B) + ")"
	case *Not:
		return "!" + exprString(n.Value)
	case *Select:
		return "select(" + exprString(n.Cond) + ", " + exprString(n.TrueValue) + ", " + exprString(n.FalseValue) + ")"
	case *Ramp:
		return fmt.Sprintf("ramp(%s, %s, %d)", exprString(n.Base), exprString(n.Stride), n.Lanes)
	case *Broadcast:
		return fmt.Sprintf("broadcast(%s, %d)", exprString(n.Value), n.Lanes)
	case *Let:
		return "(let " + n.Name + " = " + exprString(n.Value) + " in " + exprString(n.Body) + ")"
	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = exprString(a)
		}
		return n.Name + "(" + strings.Join(args, ", ") + ")"
	case *Load:
		s := n.Stage + "[" + exprString(n.Index) + "]"
		if !IsNil(n.Predicate) {
			s += " if " + exprString(n.Predicate)
		}
		return s
	default:
		return fmt.Sprintf("<%T>", e)
	}
}
