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

// =============================================================================
// Node Interfaces
// =============================================================================

// Node is the interface implemented by every statement and expression
// kind in the lowered tree.
//
// The marker method is unexported, so the set of kinds is closed to this
// package. Exhaustive type switches over Node (or over Stmt/Expr) are
// the intended dispatch mechanism; see Walk for the canonical one.
type Node interface {
	isNode()
}

// Stmt marks statement kinds: constructs executed for effect, such as
// loops, producer regions, stores, and sequencing.
type Stmt interface {
	Node
	isStmt()
}

// Expr marks expression kinds: constructs evaluated for a value, such
// as immediates, arithmetic, and buffer loads.
type Expr interface {
	Node
	isExpr()
}

// =============================================================================
// Enumerations
// =============================================================================

// ForKind describes how a loop's iterations are emitted.
//
// The call-graph analysis treats all loop kinds identically; the kind is
// carried so trees reproduce what the compiler lowered (a vectorized
// tile loop walks the same as a serial one).
type ForKind int

const (
	// Serial iterations run one after another.
	Serial ForKind = iota

	// Parallel iterations may run concurrently.
	Parallel

	// Vectorized iterations are fused into SIMD lanes.
	Vectorized

	// Unrolled iterations are expanded inline.
	Unrolled
)

// forKindNames maps ForKind values to their string representations.
var forKindNames = map[ForKind]string{
	Serial:     "serial",
	Parallel:   "parallel",
	Vectorized: "vectorized",
	Unrolled:   "unrolled",
}

// String returns the human-readable name of the loop kind.
func (k ForKind) String() string {
	if name, ok := forKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// BinaryOp identifies an arithmetic operator in a Binary expression.
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	Min
	Max
)

// binaryOpNames maps BinaryOp values to their rendered form.
var binaryOpNames = map[BinaryOp]string{
	Add: "+",
	Sub: "-",
	Mul: "*",
	Div: "/",
	Mod: "%",
	Min: "min",
	Max: "max",
}

// String returns the rendered form of the operator.
func (op BinaryOp) String() string {
	if name, ok := binaryOpNames[op]; ok {
		return name
	}
	return "?"
}

// CompareOp identifies a comparison operator in a Compare expression.
type CompareOp int

const (
	EQ CompareOp = iota
	NE
	LT
	LE
	GT
	GE
)

// compareOpNames maps CompareOp values to their rendered form.
var compareOpNames = map[CompareOp]string{
	EQ: "==",
	NE: "!=",
	LT: "<",
	LE: "<=",
	GT: ">",
	GE: ">=",
}

// String returns the rendered form of the operator.
func (op CompareOp) String() string {
	if name, ok := compareOpNames[op]; ok {
		return name
	}
	return "?"
}

// =============================================================================
// Statements
// =============================================================================

// Produce marks the region of the tree that computes a stage.
//
// Every read (Load) that occurs under Body is attributed to Stage by the
// call-graph extractor, until a nested Produce re-attributes its own
// subtree. For a stage with update definitions the compiler lowers Body
// as a two-element Block: the initialization statement first, then the
// update statements, possibly wrapped in LetStmt bindings and an
// IfThenElse guard emitted by specialization.
type Produce struct {
	// Stage is the name of the stage being computed. It must be
	// registered in the stage registry handed to the extractor.
	Stage string

	// Body is the statement subtree that computes the stage.
	Body Stmt
}

// Consume marks the region of the tree where a computed stage is live.
//
// The analysis does not distinguish consume regions from plain nesting;
// the node is carried so lowered trees round-trip faithfully.
type Consume struct {
	// Stage is the name of the stage whose storage is live in Body.
	Stage string

	// Body is the statement subtree within the consume region.
	Body Stmt
}

// LetStmt binds a scalar value to a name for the duration of Body.
//
// Let bindings are transparent to producer attribution: the extractor
// peels them when splitting a producer body into its initialization and
// update parts.
type LetStmt struct {
	Name  string
	Value Expr
	Body  Stmt
}

// IfThenElse executes Then or Else depending on Cond.
//
// Else may be nil. Specialization lowers a specialized pipeline as an
// IfThenElse whose then-branch holds the specialized body.
type IfThenElse struct {
	Cond Expr
	Then Stmt
	Else Stmt
}

// Block sequences exactly two statements.
//
// Longer sequences are lowered as right-nested blocks:
// Block{a, Block{b, c}}. A producer body whose stage has updates is a
// Block whose First is the initialization and whose Rest holds the
// update statements.
type Block struct {
	First Stmt
	Rest  Stmt
}

// For executes Body once per iteration of a loop variable.
type For struct {
	// Name is the loop variable name.
	Name string

	// Min is the first value of the loop variable.
	Min Expr

	// Extent is the number of iterations.
	Extent Expr

	// Kind describes how iterations are emitted.
	Kind ForKind

	// Body is the loop body.
	Body Stmt
}

// Store writes Value to the buffer of Stage at Index.
//
// Stores identify the destination stage syntactically; they do not
// create call-graph edges. Reads are what establish dependencies.
type Store struct {
	Stage string
	Index Expr
	Value Expr
}

// Allocate introduces storage for Stage for the duration of Body.
type Allocate struct {
	Stage   string
	Extents []Expr
	Body    Stmt
}

// Evaluate executes an expression for its effect and discards the value.
type Evaluate struct {
	Value Expr
}

// AssertStmt checks a precondition emitted by the compiler.
//
// Asserts appear at the top of lowered pipelines (bounds checks, input
// constraint checks). The analysis recurses into Cond like any other
// expression position.
type AssertStmt struct {
	Cond    Expr
	Message string
}

func (*Produce) isNode()    {}
func (*Consume) isNode()    {}
func (*LetStmt) isNode()    {}
func (*IfThenElse) isNode() {}
func (*Block) isNode()      {}
func (*For) isNode()        {}
func (*Store) isNode()      {}
func (*Allocate) isNode()   {}
func (*Evaluate) isNode()   {}
func (*AssertStmt) isNode() {}

func (*Produce) isStmt()    {}
func (*Consume) isStmt()    {}
func (*LetStmt) isStmt()    {}
func (*IfThenElse) isStmt() {}
func (*Block) isStmt()      {}
func (*For) isStmt()        {}
func (*Store) isStmt()      {}
func (*Allocate) isStmt()   {}
func (*Evaluate) isStmt()   {}
func (*AssertStmt) isStmt() {}

// =============================================================================
// Expressions
// =============================================================================

// IntImm is an integer immediate.
type IntImm struct {
	Value int64
}

// FloatImm is a floating-point immediate.
type FloatImm struct {
	Value float64
}

// Variable references a loop variable or let-bound name.
type Variable struct {
	Name string
}

// Cast converts Value to another element type.
//
// The analysis is type-erased, so the destination type is not carried;
// what matters is that the operand subtree is walked.
type Cast struct {
	Value Expr
}

// Binary applies an arithmetic operator to two operands.
type Binary struct {
	Op BinaryOp
	A  Expr
	B  Expr
}

// Compare applies a comparison operator to two operands.
type Compare struct {
	Op CompareOp
	A  Expr
	B  Expr
}

// Not negates a boolean operand.
type Not struct {
	Value Expr
}

// Select yields TrueValue or FalseValue depending on Cond.
type Select struct {
	Cond       Expr
	TrueValue  Expr
	FalseValue Expr
}

// Ramp is a vector of Lanes values starting at Base with step Stride.
type Ramp struct {
	Base   Expr
	Stride Expr
	Lanes  int
}

// Broadcast replicates Value across Lanes vector lanes.
type Broadcast struct {
	Value Expr
	Lanes int
}

// Let binds a scalar value to a name within an expression.
type Let struct {
	Name  string
	Value Expr
	Body  Expr
}

// Call invokes an extern or intrinsic function.
//
// Calls are not stage reads: only Load establishes a dependency edge.
// The argument subtrees are walked normally, so a Load nested inside a
// call argument is still attributed.
type Call struct {
	Name string
	Args []Expr
}

// Load reads the buffer of Stage at Index.
//
// Load is the dependency-bearing kind: a Load under a producer region
// records "producer reads Stage" in the extracted call graph. Predicate
// is the optional vector predicate guarding the read and may be nil.
type Load struct {
	Stage     string
	Index     Expr
	Predicate Expr
}

func (*IntImm) isNode()    {}
func (*FloatImm) isNode()  {}
func (*Variable) isNode()  {}
func (*Cast) isNode()      {}
func (*Binary) isNode()    {}
func (*Compare) isNode()   {}
func (*Not) isNode()       {}
func (*Select) isNode()    {}
func (*Ramp) isNode()      {}
func (*Broadcast) isNode() {}
func (*Let) isNode()       {}
func (*Call) isNode()      {}
func (*Load) isNode()      {}

func (*IntImm) isExpr()    {}
func (*FloatImm) isExpr()  {}
func (*Variable) isExpr()  {}
func (*Cast) isExpr()      {}
func (*Binary) isExpr()    {}
func (*Compare) isExpr()   {}
func (*Not) isExpr()       {}
func (*Select) isExpr()    {}
func (*Ramp) isExpr()      {}
func (*Broadcast) isExpr() {}
func (*Let) isExpr()       {}
func (*Call) isExpr()      {}
func (*Load) isExpr()      {}
