// Package ir defines the normalized intermediate representation produced
// from raw parse trees. The node set is a closed tagged union: every
// consumer (builder, enricher, serializer) switches exhaustively over the
// concrete types, so adding a node kind is a compile-time decision.
package ir

import "strings"

// ModuleKind identifies the artifact flavor of a source file.
type ModuleKind string

const (
	ModuleStandard ModuleKind = "standard"
	ModuleClass    ModuleKind = "class"
	ModuleForm     ModuleKind = "form"
)

// KindForPath maps a file suffix to its module kind hint
// (.bas -> standard, .cls -> class, .frm -> form).
func KindForPath(path string) ModuleKind {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".cls"):
		return ModuleClass
	case strings.HasSuffix(lower, ".frm"):
		return ModuleForm
	default:
		return ModuleStandard
	}
}

// SourceFile describes one ingested artifact. Immutable once loaded; owns
// exactly one Module root.
type SourceFile struct {
	Path     string
	Checksum string // xxh3 of the raw bytes, hex
	Encoding string // detected encoding name
	Kind     ModuleKind
}

// Span is a half-open source range. Lines are 1-based, columns 0-based.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	StartByte int
	EndByte   int
}

// Contains reports whether o lies entirely within s (byte-offset based).
func (s Span) Contains(o Span) bool {
	return s.StartByte <= o.StartByte && o.EndByte <= s.EndByte
}

// Intersects reports whether the two spans overlap.
func (s Span) Intersects(o Span) bool {
	return s.StartByte < o.EndByte && o.StartByte < s.EndByte
}

// Kind discriminates IR node variants.
type Kind string

const (
	KindModule       Kind = "module"
	KindDeclaration  Kind = "declaration"
	KindProcedure    Kind = "procedure"
	KindStatement    Kind = "statement"
	KindExpression   Kind = "expression"
	KindControl      Kind = "control"
	KindEventBinding Kind = "eventBinding"
	KindTrivia       Kind = "trivia"
	KindError        Kind = "error"
)

// TypeCategory is the normalized classification of a declared type hint.
type TypeCategory string

const (
	TypePrimitive   TypeCategory = "primitive"
	TypeUserDefined TypeCategory = "userDefined"
	TypeArrayOf     TypeCategory = "arrayOf"
	TypeObjectRef   TypeCategory = "objectReference"
	TypeUnresolved  TypeCategory = "unresolved"
)

// TypeRef is a resolved type hint. Element is set for arrayOf.
type TypeRef struct {
	Category TypeCategory
	Name     string
	Element  *TypeRef
}

// SemanticInfo holds enricher-written annotations. The builder leaves it
// nil; the enricher populates it exactly once (Resolved guards reruns).
type SemanticInfo struct {
	Resolved bool

	Type *TypeRef

	// Control hierarchy, stable IDs (never pointers).
	ParentControl string
	ChildControls []string

	// Event binding resolution.
	BoundControl   string
	BoundProcedure string
	BoundEvent     string
}

// NodeBase carries the fields every IR node shares: the source span, the
// verbatim text slice it covers, leading trivia, and the optional
// enrichment record.
type NodeBase struct {
	Span     Span
	Text     string
	Leading  []*Trivia // comments/blank runs preceding the node
	Trailing []*Trivia // end-of-line comment terminating the node's statement
	Semantic *SemanticInfo
}

// Node is the closed IR node union.
type Node interface {
	NodeKind() Kind
	Base() *NodeBase
}

// Module is the IR root for one source file.
type Module struct {
	NodeBase
	Name      string
	Kind      ModuleKind
	Version   string
	IsPrivate bool
	Attrs     []Attribute
	Options   []OptionRecord
	Children  []Node // source order: declarations, procedures, controls, trivia, errors

	// Bindings are owned by the module but kept out of Children: a
	// binding shares its procedure's span, which would break the
	// sibling-span invariant.
	Bindings []*EventBinding
}

// Attribute is a module Attribute statement record (VB_Name etc.).
type Attribute struct {
	Name   string
	Values []string
	Span   Span
}

// OptionRecord is a module Option statement (explicit, base, compare,
// privateModule), deduplicated by (Type, Value).
type OptionRecord struct {
	Type  string
	Value string
	Span  Span
}

// DeclKind classifies declarations.
type DeclKind string

const (
	DeclVariable DeclKind = "variable"
	DeclConstant DeclKind = "constant"
	DeclType     DeclKind = "type"
	DeclEnum     DeclKind = "enum"
	DeclExternal DeclKind = "external"
)

// Declaration covers variables, constants, Type/Enum blocks and Declare
// statements. Type and Enum blocks nest member Declarations in Children.
type Declaration struct {
	NodeBase
	DeclKind   DeclKind
	Name       string
	Visibility string
	TypeName   string // verbatim As-clause text, "" when absent
	TypeSigil  string // % & ! # $ @ suffix, "" when absent
	IsArray    bool
	WithEvents bool
	IsNew      bool
	Value      string // constant / enum member initializer, verbatim
	Children   []Node
}

// ProcKind classifies procedures.
type ProcKind string

const (
	ProcSub         ProcKind = "sub"
	ProcFunction    ProcKind = "function"
	ProcPropertyGet ProcKind = "propertyGet"
	ProcPropertyLet ProcKind = "propertyLet"
	ProcPropertySet ProcKind = "propertySet"
)

// Param is a procedure parameter record (not a tree node).
type Param struct {
	Name      string
	Modifiers []string // Optional, ByVal, ByRef, ParamArray, in source order
	TypeName  string
	TypeSigil string
	Default   string // verbatim default value expression, "" when absent
	Span      Span
}

// Procedure is a Sub, Function or Property body.
type Procedure struct {
	NodeBase
	ProcKind   ProcKind
	Name       string
	Visibility string
	IsStatic   bool
	Params     []Param
	ReturnType string // verbatim As-clause text for function/propertyGet
	Children   []Node // body statements, trivia, errors
}

// StmtKind classifies statements.
type StmtKind string

const (
	StmtAssignment StmtKind = "assignment"
	StmtCall       StmtKind = "call"
	StmtIf         StmtKind = "if"
	StmtFor        StmtKind = "forLoop"
	StmtForEach    StmtKind = "forEach"
	StmtDoLoop     StmtKind = "doLoop"
	StmtWhile      StmtKind = "whileLoop"
	StmtSelect     StmtKind = "selectCase"
	StmtWith       StmtKind = "with"
	StmtExit       StmtKind = "exit"
	StmtOnError    StmtKind = "onError"
	StmtGoto       StmtKind = "goto"
	StmtLabel      StmtKind = "label"
	StmtRedim      StmtKind = "redim"
	StmtExpr       StmtKind = "expression"

	// StmtBranch and StmtCase are the arms of if and select blocks; their
	// first child is the condition expression(s), the rest the arm body.
	StmtBranch StmtKind = "branch"
	StmtCase   StmtKind = "caseClause"
)

// Statement is a procedure-body statement. Sub-expressions and nested
// blocks appear in Children in source order.
type Statement struct {
	NodeBase
	StmtKind StmtKind
	Children []Node
}

// ExprKind classifies expressions.
type ExprKind string

const (
	ExprLiteral    ExprKind = "literal"
	ExprIdentifier ExprKind = "identifier"
	ExprBinary     ExprKind = "binary"
	ExprUnary      ExprKind = "unary"
	ExprCall       ExprKind = "call"
	ExprMember     ExprKind = "memberAccess"
	ExprIndex      ExprKind = "index"
	ExprParen      ExprKind = "paren"
)

// Expression is an expression node. Literal and identifier text is kept
// verbatim: casing and literal formatting are significant downstream.
type Expression struct {
	NodeBase
	ExprKind ExprKind
	Op       string // binary/unary operator spelling, verbatim
	Value    string // literal text, verbatim
	Name     string // identifier text, verbatim (including sigil)
	Children []Node
}

// ControlProp is one property assignment inside a designer block.
type ControlProp struct {
	Name  string
	Value string // verbatim value text
	Span  Span
}

// Control is a form designer widget with nested children (form modules
// only). ResourceRefs records FRX references verbatim; their content is
// never parsed.
type Control struct {
	NodeBase
	Name         string
	TypeName     string // e.g. VB.CommandButton
	Props        []ControlProp
	ResourceRefs []string
	Children     []Node // nested controls and trivia
}

// EventBinding pairs a convention-named procedure with a control event.
// Cross-references are stable IDs resolved through the module Index, never
// ownership edges.
type EventBinding struct {
	NodeBase
	ProcedureName string // full procedure name, original casing
	ControlName   string // name-derived candidate, before resolution
	EventName     string
}

// TriviaKind classifies non-structural source text.
type TriviaKind string

const (
	TriviaComment  TriviaKind = "comment"
	TriviaBlankRun TriviaKind = "blankRun"
)

// Trivia is a comment or blank-line run attached to, but not part of, the
// structural tree.
type Trivia struct {
	NodeBase
	TriviaKind TriviaKind
}

// ErrorNode marks a construct the parser could not derive. It always
// pairs with at least one diagnostic intersecting its span.
type ErrorNode struct {
	NodeBase
}

func (n *Module) NodeKind() Kind       { return KindModule }
func (n *Declaration) NodeKind() Kind  { return KindDeclaration }
func (n *Procedure) NodeKind() Kind    { return KindProcedure }
func (n *Statement) NodeKind() Kind    { return KindStatement }
func (n *Expression) NodeKind() Kind   { return KindExpression }
func (n *Control) NodeKind() Kind      { return KindControl }
func (n *EventBinding) NodeKind() Kind { return KindEventBinding }
func (n *Trivia) NodeKind() Kind       { return KindTrivia }
func (n *ErrorNode) NodeKind() Kind    { return KindError }

func (n *Module) Base() *NodeBase       { return &n.NodeBase }
func (n *Declaration) Base() *NodeBase  { return &n.NodeBase }
func (n *Procedure) Base() *NodeBase    { return &n.NodeBase }
func (n *Statement) Base() *NodeBase    { return &n.NodeBase }
func (n *Expression) Base() *NodeBase   { return &n.NodeBase }
func (n *Control) Base() *NodeBase      { return &n.NodeBase }
func (n *EventBinding) Base() *NodeBase { return &n.NodeBase }
func (n *Trivia) Base() *NodeBase       { return &n.NodeBase }
func (n *ErrorNode) Base() *NodeBase    { return &n.NodeBase }

// ChildNodes returns a node's ordered children. Exhaustive over the union.
func ChildNodes(n Node) []Node {
	switch v := n.(type) {
	case *Module:
		return v.Children
	case *Declaration:
		return v.Children
	case *Procedure:
		return v.Children
	case *Statement:
		return v.Children
	case *Expression:
		return v.Children
	case *Control:
		return v.Children
	case *EventBinding, *Trivia, *ErrorNode:
		return nil
	}
	return nil
}

// WalkFunc is invoked per node during traversal. Return false to skip the
// node's children.
type WalkFunc func(n Node) bool

// Walk traverses the IR depth-first in source order. Module bindings are
// visited after the module's children.
func Walk(n Node, fn WalkFunc) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range ChildNodes(n) {
		Walk(c, fn)
	}
	if m, ok := n.(*Module); ok {
		for _, b := range m.Bindings {
			Walk(b, fn)
		}
	}
}

// StableID is the lookup key for cross-references: module-qualified,
// lowercased because the language is case-insensitive.
func StableID(moduleName, name string) string {
	return strings.ToLower(moduleName) + "." + strings.ToLower(name)
}

// Index is the per-file side index resolving stable IDs to nodes. Built
// once after IR construction; read-only afterwards.
type Index struct {
	Controls   map[string]*Control
	Procedures map[string]*Procedure
}

// BuildIndex indexes a module's controls and procedures by stable ID.
func BuildIndex(m *Module) *Index {
	idx := &Index{
		Controls:   make(map[string]*Control),
		Procedures: make(map[string]*Procedure),
	}
	Walk(m, func(n Node) bool {
		switch v := n.(type) {
		case *Control:
			idx.Controls[StableID(m.Name, v.Name)] = v
		case *Procedure:
			idx.Procedures[StableID(m.Name, v.Name)] = v
		}
		return true
	})
	return idx
}
