// Package ast defines the tagged-union AST produced by the parser and
// consumed by the type checker and code generator.
package ast

import "droplet/lexer"

// Node is implemented by every AST node; it carries the source position of
// the node's first significant token.
type Node interface {
	Position() lexer.Position
}

// Expr is implemented by every expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is implemented by every statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Decl is implemented by every top-level declaration node.
type Decl interface {
	Node
	declNode()
}

type Base struct {
	Pos lexer.Position
}

func (b Base) Position() lexer.Position { return b.Pos }

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// LiteralKind distinguishes the primitive literal kinds.
type LiteralKind int

const (
	LitInt LiteralKind = iota
	LitFloat
	LitBool
	LitString
	LitNull
)

type LiteralExpr struct {
	Base
	Kind   LiteralKind
	Int    int64
	Float  float64
	Bool   bool
	String string
}

func (*LiteralExpr) exprNode() {}

type IdentifierExpr struct {
	Base
	Name string
}

func (*IdentifierExpr) exprNode() {}

type BinaryExpr struct {
	Base
	Left     Expr
	Operator lexer.TokenType
	Right    Expr

	// Filled in by the type checker when the left operand's declared class
	// provides an operator overload for this operator (§4.4).
	HasOverload  bool
	OverloadName string
}

func (*BinaryExpr) exprNode() {}

type UnaryExpr struct {
	Base
	Operator lexer.TokenType
	Operand  Expr

	HasOverload  bool
	OverloadName string
}

func (*UnaryExpr) exprNode() {}

type AssignExpr struct {
	Base
	Target Expr
	Value  Expr
}

func (*AssignExpr) exprNode() {}

// CompoundAssignExpr represents `+=` and `-=`.
type CompoundAssignExpr struct {
	Base
	Target   Expr
	Operator lexer.TokenType // TOKEN_PLUS_ASSIGN or TOKEN_MINUS_ASSIGN
	Value    Expr
}

func (*CompoundAssignExpr) exprNode() {}

type CallExpr struct {
	Base
	Callee Expr
	Args   []Expr
}

func (*CallExpr) exprNode() {}

type FieldAccessExpr struct {
	Base
	Object Expr
	Field  string
}

func (*FieldAccessExpr) exprNode() {}

type IndexExpr struct {
	Base
	Object Expr
	Index  Expr
}

func (*IndexExpr) exprNode() {}

type NewObjectExpr struct {
	Base
	ClassName string
	TypeArgs  []string
	Args      []Expr
}

func (*NewObjectExpr) exprNode() {}

type ListLiteralExpr struct {
	Base
	Elements []Expr
}

func (*ListLiteralExpr) exprNode() {}

type DictEntry struct {
	Key   Expr
	Value Expr
}

type DictLiteralExpr struct {
	Base
	Entries []DictEntry
}

func (*DictLiteralExpr) exprNode() {}

// CastExpr represents `expr as T`.
type CastExpr struct {
	Base
	Value    Expr
	TypeName string
}

func (*CastExpr) exprNode() {}

// TypeTestExpr represents `expr is T`.
type TypeTestExpr struct {
	Base
	Value    Expr
	TypeName string
}

func (*TypeTestExpr) exprNode() {}

type SelfExpr struct {
	Base
}

func (*SelfExpr) exprNode() {}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

type VarDeclStmt struct {
	Base
	Name        string
	Type        string // declared type name, may be empty if inferred
	Initializer Expr   // nil if none
}

func (*VarDeclStmt) stmtNode() {}

type BlockStmt struct {
	Base
	Statements []Stmt
}

func (*BlockStmt) stmtNode() {}

type IfStmt struct {
	Base
	Condition Expr
	Then      Stmt
	Else      Stmt // nil if no else clause
}

func (*IfStmt) stmtNode() {}

type WhileStmt struct {
	Base
	Condition Expr
	Body      Stmt
}

func (*WhileStmt) stmtNode() {}

type ForInStmt struct {
	Base
	VarName  string
	Iterable Expr
	Body     Stmt
}

func (*ForInStmt) stmtNode() {}

type LoopStmt struct {
	Base
	Body Stmt
}

func (*LoopStmt) stmtNode() {}

type ReturnStmt struct {
	Base
	Value Expr // nil for bare `return`
}

func (*ReturnStmt) stmtNode() {}

type BreakStmt struct{ Base }

func (*BreakStmt) stmtNode() {}

type ContinueStmt struct{ Base }

func (*ContinueStmt) stmtNode() {}

type ExprStmt struct {
	Base
	Expr Expr
}

func (*ExprStmt) stmtNode() {}

// ---------------------------------------------------------------------------
// Top-level declarations
// ---------------------------------------------------------------------------

// Visibility is the access tag carried by fields and methods.
type Visibility int

const (
	VisPublic Visibility = iota
	VisPrivate
	VisProtected
)

// Param is a function/method parameter.
type Param struct {
	Name    string
	Type    string
	CanFail bool // true if declared as Type!
}

// FFIInfo is attached to a FunctionDecl declared with `@ffi(...)`.
type FFIInfo struct {
	LibName   string
	Signature string
}

// FunctionDecl covers top-level functions, methods, constructors, and
// operator overloads; context (which of these it is) is determined by
// where it appears inside a ClassDecl.
type FunctionDecl struct {
	Base
	Name       string
	Params     []Param
	ReturnType string // empty means inferred/void
	CanFail    bool   // true if return type was written `T!`
	Body       *BlockStmt

	Static     bool
	Sealed     bool
	Visibility Visibility
	IsOperator bool   // true for `op +` style overloads
	OperatorOp string // canonical op token text, e.g. "+"

	FFI *FFIInfo // non-nil for @ffi-declared functions; Body is nil in that case
}

func (*FunctionDecl) declNode() {}

// Field is a class field declaration.
type Field struct {
	Pos          lexer.Position
	Name         string
	Type         string
	Initializer  Expr
	Static       bool
	Visibility   Visibility
}

// ClassDecl is a class declaration (§3 ClassInfo's syntactic counterpart).
type ClassDecl struct {
	Base
	Name         string
	TypeParams   []string
	ParentName   string // empty if no parent
	Sealed       bool
	Fields       []Field
	Methods      []*FunctionDecl
	Constructor  *FunctionDecl // nil if none declared
}

func (*ClassDecl) declNode() {}

// ImportDecl represents `import a.b.c { x, y }` or `use a.b.c { * }`.
type ImportDecl struct {
	Base
	ModulePath string
	Symbols    []string // nil/empty with Wildcard=true means "import everything"
	Wildcard   bool
}

func (*ImportDecl) declNode() {}

// ModuleDecl represents the optional `mod a.b.c` declaration.
type ModuleDecl struct {
	Base
	Path string
}

// Program is the root of a parsed source file.
type Program struct {
	Module  *ModuleDecl // nil if absent
	Imports []*ImportDecl
	Classes []*ClassDecl
	Funcs   []*FunctionDecl
}

// NewBase is a helper for constructors outside this package (notably the
// parser) to build the embedded position-bearing base.
func NewBase(pos lexer.Position) Base { return Base{Pos: pos} }
