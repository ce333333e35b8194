package ast

import "github.com/cuemby/mikudb/pkg/document"

// Expr is implemented by every expression-grammar node (spec.md §4.6).
type Expr interface {
	exprNode()
}

// Literal wraps a scalar/array/document literal value.
type Literal struct{ Value document.Value }

// FieldPath is a dotted field reference ("a.b.c").
type FieldPath struct{ Path []string }

// ArrayLiteral is an array expression `[e1, e2, ...]`; each element may
// itself be a non-literal expression (e.g. a nested field path), so it is
// kept as Expr rather than folded into a document.Value at parse time.
type ArrayLiteral struct{ Elements []Expr }

// DocumentLiteral is a document expression `{key: e, ...}`.
type DocumentLiteral struct {
	Keys   []string
	Values []Expr
}

// FuncCall is a named function application, e.g. `UPPER(name)`.
type FuncCall struct {
	Name string
	Args []Expr
}

// BinaryOp enumerates every infix operator across the precedence levels
// OR < AND < comparison < additive < multiplicative (§4.6).
type BinaryOp int

const (
	OpOr BinaryOp = iota
	OpAnd
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
)

type BinaryExpr struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// UnaryOp enumerates prefix operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
)

type UnaryExpr struct {
	Op      UnaryOp
	Operand Expr
}

// InExpr is `expr IN (list...)`.
type InExpr struct {
	Target Expr
	List   []Expr
}

// LikeExpr is `expr LIKE "pattern"`.
type LikeExpr struct {
	Target  Expr
	Pattern string
}

// BetweenExpr is `expr BETWEEN low AND high`.
type BetweenExpr struct {
	Target Expr
	Low    Expr
	High   Expr
}

// IsNullExpr is `expr IS [NOT] NULL`.
type IsNullExpr struct {
	Target Expr
	Not    bool
}

// ExistsExpr is `EXISTS(field)`.
type ExistsExpr struct {
	Path []string
}

func (Literal) exprNode()         {}
func (FieldPath) exprNode()       {}
func (ArrayLiteral) exprNode()    {}
func (DocumentLiteral) exprNode() {}
func (FuncCall) exprNode()        {}
func (BinaryExpr) exprNode()      {}
func (UnaryExpr) exprNode()       {}
func (InExpr) exprNode()          {}
func (LikeExpr) exprNode()        {}
func (BetweenExpr) exprNode()     {}
func (IsNullExpr) exprNode()      {}
func (ExistsExpr) exprNode()      {}
