package exec

import (
	"testing"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/query/ast"
)

func docWith(fields map[string]document.Value) *document.Document {
	d := document.NewDocument()
	for k, v := range fields {
		d.Set(k, v)
	}
	return d
}

func TestEvalAndOrShortCircuit(t *testing.T) {
	d := docWith(map[string]document.Value{"a": document.Bool(false)})
	// OR short-circuits on true without requiring the right side to be valid.
	expr := ast.BinaryExpr{
		Op:   ast.OpOr,
		Left: ast.Literal{Value: document.Bool(true)},
		Right: ast.FieldPath{Path: []string{"nonexistent", "deep"}},
	}
	v, err := Eval(expr, d)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	b, _ := v.AsBool()
	if !b {
		t.Errorf("OR short-circuit result = %v, want true", b)
	}
}

func TestEvalComparisonNullPropagation(t *testing.T) {
	d := document.NewDocument()
	expr := ast.BinaryExpr{Op: ast.OpEq, Left: ast.FieldPath{Path: []string{"missing"}}, Right: ast.Literal{Value: document.Null()}}
	v, err := Eval(expr, d)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	b, _ := v.AsBool()
	if !b {
		t.Errorf("missing field = null should match, got %v", b)
	}
}

func TestEvalArithmeticPromotion(t *testing.T) {
	d := document.NewDocument()
	expr := ast.BinaryExpr{Op: ast.OpAdd, Left: ast.Literal{Value: document.I64(1)}, Right: ast.Literal{Value: document.F64(2.5)}}
	v, err := Eval(expr, d)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	f, _ := v.AsFloat64()
	if f != 3.5 {
		t.Errorf("1 + 2.5 = %v, want 3.5", f)
	}
}

func TestEvalIntegerDivisionByZeroFails(t *testing.T) {
	d := document.NewDocument()
	expr := ast.BinaryExpr{Op: ast.OpDiv, Left: ast.Literal{Value: document.I64(1)}, Right: ast.Literal{Value: document.I64(0)}}
	_, err := Eval(expr, d)
	if err == nil {
		t.Fatalf("expected error for integer division by zero")
	}
}

func TestEvalFloatDivisionByZeroYieldsInf(t *testing.T) {
	d := document.NewDocument()
	expr := ast.BinaryExpr{Op: ast.OpDiv, Left: ast.Literal{Value: document.F64(1)}, Right: ast.Literal{Value: document.F64(0)}}
	v, err := Eval(expr, d)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	f, _ := v.AsFloat64()
	if !(f > 1e300) {
		t.Errorf("1.0/0.0 = %v, want +Inf", f)
	}
}

func TestEvalLikePattern(t *testing.T) {
	d := docWith(map[string]document.Value{"name": document.String("hello world")})
	expr := ast.LikeExpr{Target: ast.FieldPath{Path: []string{"name"}}, Pattern: "hello%"}
	v, err := Eval(expr, d)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	b, _ := v.AsBool()
	if !b {
		t.Errorf("LIKE 'hello%%' against %q = false, want true", "hello world")
	}
}

func TestEvalInMembership(t *testing.T) {
	d := docWith(map[string]document.Value{"country": document.String("CA")})
	expr := ast.InExpr{
		Target: ast.FieldPath{Path: []string{"country"}},
		List:   []ast.Expr{ast.Literal{Value: document.String("US")}, ast.Literal{Value: document.String("CA")}},
	}
	v, err := Eval(expr, d)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	b, _ := v.AsBool()
	if !b {
		t.Errorf("IN membership = false, want true")
	}
}

func TestEvalFunctions(t *testing.T) {
	d := docWith(map[string]document.Value{"name": document.String("Ada")})
	upper, err := Eval(ast.FuncCall{Name: "UPPER", Args: []ast.Expr{ast.FieldPath{Path: []string{"name"}}}}, d)
	if err != nil {
		t.Fatalf("Eval(UPPER) error = %v", err)
	}
	s, _ := upper.AsString()
	if s != "ADA" {
		t.Errorf("UPPER(name) = %q, want ADA", s)
	}

	coalesce, err := Eval(ast.FuncCall{Name: "COALESCE", Args: []ast.Expr{
		ast.Literal{Value: document.Null()},
		ast.Literal{Value: document.I64(7)},
	}}, d)
	if err != nil {
		t.Fatalf("Eval(COALESCE) error = %v", err)
	}
	i, _ := coalesce.AsInt64()
	if i != 7 {
		t.Errorf("COALESCE(null, 7) = %v, want 7", i)
	}
}

func TestCompareOrderedCrossType(t *testing.T) {
	if compareOrdered(document.Null(), document.I64(1)) >= 0 {
		t.Errorf("Null should sort below numerics")
	}
	if compareOrdered(document.I64(1), document.F64(1.0)) != 0 {
		t.Errorf("1 (int) should compare equal to 1.0 (float) cross-type")
	}
	if compareOrdered(document.String("a"), document.String("b")) >= 0 {
		t.Errorf("\"a\" should sort below \"b\"")
	}
}
