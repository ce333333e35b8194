// Package exec interprets a planner.Node tree against the storage and
// index engines (spec.md §4.8): scan/filter/sort/skip/limit/project for
// Find, update/delete application, and aggregation pipeline stages.
package exec

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/query/ast"
)

// Eval evaluates e against doc and returns its value. Field paths missing
// from doc evaluate to Null rather than erroring, so `= null`-style
// comparisons can distinguish "field missing" only by pairing this with
// ExistsExpr.
func Eval(e ast.Expr, doc *document.Document) (document.Value, error) {
	switch v := e.(type) {
	case ast.Literal:
		return v.Value, nil
	case ast.FieldPath:
		val, ok := doc.GetPath(v.Path)
		if !ok {
			return document.Null(), nil
		}
		return val, nil
	case ast.ArrayLiteral:
		vals := make([]document.Value, len(v.Elements))
		for i, el := range v.Elements {
			ev, err := Eval(el, doc)
			if err != nil {
				return document.Value{}, err
			}
			vals[i] = ev
		}
		return document.Array(vals), nil
	case ast.DocumentLiteral:
		out := document.NewDocument()
		for i, key := range v.Keys {
			ev, err := Eval(v.Values[i], doc)
			if err != nil {
				return document.Value{}, err
			}
			out.Set(key, ev)
		}
		return document.DocumentValue(out), nil
	case ast.FuncCall:
		return evalFunc(v, doc)
	case ast.BinaryExpr:
		return evalBinary(v, doc)
	case ast.UnaryExpr:
		return evalUnary(v, doc)
	case ast.InExpr:
		return evalIn(v, doc)
	case ast.LikeExpr:
		return evalLike(v, doc)
	case ast.BetweenExpr:
		return evalBetween(v, doc)
	case ast.IsNullExpr:
		return evalIsNull(v, doc)
	case ast.ExistsExpr:
		_, ok := doc.GetPath(v.Path)
		return document.Bool(ok), nil
	}
	return document.Value{}, mdberr.New(mdberr.KindExecution, "unsupported expression node %T", e)
}

// EvalBool evaluates e and requires a boolean result, the form used by
// Filter/Match/WHERE.
func EvalBool(e ast.Expr, doc *document.Document) (bool, error) {
	v, err := Eval(e, doc)
	if err != nil {
		return false, err
	}
	b, ok := v.AsBool()
	if !ok {
		return false, mdberr.New(mdberr.KindTypeError, "expression did not evaluate to a boolean")
	}
	return b, nil
}

func evalBinary(e ast.BinaryExpr, doc *document.Document) (document.Value, error) {
	switch e.Op {
	case ast.OpOr:
		l, err := EvalBool(e.Left, doc)
		if err != nil {
			return document.Value{}, err
		}
		if l {
			return document.Bool(true), nil
		}
		r, err := EvalBool(e.Right, doc)
		if err != nil {
			return document.Value{}, err
		}
		return document.Bool(r), nil
	case ast.OpAnd:
		l, err := EvalBool(e.Left, doc)
		if err != nil {
			return document.Value{}, err
		}
		if !l {
			return document.Bool(false), nil
		}
		r, err := EvalBool(e.Right, doc)
		if err != nil {
			return document.Value{}, err
		}
		return document.Bool(r), nil
	}

	left, err := Eval(e.Left, doc)
	if err != nil {
		return document.Value{}, err
	}
	right, err := Eval(e.Right, doc)
	if err != nil {
		return document.Value{}, err
	}

	switch e.Op {
	case ast.OpEq:
		return document.Bool(compareOrdered(left, right) == 0), nil
	case ast.OpNeq:
		return document.Bool(compareOrdered(left, right) != 0), nil
	case ast.OpLt:
		return document.Bool(compareOrdered(left, right) < 0), nil
	case ast.OpLte:
		return document.Bool(compareOrdered(left, right) <= 0), nil
	case ast.OpGt:
		return document.Bool(compareOrdered(left, right) > 0), nil
	case ast.OpGte:
		return document.Bool(compareOrdered(left, right) >= 0), nil
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
		return evalArith(e.Op, left, right)
	}
	return document.Value{}, mdberr.New(mdberr.KindExecution, "unsupported binary operator")
}

func evalArith(op ast.BinaryOp, left, right document.Value) (document.Value, error) {
	if isFloatKind(left.Kind) || isFloatKind(right.Kind) {
		lf, ok1 := left.AsFloat64()
		rf, ok2 := right.AsFloat64()
		if !ok1 || !ok2 {
			return document.Value{}, mdberr.New(mdberr.KindTypeError, "arithmetic requires numeric operands")
		}
		switch op {
		case ast.OpAdd:
			return document.F64(lf + rf), nil
		case ast.OpSub:
			return document.F64(lf - rf), nil
		case ast.OpMul:
			return document.F64(lf * rf), nil
		case ast.OpDiv:
			return document.F64(lf / rf), nil
		case ast.OpMod:
			return document.F64(math.Mod(lf, rf)), nil
		}
	}
	li, ok1 := left.AsInt64()
	ri, ok2 := right.AsInt64()
	if !ok1 || !ok2 {
		return document.Value{}, mdberr.New(mdberr.KindTypeError, "arithmetic requires numeric operands")
	}
	switch op {
	case ast.OpAdd:
		return document.I64(li + ri), nil
	case ast.OpSub:
		return document.I64(li - ri), nil
	case ast.OpMul:
		return document.I64(li * ri), nil
	case ast.OpDiv:
		if ri == 0 {
			return document.Value{}, mdberr.New(mdberr.KindExecution, "integer division by zero")
		}
		return document.I64(li / ri), nil
	case ast.OpMod:
		if ri == 0 {
			return document.Value{}, mdberr.New(mdberr.KindExecution, "integer modulo by zero")
		}
		return document.I64(li % ri), nil
	}
	return document.Value{}, mdberr.New(mdberr.KindExecution, "unsupported arithmetic operator")
}

func isFloatKind(k document.Kind) bool {
	switch k {
	case document.KindF32, document.KindF64, document.KindDecimal:
		return true
	}
	return false
}

func evalUnary(e ast.UnaryExpr, doc *document.Document) (document.Value, error) {
	switch e.Op {
	case ast.OpNot:
		b, err := EvalBool(e.Operand, doc)
		if err != nil {
			return document.Value{}, err
		}
		return document.Bool(!b), nil
	case ast.OpNeg:
		v, err := Eval(e.Operand, doc)
		if err != nil {
			return document.Value{}, err
		}
		if isFloatKind(v.Kind) {
			f, _ := v.AsFloat64()
			return document.F64(-f), nil
		}
		i, ok := v.AsInt64()
		if !ok {
			return document.Value{}, mdberr.New(mdberr.KindTypeError, "unary - requires a numeric operand")
		}
		return document.I64(-i), nil
	}
	return document.Value{}, mdberr.New(mdberr.KindExecution, "unsupported unary operator")
}

func evalIn(e ast.InExpr, doc *document.Document) (document.Value, error) {
	target, err := Eval(e.Target, doc)
	if err != nil {
		return document.Value{}, err
	}
	for _, el := range e.List {
		v, err := Eval(el, doc)
		if err != nil {
			return document.Value{}, err
		}
		if document.Equal(target, v) {
			return document.Bool(true), nil
		}
	}
	return document.Bool(false), nil
}

func evalBetween(e ast.BetweenExpr, doc *document.Document) (document.Value, error) {
	target, err := Eval(e.Target, doc)
	if err != nil {
		return document.Value{}, err
	}
	low, err := Eval(e.Low, doc)
	if err != nil {
		return document.Value{}, err
	}
	high, err := Eval(e.High, doc)
	if err != nil {
		return document.Value{}, err
	}
	ok := compareOrdered(low, target) <= 0 && compareOrdered(target, high) <= 0
	return document.Bool(ok), nil
}

func evalIsNull(e ast.IsNullExpr, doc *document.Document) (document.Value, error) {
	v, err := Eval(e.Target, doc)
	if err != nil {
		return document.Value{}, err
	}
	isNull := v.IsNull()
	if e.Not {
		isNull = !isNull
	}
	return document.Bool(isNull), nil
}

// compileLike turns a SQL-style LIKE pattern (% = any run, _ = single char)
// into an anchored regexp, escaping every other regex metacharacter.
func compileLike(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

func evalLike(e ast.LikeExpr, doc *document.Document) (document.Value, error) {
	target, err := Eval(e.Target, doc)
	if err != nil {
		return document.Value{}, err
	}
	s, ok := target.AsString()
	if !ok {
		return document.Bool(false), nil
	}
	re, err := compileLike(e.Pattern)
	if err != nil {
		return document.Value{}, mdberr.Wrap(mdberr.KindExecution, err, "invalid LIKE pattern %q", e.Pattern)
	}
	return document.Bool(re.MatchString(s)), nil
}

func evalFunc(e ast.FuncCall, doc *document.Document) (document.Value, error) {
	args := make([]document.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := Eval(a, doc)
		if err != nil {
			return document.Value{}, err
		}
		args[i] = v
	}
	name := strings.ToUpper(e.Name)
	switch name {
	case "UPPER":
		s, err := arg0String(name, args)
		if err != nil {
			return document.Value{}, err
		}
		return document.String(strings.ToUpper(s)), nil
	case "LOWER":
		s, err := arg0String(name, args)
		if err != nil {
			return document.Value{}, err
		}
		return document.String(strings.ToLower(s)), nil
	case "LENGTH":
		if len(args) != 1 {
			return document.Value{}, mdberr.New(mdberr.KindExecution, "%s takes exactly one argument", name)
		}
		return lengthOf(args[0])
	case "ABS":
		f, err := arg0Float(name, args)
		if err != nil {
			return document.Value{}, err
		}
		return document.F64(math.Abs(f)), nil
	case "FLOOR":
		f, err := arg0Float(name, args)
		if err != nil {
			return document.Value{}, err
		}
		return document.F64(math.Floor(f)), nil
	case "CEIL":
		f, err := arg0Float(name, args)
		if err != nil {
			return document.Value{}, err
		}
		return document.F64(math.Ceil(f)), nil
	case "ROUND":
		f, err := arg0Float(name, args)
		if err != nil {
			return document.Value{}, err
		}
		return document.F64(math.Round(f)), nil
	case "COALESCE":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return document.Null(), nil
	}
	return document.Value{}, mdberr.New(mdberr.KindInvalidOperator, "unknown function %q", e.Name)
}

func arg0String(fn string, args []document.Value) (string, error) {
	if len(args) != 1 {
		return "", mdberr.New(mdberr.KindExecution, "%s takes exactly one argument", fn)
	}
	s, ok := args[0].AsString()
	if !ok {
		return "", mdberr.New(mdberr.KindTypeError, "%s requires a string argument", fn)
	}
	return s, nil
}

func arg0Float(fn string, args []document.Value) (float64, error) {
	if len(args) != 1 {
		return 0, mdberr.New(mdberr.KindExecution, "%s takes exactly one argument", fn)
	}
	f, ok := args[0].AsFloat64()
	if !ok {
		return 0, mdberr.New(mdberr.KindTypeError, "%s requires a numeric argument", fn)
	}
	return f, nil
}

func lengthOf(v document.Value) (document.Value, error) {
	switch v.Kind {
	case document.KindString:
		s, _ := v.AsString()
		return document.I64(int64(len(s))), nil
	case document.KindArray:
		arr, _ := v.AsArray()
		return document.I64(int64(len(arr))), nil
	case document.KindDocument:
		d, _ := v.AsDocument()
		return document.I64(int64(d.Len())), nil
	}
	return document.Value{}, mdberr.New(mdberr.KindTypeError, "LENGTH requires a string, array or document")
}

// valueTypeRank orders value kinds for cross-type comparisons: Null sorts
// below everything; numerics compare by numeric value regardless of
// specific kind; strings and DateTime have their own bands above numerics.
func valueTypeRank(v document.Value) int {
	switch {
	case v.Kind == document.KindNull:
		return 0
	case v.IsNumeric():
		return 1
	case v.Kind == document.KindString:
		return 2
	case v.Kind == document.KindDateTime:
		return 3
	default:
		return 4
	}
}

// compareOrdered implements spec.md §4.8's total order: Null < everything;
// numerics compare by value across kinds; strings by byte order; DateTime
// chronologically; unorderable pairs compare equal (0).
func compareOrdered(a, b document.Value) int {
	ra, rb := valueTypeRank(a), valueTypeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		return 0
	case 1:
		af, _ := a.AsFloat64()
		bf, _ := b.AsFloat64()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case 2:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		return strings.Compare(as, bs)
	case 3:
		at, ok1 := a.Raw.(time.Time)
		bt, ok2 := b.Raw.(time.Time)
		if !ok1 || !ok2 {
			return 0
		}
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}
