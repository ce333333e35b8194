package parser

import (
	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/query/ast"
	"github.com/cuemby/mikudb/pkg/query/lexer"
)

// parseExpr is the entry point for the expression grammar, precedence
// low-to-high: OR < AND < NOT < comparison < additive < multiplicative <
// unary < primary (§4.6).
func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.BinaryExpr{Op: ast.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = ast.BinaryExpr{Op: ast.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expr, error) {
	if p.isKeyword("NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return ast.UnaryExpr{Op: ast.OpNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	switch {
	case p.cur().Kind == lexer.TokenOp:
		op, ok := comparisonOp(p.cur().Text)
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return ast.BinaryExpr{Op: op, Left: left, Right: right}, nil

	case p.isKeyword("IN"):
		p.advance()
		list, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		return ast.InExpr{Target: left, List: list}, nil

	case p.isKeyword("LIKE"):
		p.advance()
		tok, err := p.expectKind(lexer.TokenString)
		if err != nil {
			return nil, err
		}
		return ast.LikeExpr{Target: left, Pattern: tok.Text}, nil

	case p.isKeyword("BETWEEN"):
		p.advance()
		low, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		high, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return ast.BetweenExpr{Target: left, Low: low, High: high}, nil

	case p.isKeyword("IS"):
		p.advance()
		not := false
		if p.isKeyword("NOT") {
			not = true
			p.advance()
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return ast.IsNullExpr{Target: left, Not: not}, nil
	}

	return left, nil
}

func comparisonOp(text string) (ast.BinaryOp, bool) {
	switch text {
	case "=":
		return ast.OpEq, true
	case "!=", "<>":
		return ast.OpNeq, true
	case "<":
		return ast.OpLt, true
	case "<=":
		return ast.OpLte, true
	case ">":
		return ast.OpGt, true
	case ">=":
		return ast.OpGte, true
	default:
		return 0, false
	}
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == lexer.TokenOp && (p.cur().Text == "+" || p.cur().Text == "-") {
		op := ast.OpAdd
		if p.cur().Text == "-" {
			op = ast.OpSub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == lexer.TokenOp && (p.cur().Text == "*" || p.cur().Text == "/" || p.cur().Text == "%") {
		var op ast.BinaryOp
		switch p.cur().Text {
		case "*":
			op = ast.OpMul
		case "/":
			op = ast.OpDiv
		case "%":
			op = ast.OpMod
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.cur().Kind == lexer.TokenOp && p.cur().Text == "-" {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.UnaryExpr{Op: ast.OpNeg, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	t := p.cur()
	switch {
	case t.Kind == lexer.TokenInt:
		p.advance()
		return ast.Literal{Value: document.I64(t.IntVal)}, nil
	case t.Kind == lexer.TokenFloat:
		p.advance()
		return ast.Literal{Value: document.F64(t.FloatVal)}, nil
	case t.Kind == lexer.TokenString:
		p.advance()
		return ast.Literal{Value: document.String(t.Text)}, nil
	case t.Kind == lexer.TokenKeyword && t.Text == "TRUE":
		p.advance()
		return ast.Literal{Value: document.Bool(true)}, nil
	case t.Kind == lexer.TokenKeyword && t.Text == "FALSE":
		p.advance()
		return ast.Literal{Value: document.Bool(false)}, nil
	case t.Kind == lexer.TokenKeyword && t.Text == "NULL":
		p.advance()
		return ast.Literal{Value: document.Null()}, nil
	case t.Kind == lexer.TokenKeyword && t.Text == "EXISTS":
		return p.parseExists()
	case t.Kind == lexer.TokenLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(lexer.TokenRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case t.Kind == lexer.TokenLBracket:
		return p.parseArrayLiteral()
	case t.Kind == lexer.TokenLBrace:
		return p.parseDocumentLiteral()
	case t.Kind == lexer.TokenIdent:
		return p.parseIdentOrCall()
	}
	return nil, p.errorf("unexpected token %v in expression", t)
}

func (p *Parser) parseExists() (ast.Expr, error) {
	p.advance() // EXISTS
	if _, err := p.expectKind(lexer.TokenLParen); err != nil {
		return nil, err
	}
	path, err := p.parseFieldPath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(lexer.TokenRParen); err != nil {
		return nil, err
	}
	return ast.ExistsExpr{Path: path}, nil
}

func (p *Parser) parseIdentOrCall() (ast.Expr, error) {
	name, err := p.identText()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind == lexer.TokenLParen {
		p.advance()
		var args []ast.Expr
		if p.cur().Kind != lexer.TokenRParen {
			args, err = p.parseExprListBare()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expectKind(lexer.TokenRParen); err != nil {
			return nil, err
		}
		return ast.FuncCall{Name: name, Args: args}, nil
	}
	path := []string{name}
	for p.cur().Kind == lexer.TokenDot {
		p.advance()
		next, err := p.identText()
		if err != nil {
			return nil, err
		}
		path = append(path, next)
	}
	return ast.FieldPath{Path: path}, nil
}

func (p *Parser) parseArrayLiteral() (ast.Expr, error) {
	p.advance() // [
	var elems []ast.Expr
	if p.cur().Kind != lexer.TokenRBracket {
		var err error
		elems, err = p.parseExprListBare()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expectKind(lexer.TokenRBracket); err != nil {
		return nil, err
	}
	return ast.ArrayLiteral{Elements: elems}, nil
}

func (p *Parser) parseDocumentLiteral() (ast.Expr, error) {
	p.advance() // {
	lit := ast.DocumentLiteral{}
	if p.cur().Kind != lexer.TokenRBrace {
		for {
			key, err := p.identText()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectKind(lexer.TokenColon); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			lit.Keys = append(lit.Keys, key)
			lit.Values = append(lit.Values, val)
			if p.cur().Kind != lexer.TokenComma {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expectKind(lexer.TokenRBrace); err != nil {
		return nil, err
	}
	return lit, nil
}

// parseExprList parses a parenthesized, comma-separated expression list:
// `(e1, e2, ...)`, used by IN.
func (p *Parser) parseExprList() ([]ast.Expr, error) {
	if _, err := p.expectKind(lexer.TokenLParen); err != nil {
		return nil, err
	}
	var list []ast.Expr
	if p.cur().Kind != lexer.TokenRParen {
		var err error
		list, err = p.parseExprListBare()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expectKind(lexer.TokenRParen); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Parser) parseExprListBare() ([]ast.Expr, error) {
	var list []ast.Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if p.cur().Kind != lexer.TokenComma {
			return list, nil
		}
		p.advance()
	}
}
