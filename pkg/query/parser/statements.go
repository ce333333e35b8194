package parser

import (
	"strings"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/query/ast"
	"github.com/cuemby/mikudb/pkg/query/lexer"
)

func (p *Parser) parseStatement() (ast.Statement, error) {
	t := p.cur()
	if t.Kind != lexer.TokenKeyword {
		return nil, p.errorf("expected a statement keyword, got %v", t)
	}
	switch t.Text {
	case "USE":
		return p.parseUse()
	case "SHOW":
		return p.parseShow()
	case "CREATE":
		return p.parseCreate()
	case "DROP":
		return p.parseDrop()
	case "INSERT":
		return p.parseInsert()
	case "FIND":
		return p.parseFind()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	case "AGGREGATE":
		return p.parseAggregate()
	case "BEGIN":
		p.advance()
		if err := p.expectKeyword("TRANSACTION"); err != nil {
			return nil, err
		}
		return ast.BeginTransaction{}, nil
	case "COMMIT":
		p.advance()
		return ast.Commit{}, nil
	case "ROLLBACK":
		p.advance()
		return ast.Rollback{}, nil
	case "GRANT":
		return p.parseGrantRevoke(true)
	case "REVOKE":
		return p.parseGrantRevoke(false)
	}
	return nil, &mdberr.Error{Kind: mdberr.KindUnknownKeyword, Message: "unknown statement keyword " + t.Text, Position: t.Pos}
}

func (p *Parser) parseUse() (ast.Statement, error) {
	p.advance()
	name, err := p.identText()
	if err != nil {
		return nil, err
	}
	return ast.Use{Database: name}, nil
}

func (p *Parser) parseShow() (ast.Statement, error) {
	p.advance()
	switch {
	case p.isKeyword("DATABASES"):
		p.advance()
		return ast.Show{Kind: ast.ShowDatabases}, nil
	case p.isKeyword("COLLECTIONS"):
		p.advance()
		return ast.Show{Kind: ast.ShowCollections}, nil
	case p.isKeyword("STATUS"):
		p.advance()
		return ast.Show{Kind: ast.ShowStatus}, nil
	case p.cur().Kind == lexer.TokenIdent && strings.EqualFold(p.cur().Text, "USERS"):
		p.advance()
		return ast.Show{Kind: ast.ShowUsers}, nil
	case p.isKeyword("INDEXES"):
		p.advance()
		if err := p.expectKeyword("ON"); err != nil {
			return nil, err
		}
		coll, err := p.identText()
		if err != nil {
			return nil, err
		}
		return ast.Show{Kind: ast.ShowIndexesOn, Collection: coll}, nil
	}
	return nil, p.errorf("expected DATABASES, COLLECTIONS, INDEXES, STATUS or USERS after SHOW")
}

func (p *Parser) parseCreate() (ast.Statement, error) {
	p.advance()
	switch {
	case p.isKeyword("DATABASE"):
		p.advance()
		name, err := p.identText()
		if err != nil {
			return nil, err
		}
		return ast.CreateDatabase{Name: name}, nil
	case p.isKeyword("COLLECTION"):
		p.advance()
		name, err := p.identText()
		if err != nil {
			return nil, err
		}
		return ast.CreateCollection{Name: name}, nil
	case p.isKeyword("USER"):
		return p.parseCreateUser()
	}

	unique := false
	fullText := false
	for {
		if p.isKeyword("UNIQUE") {
			unique = true
			p.advance()
			continue
		}
		if p.isKeyword("TEXT") {
			fullText = true
			p.advance()
			continue
		}
		break
	}
	if err := p.expectKeyword("INDEX"); err != nil {
		return nil, err
	}
	name, err := p.identText()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	coll, err := p.identText()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(lexer.TokenLParen); err != nil {
		return nil, err
	}
	fields, err := p.parseFieldPathList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(lexer.TokenRParen); err != nil {
		return nil, err
	}
	return ast.CreateIndex{Name: name, Collection: coll, Fields: fields, Unique: unique, FullText: fullText}, nil
}

func (p *Parser) parseCreateUser() (ast.Statement, error) {
	p.advance() // USER
	username, err := p.identText()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("WITH"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("PASSWORD"); err != nil {
		return nil, err
	}
	pwTok, err := p.expectKind(lexer.TokenString)
	if err != nil {
		return nil, err
	}
	var roles []string
	if p.isKeyword("ROLE") {
		p.advance()
		for {
			role, err := p.identText()
			if err != nil {
				return nil, err
			}
			roles = append(roles, role)
			if p.cur().Kind != lexer.TokenComma {
				break
			}
			p.advance()
		}
	}
	return ast.CreateUser{Username: username, Password: pwTok.Text, Roles: roles}, nil
}

func (p *Parser) parseDrop() (ast.Statement, error) {
	p.advance()
	switch {
	case p.isKeyword("DATABASE"):
		p.advance()
		name, err := p.identText()
		if err != nil {
			return nil, err
		}
		return ast.DropDatabase{Name: name}, nil
	case p.isKeyword("COLLECTION"):
		p.advance()
		name, err := p.identText()
		if err != nil {
			return nil, err
		}
		return ast.DropCollection{Name: name}, nil
	case p.isKeyword("USER"):
		p.advance()
		name, err := p.identText()
		if err != nil {
			return nil, err
		}
		return ast.DropUser{Username: name}, nil
	case p.isKeyword("INDEX"):
		p.advance()
		name, err := p.identText()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("ON"); err != nil {
			return nil, err
		}
		coll, err := p.identText()
		if err != nil {
			return nil, err
		}
		return ast.DropIndex{Name: name, Collection: coll}, nil
	}
	return nil, p.errorf("expected DATABASE, COLLECTION, INDEX or USER after DROP")
}

func (p *Parser) parseGrantRevoke(grant bool) (ast.Statement, error) {
	p.advance()
	priv, err := p.identText()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	target, err := p.identText()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TO"); err != nil {
		// REVOKE uses FROM; GRANT uses TO. Accept either.
		if err2 := p.expectKeyword("FROM"); err2 != nil {
			return nil, err
		}
	}
	user, err := p.identText()
	if err != nil {
		return nil, err
	}
	if grant {
		return ast.Grant{Privilege: priv, Target: target, Username: user}, nil
	}
	return ast.Revoke{Privilege: priv, Target: target, Username: user}, nil
}

func (p *Parser) parseInsert() (ast.Statement, error) {
	p.advance()
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	coll, err := p.identText()
	if err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var docs []document.Value
	if arr, ok := e.(ast.ArrayLiteral); ok {
		for _, elem := range arr.Elements {
			v, err := evalLiteralExpr(elem)
			if err != nil {
				return nil, err
			}
			docs = append(docs, v)
		}
	} else {
		v, err := evalLiteralExpr(e)
		if err != nil {
			return nil, err
		}
		docs = append(docs, v)
	}
	return ast.Insert{Collection: coll, Documents: docs}, nil
}

func (p *Parser) parseFind() (ast.Statement, error) {
	p.advance()
	coll, err := p.identText()
	if err != nil {
		return nil, err
	}
	stmt := ast.Find{Collection: coll}
	if p.isKeyword("WHERE") {
		p.advance()
		stmt.Where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if p.isKeyword("SELECT") {
		p.advance()
		stmt.Select, err = p.parseFieldPathList()
		if err != nil {
			return nil, err
		}
	}
	if p.isKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		stmt.OrderBy, err = p.parseSortFields()
		if err != nil {
			return nil, err
		}
	}
	if p.isKeyword("LIMIT") {
		p.advance()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Limit = &n
	}
	if p.isKeyword("SKIP") {
		p.advance()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Skip = &n
	}
	return stmt, nil
}

func (p *Parser) parseSortFields() ([]ast.SortField, error) {
	var fields []ast.SortField
	for {
		path, err := p.parseFieldPath()
		if err != nil {
			return nil, err
		}
		desc := false
		if p.isKeyword("DESC") {
			desc = true
			p.advance()
		} else if p.isKeyword("ASC") {
			p.advance()
		}
		fields = append(fields, ast.SortField{Path: path, Descending: desc})
		if p.cur().Kind != lexer.TokenComma {
			return fields, nil
		}
		p.advance()
	}
}

func (p *Parser) parseIntLiteral() (int64, error) {
	tok, err := p.expectKind(lexer.TokenInt)
	if err != nil {
		return 0, err
	}
	return tok.IntVal, nil
}

func (p *Parser) parseUpdate() (ast.Statement, error) {
	p.advance()
	coll, err := p.identText()
	if err != nil {
		return nil, err
	}
	stmt := ast.Update{Collection: coll}
	for {
		switch {
		case p.isKeyword("SET"):
			p.advance()
			ops, err := p.parseAssignOps(ast.OpSet)
			if err != nil {
				return nil, err
			}
			stmt.Ops = append(stmt.Ops, ops...)
		case p.isKeyword("INC"):
			p.advance()
			ops, err := p.parseAssignOps(ast.OpInc)
			if err != nil {
				return nil, err
			}
			stmt.Ops = append(stmt.Ops, ops...)
		case p.isKeyword("PUSH"):
			p.advance()
			ops, err := p.parseAssignOps(ast.OpPush)
			if err != nil {
				return nil, err
			}
			stmt.Ops = append(stmt.Ops, ops...)
		case p.isKeyword("PULL"):
			p.advance()
			ops, err := p.parseAssignOps(ast.OpPull)
			if err != nil {
				return nil, err
			}
			stmt.Ops = append(stmt.Ops, ops...)
		case p.isKeyword("UNSET"):
			p.advance()
			for {
				path, err := p.parseFieldPath()
				if err != nil {
					return nil, err
				}
				stmt.Ops = append(stmt.Ops, ast.UpdateOp{Kind: ast.OpUnset, Path: path})
				if p.cur().Kind != lexer.TokenComma {
					break
				}
				p.advance()
			}
		case p.isKeyword("RENAME"):
			p.advance()
			for {
				from, err := p.parseFieldPath()
				if err != nil {
					return nil, err
				}
				if err := p.expectKeyword("TO"); err != nil {
					return nil, err
				}
				to, err := p.parseFieldPath()
				if err != nil {
					return nil, err
				}
				stmt.Ops = append(stmt.Ops, ast.UpdateOp{Kind: ast.OpRename, Path: from, RenameTo: to})
				if p.cur().Kind != lexer.TokenComma {
					break
				}
				p.advance()
			}
		case p.isKeyword("WHERE"):
			p.advance()
			stmt.Where, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
			return stmt, nil
		default:
			return stmt, nil
		}
	}
}

func (p *Parser) parseAssignOps(kind ast.UpdateOpKind) ([]ast.UpdateOp, error) {
	var ops []ast.UpdateOp
	for {
		path, err := p.parseFieldPath()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKindOp("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ops = append(ops, ast.UpdateOp{Kind: kind, Path: path, Value: val})
		if p.cur().Kind != lexer.TokenComma {
			return ops, nil
		}
		p.advance()
	}
}

func (p *Parser) expectKindOp(text string) (lexer.Token, error) {
	if p.cur().Kind != lexer.TokenOp || p.cur().Text != text {
		return lexer.Token{}, p.errorf("expected operator %q, got %v", text, p.cur())
	}
	return p.advance(), nil
}

func (p *Parser) parseDelete() (ast.Statement, error) {
	p.advance()
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	coll, err := p.identText()
	if err != nil {
		return nil, err
	}
	stmt := ast.Delete{Collection: coll}
	if p.isKeyword("WHERE") {
		p.advance()
		stmt.Where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseAggregate() (ast.Statement, error) {
	p.advance()
	coll, err := p.identText()
	if err != nil {
		return nil, err
	}
	stmt := ast.Aggregate{Collection: coll}
	for p.cur().Kind == lexer.TokenOp && p.cur().Text == "|" {
		p.advance()
		stage, err := p.parseStage()
		if err != nil {
			return nil, err
		}
		stmt.Stages = append(stmt.Stages, stage)
	}
	return stmt, nil
}

func (p *Parser) parseStage() (ast.Stage, error) {
	switch {
	case p.isKeyword("MATCH"):
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return ast.Stage{}, err
		}
		return ast.Stage{Kind: ast.StageMatch, Filter: e}, nil
	case p.isKeyword("GROUP"):
		return p.parseGroupStage()
	case p.isKeyword("SORT"):
		p.advance()
		fields, err := p.parseSortFields()
		if err != nil {
			return ast.Stage{}, err
		}
		return ast.Stage{Kind: ast.StageSort, SortFields: fields}, nil
	case p.isKeyword("LIMIT"):
		p.advance()
		n, err := p.parseIntLiteral()
		if err != nil {
			return ast.Stage{}, err
		}
		return ast.Stage{Kind: ast.StageLimit, N: n}, nil
	case p.isKeyword("SKIP"):
		p.advance()
		n, err := p.parseIntLiteral()
		if err != nil {
			return ast.Stage{}, err
		}
		return ast.Stage{Kind: ast.StageSkip, N: n}, nil
	case p.isKeyword("PROJECT"):
		p.advance()
		fields, err := p.parseFieldPathList()
		if err != nil {
			return ast.Stage{}, err
		}
		return ast.Stage{Kind: ast.StageProject, ProjectFields: fields}, nil
	case p.isKeyword("UNWIND"):
		p.advance()
		path, err := p.parseFieldPath()
		if err != nil {
			return ast.Stage{}, err
		}
		return ast.Stage{Kind: ast.StageUnwind, UnwindPath: path}, nil
	case p.isKeyword("LOOKUP"):
		return p.parseLookupStage()
	}
	return ast.Stage{}, p.errorf("unknown aggregation stage keyword %v", p.cur())
}

func (p *Parser) parseGroupStage() (ast.Stage, error) {
	p.advance()
	if err := p.expectKeyword("BY"); err != nil {
		return ast.Stage{}, err
	}
	by, err := p.parseFieldPathList()
	if err != nil {
		return ast.Stage{}, err
	}
	stage := ast.Stage{Kind: ast.StageGroup, GroupBy: by}
	if p.isKeyword("AS") {
		p.advance()
		if _, err := p.expectKind(lexer.TokenLBrace); err != nil {
			return ast.Stage{}, err
		}
		for {
			name, err := p.identText()
			if err != nil {
				return ast.Stage{}, err
			}
			if _, err := p.expectKind(lexer.TokenColon); err != nil {
				return ast.Stage{}, err
			}
			fn, err := p.identText()
			if err != nil {
				return ast.Stage{}, err
			}
			var field []string
			if _, err := p.expectKind(lexer.TokenLParen); err != nil {
				return ast.Stage{}, err
			}
			if p.cur().Kind != lexer.TokenRParen {
				field, err = p.parseFieldPath()
				if err != nil {
					return ast.Stage{}, err
				}
			}
			if _, err := p.expectKind(lexer.TokenRParen); err != nil {
				return ast.Stage{}, err
			}
			stage.Accumulators = append(stage.Accumulators, ast.Accumulator{Name: name, Func: fn, Field: field})
			if p.cur().Kind != lexer.TokenComma {
				break
			}
			p.advance()
		}
		if _, err := p.expectKind(lexer.TokenRBrace); err != nil {
			return ast.Stage{}, err
		}
	}
	return stage, nil
}

func (p *Parser) parseLookupStage() (ast.Stage, error) {
	p.advance()
	stage := ast.Stage{Kind: ast.StageLookup}
	for {
		name, err := p.identText()
		if err != nil {
			return ast.Stage{}, err
		}
		if _, err := p.expectKind(lexer.TokenColon); err != nil {
			return ast.Stage{}, err
		}
		switch name {
		case "from":
			v, err := p.identText()
			if err != nil {
				return ast.Stage{}, err
			}
			stage.LookupFrom = v
		case "local_field", "localField":
			path, err := p.parseFieldPath()
			if err != nil {
				return ast.Stage{}, err
			}
			stage.LookupLocalField = path
		case "foreign_field", "foreignField":
			path, err := p.parseFieldPath()
			if err != nil {
				return ast.Stage{}, err
			}
			stage.LookupForeignField = path
		case "as":
			v, err := p.identText()
			if err != nil {
				return ast.Stage{}, err
			}
			stage.LookupAs = v
		default:
			return ast.Stage{}, p.errorf("unknown LOOKUP option %q", name)
		}
		if p.cur().Kind != lexer.TokenComma {
			break
		}
		p.advance()
	}
	return stage, nil
}

// evalLiteralExpr folds a parsed Expr that is known to be entirely
// literal (INSERT's document/array values) down into a document.Value.
// A non-literal sub-expression (a field path, function call, ...) is a
// parse error: INSERT takes data, not queries.
func evalLiteralExpr(e ast.Expr) (document.Value, error) {
	switch v := e.(type) {
	case ast.Literal:
		return v.Value, nil
	case ast.ArrayLiteral:
		vals := make([]document.Value, len(v.Elements))
		for i, elem := range v.Elements {
			val, err := evalLiteralExpr(elem)
			if err != nil {
				return document.Value{}, err
			}
			vals[i] = val
		}
		return document.Array(vals), nil
	case ast.DocumentLiteral:
		doc := document.NewDocument()
		for i, key := range v.Keys {
			val, err := evalLiteralExpr(v.Values[i])
			if err != nil {
				return document.Value{}, err
			}
			doc.Set(key, val)
		}
		return document.DocumentValue(doc), nil
	case ast.UnaryExpr:
		if v.Op == ast.OpNeg {
			inner, err := evalLiteralExpr(v.Operand)
			if err != nil {
				return document.Value{}, err
			}
			switch inner.Kind {
			case document.KindI64:
				i, _ := inner.AsInt64()
				return document.I64(-i), nil
			case document.KindF64:
				f, _ := inner.AsFloat64()
				return document.F64(-f), nil
			}
		}
	}
	return document.Value{}, mdberr.New(mdberr.KindSyntax, "expected a literal value, got a query expression")
}
