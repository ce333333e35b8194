// Package parser implements MikuDB Query Language's recursive-descent
// parser (spec.md §4.6), turning a lexer.Token stream into an ast.Statement.
package parser

import (
	"fmt"

	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/query/ast"
	"github.com/cuemby/mikudb/pkg/query/lexer"
)

// Parser consumes a fully-tokenized statement. Tokenizing up front (rather
// than lexing lazily) keeps lookahead trivial and matches the grammar's
// modest statement sizes.
type Parser struct {
	toks []lexer.Token
	pos  int
}

// Parse tokenizes src and parses exactly one statement from it.
func Parse(src string) (ast.Statement, error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	p.skipSemicolon()
	if !p.atEOF() {
		return nil, p.errorf("unexpected trailing input")
	}
	return stmt, nil
}

func (p *Parser) cur() lexer.Token {
	if p.pos >= len(p.toks) {
		return lexer.Token{Kind: lexer.TokenEOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) atEOF() bool { return p.cur().Kind == lexer.TokenEOF }

func (p *Parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) skipSemicolon() {
	if p.cur().Kind == lexer.TokenSemicolon {
		p.advance()
	}
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &mdberr.Error{Kind: mdberr.KindParse, Message: fmt.Sprintf(format, args...), Position: p.cur().Pos}
}

// isKeyword reports whether the current token is the named keyword
// (already upper-cased by the lexer).
func (p *Parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.Kind == lexer.TokenKeyword && t.Text == kw
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return p.errorf("expected keyword %s, got %v", kw, p.cur())
	}
	p.advance()
	return nil
}

func (p *Parser) expectKind(k lexer.TokenKind) (lexer.Token, error) {
	if p.cur().Kind != k {
		return lexer.Token{}, p.errorf("expected %v, got %v", k, p.cur())
	}
	return p.advance(), nil
}

// identText accepts either an identifier or a keyword token as a
// bare name, since several keywords (STATUS, INDEX, USER, ...) double as
// ordinary identifiers in context (e.g. a collection literally named
// "status").
func (p *Parser) identText() (string, error) {
	t := p.cur()
	if t.Kind == lexer.TokenIdent || t.Kind == lexer.TokenKeyword {
		p.advance()
		return t.Text, nil
	}
	return "", p.errorf("expected identifier, got %v", t)
}

func (p *Parser) parseFieldPath() ([]string, error) {
	first, err := p.identText()
	if err != nil {
		return nil, err
	}
	path := []string{first}
	for p.cur().Kind == lexer.TokenDot {
		p.advance()
		next, err := p.identText()
		if err != nil {
			return nil, err
		}
		path = append(path, next)
	}
	return path, nil
}

func (p *Parser) parseFieldPathList() ([][]string, error) {
	var paths [][]string
	for {
		path, err := p.parseFieldPath()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
		if p.cur().Kind != lexer.TokenComma {
			return paths, nil
		}
		p.advance()
	}
}
