package lexer

import (
	"strconv"
	"strings"

	"github.com/cuemby/mikudb/pkg/mdberr"
)

// Lexer turns MQL source into a Token stream, one call to Next at a time.
type Lexer struct {
	src []rune
	pos int
}

func New(src string) *Lexer {
	return &Lexer{src: []rune(src)}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() rune {
	r := l.peek()
	l.pos++
	return r
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.pos < len(l.src) && isSpace(l.peek()) {
			l.pos++
		}
		if l.peek() == '/' && l.peekAt(1) == '/' {
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.pos++
			}
			continue
		}
		if l.peek() == '/' && l.peekAt(1) == '*' {
			l.pos += 2
			for l.pos < len(l.src) && !(l.peek() == '*' && l.peekAt(1) == '/') {
				l.pos++
			}
			l.pos += 2
			continue
		}
		return
	}
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool { return isIdentStart(r) || isDigit(r) }

// Next returns the next token, or a TokenEOF token at end of input.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespaceAndComments()
	start := l.pos
	if l.pos >= len(l.src) {
		return Token{Kind: TokenEOF, Pos: start}, nil
	}
	r := l.peek()

	switch {
	case r == '`':
		return l.lexQuotedIdent(start)
	case r == '"' || r == '\'':
		return l.lexString(start, r)
	case isDigit(r):
		return l.lexNumber(start)
	case isIdentStart(r):
		return l.lexIdentOrKeyword(start)
	}

	switch r {
	case '(':
		l.advance()
		return Token{Kind: TokenLParen, Text: "(", Pos: start}, nil
	case ')':
		l.advance()
		return Token{Kind: TokenRParen, Text: ")", Pos: start}, nil
	case '[':
		l.advance()
		return Token{Kind: TokenLBracket, Text: "[", Pos: start}, nil
	case ']':
		l.advance()
		return Token{Kind: TokenRBracket, Text: "]", Pos: start}, nil
	case '{':
		l.advance()
		return Token{Kind: TokenLBrace, Text: "{", Pos: start}, nil
	case '}':
		l.advance()
		return Token{Kind: TokenRBrace, Text: "}", Pos: start}, nil
	case ',':
		l.advance()
		return Token{Kind: TokenComma, Text: ",", Pos: start}, nil
	case '.':
		if isDigit(l.peekAt(1)) {
			return l.lexNumber(start)
		}
		l.advance()
		return Token{Kind: TokenDot, Text: ".", Pos: start}, nil
	case ':':
		l.advance()
		return Token{Kind: TokenColon, Text: ":", Pos: start}, nil
	case ';':
		l.advance()
		return Token{Kind: TokenSemicolon, Text: ";", Pos: start}, nil
	case '=':
		l.advance()
		return Token{Kind: TokenOp, Text: "=", Pos: start}, nil
	case '!':
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return Token{Kind: TokenOp, Text: "!=", Pos: start}, nil
		}
		return Token{}, mdberr.New(mdberr.KindSyntax, "unexpected '!' at position %d", start)
	case '<':
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return Token{Kind: TokenOp, Text: "<=", Pos: start}, nil
		}
		if l.peek() == '>' {
			l.advance()
			return Token{Kind: TokenOp, Text: "<>", Pos: start}, nil
		}
		return Token{Kind: TokenOp, Text: "<", Pos: start}, nil
	case '>':
		l.advance()
		if l.peek() == '=' {
			l.advance()
			return Token{Kind: TokenOp, Text: ">=", Pos: start}, nil
		}
		return Token{Kind: TokenOp, Text: ">", Pos: start}, nil
	case '+':
		l.advance()
		return Token{Kind: TokenOp, Text: "+", Pos: start}, nil
	case '-':
		l.advance()
		return Token{Kind: TokenOp, Text: "-", Pos: start}, nil
	case '*':
		l.advance()
		return Token{Kind: TokenOp, Text: "*", Pos: start}, nil
	case '/':
		l.advance()
		return Token{Kind: TokenOp, Text: "/", Pos: start}, nil
	case '%':
		l.advance()
		return Token{Kind: TokenOp, Text: "%", Pos: start}, nil
	case '|':
		l.advance()
		return Token{Kind: TokenOp, Text: "|", Pos: start}, nil
	}

	return Token{}, mdberr.New(mdberr.KindSyntax, "unexpected character %q at position %d", r, start)
}

func (l *Lexer) lexQuotedIdent(start int) (Token, error) {
	l.advance() // opening `
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return Token{}, mdberr.New(mdberr.KindSyntax, "unterminated quoted identifier starting at %d", start)
		}
		r := l.advance()
		if r == '`' {
			break
		}
		sb.WriteRune(r)
	}
	return Token{Kind: TokenIdent, Text: sb.String(), Pos: start}, nil
}

func (l *Lexer) lexString(start int, quote rune) (Token, error) {
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return Token{}, mdberr.New(mdberr.KindSyntax, "unterminated string starting at %d", start)
		}
		r := l.advance()
		if r == '\\' && l.pos < len(l.src) {
			sb.WriteRune(l.advance())
			continue
		}
		if r == quote {
			break
		}
		sb.WriteRune(r)
	}
	return Token{Kind: TokenString, Text: sb.String(), Pos: start}, nil
}

func (l *Lexer) lexNumber(start int) (Token, error) {
	var sb strings.Builder
	isFloat := false
	for isDigit(l.peek()) {
		sb.WriteRune(l.advance())
	}
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		isFloat = true
		sb.WriteRune(l.advance())
		for isDigit(l.peek()) {
			sb.WriteRune(l.advance())
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		isFloat = true
		sb.WriteRune(l.advance())
		if l.peek() == '+' || l.peek() == '-' {
			sb.WriteRune(l.advance())
		}
		for isDigit(l.peek()) {
			sb.WriteRune(l.advance())
		}
	}
	text := sb.String()
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Token{}, mdberr.New(mdberr.KindSyntax, "invalid float literal %q at %d", text, start)
		}
		return Token{Kind: TokenFloat, Text: text, FloatVal: f, Pos: start}, nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Token{}, mdberr.New(mdberr.KindSyntax, "invalid integer literal %q at %d", text, start)
	}
	return Token{Kind: TokenInt, Text: text, IntVal: i, Pos: start}, nil
}

func (l *Lexer) lexIdentOrKeyword(start int) (Token, error) {
	var sb strings.Builder
	for isIdentPart(l.peek()) {
		sb.WriteRune(l.advance())
	}
	text := sb.String()
	upper := strings.ToUpper(text)
	if keywords[upper] {
		return Token{Kind: TokenKeyword, Text: upper, Pos: start}, nil
	}
	return Token{Kind: TokenIdent, Text: text, Pos: start}, nil
}

// Tokenize runs the lexer to completion, returning every token including
// the trailing TokenEOF.
func Tokenize(src string) ([]Token, error) {
	l := New(src)
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == TokenEOF {
			return toks, nil
		}
	}
}
