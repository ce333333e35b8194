package lexer

import "testing"

func TestTokenizeKeywordsCaseInsensitive(t *testing.T) {
	toks, err := Tokenize("find users where age >= 18")
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if toks[0].Kind != TokenKeyword || toks[0].Text != "FIND" {
		t.Errorf("first token = %+v, want keyword FIND", toks[0])
	}
	if toks[1].Kind != TokenIdent || toks[1].Text != "users" {
		t.Errorf("second token = %+v, want ident users", toks[1])
	}
}

func TestTokenizeDistinguishesIntFromFloat(t *testing.T) {
	toks, err := Tokenize("42 3.14 2e10")
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if toks[0].Kind != TokenInt || toks[0].IntVal != 42 {
		t.Errorf("toks[0] = %+v, want Int 42", toks[0])
	}
	if toks[1].Kind != TokenFloat || toks[1].FloatVal != 3.14 {
		t.Errorf("toks[1] = %+v, want Float 3.14", toks[1])
	}
	if toks[2].Kind != TokenFloat {
		t.Errorf("toks[2] = %+v, want Float (exponent form)", toks[2])
	}
}

func TestTokenizeSkipsComments(t *testing.T) {
	toks, err := Tokenize("FIND users // trailing comment\nWHERE /* inline */ x = 1")
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	var kinds []TokenKind
	for _, tok := range toks {
		if tok.Kind != TokenEOF {
			kinds = append(kinds, tok.Kind)
		}
	}
	want := []TokenKind{TokenKeyword, TokenIdent, TokenKeyword, TokenIdent, TokenOp, TokenInt}
	if len(kinds) != len(want) {
		t.Fatalf("token kinds = %v, want %v", kinds, want)
	}
}

func TestTokenizeBacktickQuotedIdentifier(t *testing.T) {
	toks, err := Tokenize("FIND `my col`")
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if toks[1].Kind != TokenIdent || toks[1].Text != "my col" {
		t.Errorf("toks[1] = %+v, want quoted ident \"my col\"", toks[1])
	}
}

func TestTokenizeComparisonOperators(t *testing.T) {
	toks, err := Tokenize("<= >= <> != < >")
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	want := []string{"<=", ">=", "<>", "!=", "<", ">"}
	for i, w := range want {
		if toks[i].Text != w {
			t.Errorf("toks[%d].Text = %q, want %q", i, toks[i].Text, w)
		}
	}
}
