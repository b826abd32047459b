package lexer

import "testing"

func TestLexerBasicTokens(t *testing.T) {
	tests := []struct {
		input string
		want  []TokenType
	}{
		{"42", []TokenType{TOKEN_INT, TOKEN_EOF}},
		{"3.14", []TokenType{TOKEN_FLOAT, TOKEN_EOF}},
		{`"hi"`, []TokenType{TOKEN_STRING, TOKEN_EOF}},
		{"1 + 2 * 3", []TokenType{TOKEN_INT, TOKEN_PLUS, TOKEN_INT, TOKEN_STAR, TOKEN_INT, TOKEN_EOF}},
		{"x += 1", []TokenType{TOKEN_IDENT, TOKEN_PLUS_ASSIGN, TOKEN_INT, TOKEN_EOF}},
		{"fn class seal pub priv prot static", []TokenType{
			TOKEN_FN, TOKEN_CLASS, TOKEN_SEAL, TOKEN_PUB, TOKEN_PRIV, TOKEN_PROT, TOKEN_STATIC, TOKEN_EOF,
		}},
		{"a -> b", []TokenType{TOKEN_IDENT, TOKEN_ARROW, TOKEN_IDENT, TOKEN_EOF}},
		{"a is Error", []TokenType{TOKEN_IDENT, TOKEN_IS, TOKEN_IDENT, TOKEN_EOF}},
		{"// a comment\n42", []TokenType{TOKEN_INT, TOKEN_EOF}},
		{"@ffi", []TokenType{TOKEN_AT_FFI, TOKEN_EOF}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			toks, err := Tokenize(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(toks) != len(tt.want) {
				t.Fatalf("got %d tokens, want %d (%v)", len(toks), len(tt.want), toks)
			}
			for i, want := range tt.want {
				if toks[i].Type != want {
					t.Errorf("token[%d] = %s, want %s", i, toks[i].Type, want)
				}
			}
		})
	}
}

func TestLexerUnknownAnnotationFails(t *testing.T) {
	_, err := Tokenize("@bogus")
	if err == nil {
		t.Fatal("expected error for unknown annotation")
	}
	lexErr, ok := err.(*LexError)
	if !ok {
		t.Fatalf("expected *LexError, got %T", err)
	}
	if lexErr.Line != 1 || lexErr.Column != 1 {
		t.Errorf("unexpected position: %+v", lexErr)
	}
}

func TestLexerEmptyAnnotationFails(t *testing.T) {
	_, err := Tokenize("@ ")
	if err == nil {
		t.Fatal("expected error for empty annotation")
	}
}

func TestLexerLineColumnTracking(t *testing.T) {
	src := "let x\n  = 1"
	l := NewLexer(src)
	tok, _ := l.NextToken() // let
	if tok.Position.Line != 1 {
		t.Errorf("let: line = %d, want 1", tok.Position.Line)
	}
	tok, _ = l.NextToken() // x
	if tok.Position != (Position{Line: 1, Column: 5}) {
		t.Errorf("x position = %+v", tok.Position)
	}
	tok, _ = l.NextToken() // =
	if tok.Position.Line != 2 {
		t.Errorf("=: line = %d, want 2", tok.Position.Line)
	}
}

func TestLexerRestartablePastEOF(t *testing.T) {
	l := NewLexer("1")
	first, _ := l.NextToken()
	if first.Type != TOKEN_INT {
		t.Fatalf("expected INT, got %s", first.Type)
	}
	for i := 0; i < 3; i++ {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.Type != TOKEN_EOF {
			t.Errorf("expected repeated EOF, got %s", tok.Type)
		}
	}
}
