package formula

import (
	"unicode"
	"unicode/utf8"

	apperrors "github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

// Lexer tokenizes formula source text. Positions are byte offsets into the
// UTF-8 input so error messages can point back into the original expression.
type Lexer struct {
	src string
	pos int
}

// NewLexer creates a lexer over the given formula source.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src}
}

// Lex tokenizes src in one call, ending with an EOF token.
func Lex(src string) ([]Token, error) {
	return NewLexer(src).Tokenize()
}

// Tokenize scans the entire input and returns the token list or a LexError.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) current() (rune, int) {
	if l.pos >= len(l.src) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.src[l.pos:])
}

func (l *Lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos+offset:])
	return r
}

func (l *Lexer) skipWhitespace() {
	for {
		r, size := l.current()
		if size == 0 || !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *Lexer) next() (Token, error) {
	l.skipWhitespace()

	start := l.pos
	r, size := l.current()
	if size == 0 {
		return Token{Kind: TokenEOF, Pos: start}, nil
	}

	switch {
	case r == '{':
		return l.scanFieldRef()
	case r == '"':
		return l.scanString()
	case isDigit(r), r == '.' && isDigit(l.peekAt(size)):
		return l.scanNumber(), nil
	case isIdentStart(r):
		return l.scanIdent(), nil
	}

	switch r {
	case '(':
		l.pos += size
		return Token{Kind: TokenLParen, Text: "(", Pos: start}, nil
	case ')':
		l.pos += size
		return Token{Kind: TokenRParen, Text: ")", Pos: start}, nil
	case ',':
		l.pos += size
		return Token{Kind: TokenComma, Text: ",", Pos: start}, nil
	case '+', '-', '*', '/', '=':
		l.pos += size
		return Token{Kind: TokenOperator, Text: string(r), Pos: start}, nil
	case '<', '>':
		l.pos += size
		if next, _ := l.current(); next == '=' {
			l.pos++
			return Token{Kind: TokenOperator, Text: string(r) + "=", Pos: start}, nil
		}
		return Token{Kind: TokenOperator, Text: string(r), Pos: start}, nil
	case '!':
		l.pos += size
		if next, _ := l.current(); next == '=' {
			l.pos++
			return Token{Kind: TokenOperator, Text: "!=", Pos: start}, nil
		}
		return Token{}, &apperrors.LexError{Offset: start, Char: '!', Message: "expected '=' after '!'"}
	}

	return Token{}, &apperrors.LexError{Offset: start, Char: r, Message: "invalid character"}
}

// scanFieldRef captures everything between { and } verbatim. Field names may
// contain spaces; names are resolved to field ids later by the binding pass.
func (l *Lexer) scanFieldRef() (Token, error) {
	start := l.pos
	l.pos++ // consume '{'
	for {
		r, size := l.current()
		if size == 0 {
			return Token{}, &apperrors.LexError{Offset: start, Char: '{', Message: "unterminated field reference"}
		}
		if r == '}' {
			name := l.src[start+1 : l.pos]
			l.pos += size
			return Token{Kind: TokenFieldRef, Text: name, Pos: start}, nil
		}
		l.pos += size
	}
}

// scanString scans a double-quoted, backslash-escaped string literal.
func (l *Lexer) scanString() (Token, error) {
	start := l.pos
	l.pos++ // consume opening quote
	var out []rune
	for {
		r, size := l.current()
		if size == 0 {
			return Token{}, &apperrors.LexError{Offset: start, Char: '"', Message: "unterminated string"}
		}
		switch r {
		case '"':
			l.pos += size
			return Token{Kind: TokenString, Text: string(out), Pos: start}, nil
		case '\\':
			l.pos += size
			esc, escSize := l.current()
			if escSize == 0 {
				return Token{}, &apperrors.LexError{Offset: start, Char: '"', Message: "unterminated string"}
			}
			switch esc {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, esc)
			}
			l.pos += escSize
		default:
			out = append(out, r)
			l.pos += size
		}
	}
}

func (l *Lexer) scanNumber() Token {
	start := l.pos
	for {
		r, size := l.current()
		if size == 0 || !isDigit(r) {
			break
		}
		l.pos += size
	}
	if r, size := l.current(); r == '.' && isDigit(l.peekAt(size)) {
		l.pos += size
		for {
			r, size := l.current()
			if size == 0 || !isDigit(r) {
				break
			}
			l.pos += size
		}
	}
	return Token{Kind: TokenNumber, Text: l.src[start:l.pos], Pos: start}
}

func (l *Lexer) scanIdent() Token {
	start := l.pos
	for {
		r, size := l.current()
		if size == 0 || !isIdentPart(r) {
			break
		}
		l.pos += size
	}
	return Token{Kind: TokenIdent, Text: l.src[start:l.pos], Pos: start}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || isDigit(r)
}
