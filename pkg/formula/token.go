package formula

import "fmt"

// TokenKind classifies lexical tokens in formula source text.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenNumber
	TokenString
	TokenIdent    // bare function name
	TokenFieldRef // text inside {...}, captured verbatim as a field name
	TokenOperator // + - * / = != < > <= >=
	TokenComma
	TokenLParen
	TokenRParen
)

func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "end of input"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenIdent:
		return "identifier"
	case TokenFieldRef:
		return "field reference"
	case TokenOperator:
		return "operator"
	case TokenComma:
		return "','"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	}
	return "unknown"
}

// Token is a single lexical token with its byte offset in the source.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

func (t Token) String() string {
	if t.Kind == TokenEOF {
		return "end of input"
	}
	return fmt.Sprintf("%q", t.Text)
}
