package formula

import (
	"strconv"
	"strings"

	apperrors "github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

// Parser builds an AST from a token stream using recursive descent with
// precedence climbing. Grammar, highest to lowest precedence:
//
//	primary   := Number | String | FieldRef | Ident '(' args ')' | '(' expr ')' | '-' primary
//	multiplic := primary (('*'|'/') primary)*
//	additive  := multiplic (('+'|'-') multiplic)*
//	compare   := additive (('='|'!='|'<'|'>'|'<='|'>=') additive)*
//	expr      := compare
//	args      := (expr (',' expr)*)?
type Parser struct {
	tokens []Token
	pos    int
}

// Parse lexes and parses a formula expression into an unbound AST. Function
// names and arities are checked statically against the library so a bad call
// fails at definition time, before any record is evaluated.
func Parse(src string) (Node, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: tokens}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Kind != TokenEOF {
		return nil, &apperrors.ParseError{Expected: "end of input", Found: tok.String(), Offset: tok.Pos}
	}
	if err := CheckCalls(node); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Kind != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(kind TokenKind) (Token, error) {
	tok := p.peek()
	if tok.Kind != kind {
		return Token{}, &apperrors.ParseError{Expected: kind.String(), Found: tok.String(), Offset: tok.Pos}
	}
	return p.advance(), nil
}

func (p *Parser) parseExpr() (Node, error) {
	return p.parseCompare()
}

var compareOps = map[string]bool{
	"=": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
}

func (p *Parser) parseCompare() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Kind != TokenOperator || !compareOps[tok.Text] {
			return left, nil
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: tok.Text, Left: left, Right: right}
	}
}

func (p *Parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Kind != TokenOperator || (tok.Text != "+" && tok.Text != "-") {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: tok.Text, Left: left, Right: right}
	}
}

func (p *Parser) parseMultiplicative() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.Kind != TokenOperator || (tok.Text != "*" && tok.Text != "/") {
			return left, nil
		}
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: tok.Text, Left: left, Right: right}
	}
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokenNumber:
		p.advance()
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, &apperrors.ParseError{Expected: "number", Found: tok.String(), Offset: tok.Pos}
		}
		return &Literal{Val: Number(f)}, nil

	case TokenString:
		p.advance()
		return &Literal{Val: Text(tok.Text)}, nil

	case TokenFieldRef:
		p.advance()
		return &FieldRef{Name: strings.TrimSpace(tok.Text)}, nil

	case TokenIdent:
		p.advance()
		return p.parseCall(tok)

	case TokenLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return inner, nil

	case TokenOperator:
		if tok.Text == "-" {
			p.advance()
			operand, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			return &Unary{Op: "-", Operand: operand}, nil
		}
	}
	return nil, &apperrors.ParseError{Expected: "expression", Found: tok.String(), Offset: tok.Pos}
}

func (p *Parser) parseCall(name Token) (Node, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	call := &Call{Name: strings.ToUpper(name.Text)}
	if p.peek().Kind == TokenRParen {
		p.advance()
		return call, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		tok := p.peek()
		switch tok.Kind {
		case TokenComma:
			p.advance()
		case TokenRParen:
			p.advance()
			return call, nil
		default:
			return nil, &apperrors.ParseError{Expected: "',' or ')'", Found: tok.String(), Offset: tok.Pos}
		}
	}
}
