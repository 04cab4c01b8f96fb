package jschallenge

import "fmt"

// node is an expression of the obfuscation language.
type node interface {
	String() string
}

type (
	// arrayLit is [] or [expr].
	arrayLit struct{ elem node }

	unaryExpr struct {
		op      byte
		operand node
	}

	binaryExpr struct {
		op          byte
		left, right node
	}

	// callExpr is an immediately invoked function literal.  arg is nil for
	// an empty argument list.
	callExpr struct {
		param string
		body  string
		arg   node
	}
)

func (a arrayLit) String() string {
	if a.elem == nil {
		return "[]"
	}
	return "[" + a.elem.String() + "]"
}

func (u unaryExpr) String() string  { return string(u.op) + u.operand.String() }
func (b binaryExpr) String() string { return fmt.Sprintf("(%s%c%s)", b.left, b.op, b.right) }

func (c callExpr) String() string {
	arg := ""
	if c.arg != nil {
		arg = c.arg.String()
	}
	return fmt.Sprintf("function(%s){…}(%s)", c.param, arg)
}

// parser is a recursive-descent parser over the token stream:
//
//	expr    = mul { ("+" | "-") mul }
//	mul     = unary { ("*" | "/") unary }
//	unary   = ("+" | "-" | "!") unary | primary
//	primary = "[" [expr] "]" | "(" expr ")" | FUNC "(" [expr] ")"
type parser struct {
	toks []token
	pos  int
}

func parseExpression(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %s at offset %d", t.kind, t.pos)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokenKind) error {
	if t := p.next(); t.kind != k {
		return fmt.Errorf("expected %s, got %s at offset %d", k, t.kind, t.pos)
	}
	return nil
}

func (p *parser) expr() (node, error) {
	left, err := p.mul()
	if err != nil {
		return nil, err
	}
	for {
		var op byte
		switch p.peek().kind {
		case tokPlus:
			op = '+'
		case tokMinus:
			op = '-'
		default:
			return left, nil
		}
		p.next()
		right, err := p.mul()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: op, left: left, right: right}
	}
}

func (p *parser) mul() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		var op byte
		switch p.peek().kind {
		case tokStar:
			op = '*'
		case tokSlash:
			op = '/'
		default:
			return left, nil
		}
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: op, left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	var op byte
	switch p.peek().kind {
	case tokPlus:
		op = '+'
	case tokMinus:
		op = '-'
	case tokBang:
		op = '!'
	default:
		return p.primary()
	}
	p.next()
	operand, err := p.unary()
	if err != nil {
		return nil, err
	}
	return unaryExpr{op: op, operand: operand}, nil
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokLBracket:
		if p.peek().kind == tokRBracket {
			p.next()
			return arrayLit{}, nil
		}
		elem, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRBracket); err != nil {
			return nil, err
		}
		return arrayLit{elem: elem}, nil

	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil

	case tokFunc:
		if err := p.expect(tokLParen); err != nil {
			return nil, err
		}
		call := callExpr{param: t.param, body: t.body}
		if p.peek().kind != tokRParen {
			arg, err := p.expr()
			if err != nil {
				return nil, err
			}
			call.arg = arg
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return call, nil
	}
	return nil, fmt.Errorf("unexpected %s at offset %d", t.kind, t.pos)
}
