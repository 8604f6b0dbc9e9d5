package cql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokQuotedIdent
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokKind
	text string
	pos  int
}

// ParseText parses the supported cql2-text subset: and/or/not, comparisons,
// like, in, between, is null, TIMESTAMP('...') and DATE('...') literals.
func ParseText(s string) (Expr, error) {
	toks, err := lex(s)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
	return e, nil
}

func lex(s string) ([]token, error) {
	var out []token
	rs := []rune(s)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			out = append(out, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			out = append(out, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == ',':
			out = append(out, token{kind: tokComma, text: ",", pos: i})
			i++
		case r == '\'':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(rs) {
				if rs[i] == '\'' {
					if i+1 < len(rs) && rs[i+1] == '\'' {
						b.WriteRune('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteRune(rs[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string at offset %d", start)
			}
			out = append(out, token{kind: tokString, text: b.String(), pos: start})
		case r == '"':
			start := i
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				j++
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated identifier at offset %d", start)
			}
			out = append(out, token{kind: tokQuotedIdent, text: string(rs[i+1 : j]), pos: start})
			i = j + 1
		case r == '=':
			out = append(out, token{kind: tokOp, text: "=", pos: i})
			i++
		case r == '<' || r == '>' || r == '!':
			start := i
			op := string(r)
			if i+1 < len(rs) && (rs[i+1] == '=' || (r == '<' && rs[i+1] == '>')) {
				op += string(rs[i+1])
			}
			if op == "!" {
				return nil, fmt.Errorf("unexpected '!' at offset %d", start)
			}
			out = append(out, token{kind: tokOp, text: op, pos: start})
			i += len([]rune(op))
		case unicode.IsDigit(r) || ((r == '-' || r == '+') && i+1 < len(rs) && (unicode.IsDigit(rs[i+1]) || rs[i+1] == '.')) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			i++
			for i < len(rs) {
				c := rs[i]
				if unicode.IsDigit(c) || c == '.' {
					i++
					continue
				}
				if (c == 'e' || c == 'E') && i+1 < len(rs) {
					i++
					if rs[i] == '-' || rs[i] == '+' {
						i++
					}
					continue
				}
				break
			}
			out = append(out, token{kind: tokNumber, text: string(rs[start:i]), pos: start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_' || rs[i] == '.' || rs[i] == ':') {
				i++
			}
			out = append(out, token{kind: tokIdent, text: string(rs[start:i]), pos: start})
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
		}
	}
	out = append(out, token{kind: tokEOF, pos: len(rs)})
	return out, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.i++
		return true
	}
	return false
}

func (p *parser) expect(kind tokKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		if t.kind == tokEOF {
			return t, fmt.Errorf("expected %s, got end of input", what)
		}
		return t, fmt.Errorf("expected %s at offset %d, got %q", what, t.pos, t.text)
	}
	return t, nil
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	args := []Expr{first}
	for p.keyword("or") {
		e, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	if len(args) == 1 {
		return first, nil
	}
	return Logical{Op: "or", Args: args}, nil
}

func (p *parser) parseAnd() (Expr, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	args := []Expr{first}
	for p.keyword("and") {
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	if len(args) == 1 {
		return first, nil
	}
	return Logical{Op: "and", Args: args}, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.keyword("not") {
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Arg: e}, nil
	}
	return p.parsePredicate()
}

func (p *parser) parsePredicate() (Expr, error) {
	if p.peek().kind == tokLParen {
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind == tokOp {
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return Compare{Op: compareOps[t.text], Left: left, Right: right}, nil
	}

	if p.keyword("is") {
		negate := p.keyword("not")
		if !p.keyword("null") {
			return nil, errors.New("expected NULL after IS")
		}
		var e Expr = IsNull{Arg: left}
		if negate {
			e = Not{Arg: e}
		}
		return e, nil
	}

	negate := p.keyword("not")
	var e Expr
	switch {
	case p.keyword("like"):
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		e = Compare{Op: "like", Left: left, Right: right}
	case p.keyword("in"):
		if _, err := p.expect(tokLParen, "'(' after IN"); err != nil {
			return nil, err
		}
		in := In{Left: left}
		for {
			o, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			in.List = append(in.List, o)
			if p.peek().kind == tokComma {
				p.next()
				continue
			}
			break
		}
		if _, err := p.expect(tokRParen, "')' closing IN list"); err != nil {
			return nil, err
		}
		e = in
	case p.keyword("between"):
		low, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if !p.keyword("and") {
			return nil, errors.New("expected AND in BETWEEN")
		}
		high, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		e = Between{Arg: left, Low: low, High: high}
	default:
		t := p.peek()
		if t.kind == tokEOF {
			return nil, errors.New("expected an operator, got end of input")
		}
		return nil, fmt.Errorf("expected an operator at offset %d, got %q", t.pos, t.text)
	}
	if negate {
		e = Not{Arg: e}
	}
	return e, nil
}

func (p *parser) parseOperand() (Operand, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return Literal{Kind: KindString, Value: t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", t.text, err)
		}
		return Literal{Kind: KindNumber, Value: f}, nil
	case tokQuotedIdent:
		return Property{Name: t.text}, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return Literal{Kind: KindBool, Value: true}, nil
		case "false":
			return Literal{Kind: KindBool, Value: false}, nil
		case "timestamp", "date":
			if p.peek().kind != tokLParen {
				return Property{Name: t.text}, nil
			}
			p.next()
			s, err := p.expect(tokString, "quoted "+strings.ToUpper(t.text)+" value")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, "')'"); err != nil {
				return nil, err
			}
			kind := KindTimestamp
			if strings.EqualFold(t.text, "date") {
				kind = KindDate
			}
			return temporal(kind, s.text)
		case "and", "or", "not", "like", "in", "is", "null", "between":
			return nil, fmt.Errorf("unexpected keyword %q at offset %d", t.text, t.pos)
		}
		return Property{Name: t.text}, nil
	case tokEOF:
		return nil, errors.New("expected a value, got end of input")
	default:
		return nil, fmt.Errorf("expected a value at offset %d, got %q", t.pos, t.text)
	}
}
