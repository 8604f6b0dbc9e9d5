// Package cql holds the typed filter expression tree that both supported
// filter languages (cql2-text and cql2-json) normalize into.
package cql

import (
	"fmt"
	"strings"
	"time"
)

const (
	LangText = "cql2-text"
	LangJSON = "cql2-json"
)

// Expr is a boolean filter expression.
type Expr interface {
	isExpr()
}

// Operand is a value position inside a predicate.
type Operand interface {
	isOperand()
}

// And / Or over two or more arguments.
type Logical struct {
	Op   string // "and" or "or"
	Args []Expr
}

type Not struct {
	Arg Expr
}

// Compare covers the binary comparison operators and like.
type Compare struct {
	Op    string // one of = <> < <= > >= like
	Left  Operand
	Right Operand
}

type In struct {
	Left Operand
	List []Operand
}

type IsNull struct {
	Arg Operand
}

type Between struct {
	Arg  Operand
	Low  Operand
	High Operand
}

type Property struct {
	Name string
}

// LiteralKind distinguishes timestamps from plain strings so that stores can
// normalize them before comparing.
type LiteralKind int

const (
	KindString LiteralKind = iota
	KindNumber
	KindBool
	KindTimestamp
	KindDate
)

type Literal struct {
	Kind  LiteralKind
	Value any // string, float64, bool or time.Time (UTC) for timestamps and dates
}

func temporal(kind LiteralKind, s string) (Literal, error) {
	layout := time.RFC3339Nano
	if kind == KindDate {
		layout = time.DateOnly
	}
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return Literal{}, fmt.Errorf("invalid %s literal %q", kindName(kind), s)
	}
	return Literal{Kind: kind, Value: t.UTC()}, nil
}

func kindName(k LiteralKind) string {
	if k == KindDate {
		return "date"
	}
	return "timestamp"
}

func (Logical) isExpr() {}
func (Not) isExpr()     {}
func (Compare) isExpr() {}
func (In) isExpr()      {}
func (IsNull) isExpr()  {}
func (Between) isExpr() {}

func (Property) isOperand() {}
func (Literal) isOperand()  {}

var compareOps = map[string]string{
	"=":    "=",
	"<>":   "<>",
	"!=":   "<>",
	"<":    "<",
	"<=":   "<=",
	">":    ">",
	">=":   ">=",
	"like": "like",
}

// NormalizeLang maps accepted spellings of a filter language onto LangText or
// LangJSON. An empty result means the language is not supported.
func NormalizeLang(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "cql2-text", "cql-text":
		return LangText
	case "cql2-json", "cql-json":
		return LangJSON
	default:
		return ""
	}
}

// Properties lists every property referenced by e, in first-seen order.
func Properties(e Expr) []string {
	var out []string
	seen := map[string]struct{}{}
	addOp := func(o Operand) {
		if p, ok := o.(Property); ok {
			if _, dup := seen[p.Name]; !dup {
				seen[p.Name] = struct{}{}
				out = append(out, p.Name)
			}
		}
	}
	var walk func(Expr)
	walk = func(e Expr) {
		switch v := e.(type) {
		case Logical:
			for _, a := range v.Args {
				walk(a)
			}
		case Not:
			walk(v.Arg)
		case Compare:
			addOp(v.Left)
			addOp(v.Right)
		case In:
			addOp(v.Left)
			for _, o := range v.List {
				addOp(o)
			}
		case IsNull:
			addOp(v.Arg)
		case Between:
			addOp(v.Arg)
			addOp(v.Low)
			addOp(v.High)
		}
	}
	walk(e)
	return out
}
