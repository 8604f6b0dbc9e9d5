package cql

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/planetlabs/go-ogc/filter"
)

// ParseJSON decodes a cql2-json document with go-ogc and maps the supported
// subset of its expression tree onto Expr.
func ParseJSON(raw []byte) (Expr, error) {
	var f filter.Filter
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode cql2-json: %w", err)
	}
	if f.Expression == nil {
		return nil, errors.New("cql2-json document has no expression")
	}
	return fromFilter(f.Expression)
}

func fromFilter(e filter.Expression) (Expr, error) {
	switch v := e.(type) {
	case *filter.And:
		return logicalFrom("and", v.Args)
	case *filter.Or:
		return logicalFrom("or", v.Args)
	case *filter.Not:
		arg, err := fromFilter(v.Arg)
		if err != nil {
			return nil, err
		}
		return Not{Arg: arg}, nil
	case *filter.Comparison:
		op, ok := compareOps[strings.ToLower(v.Name)]
		if !ok || op == "like" {
			return nil, fmt.Errorf("unsupported comparison %q", v.Name)
		}
		left, err := operandFrom(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := operandFrom(v.Right)
		if err != nil {
			return nil, err
		}
		return Compare{Op: op, Left: left, Right: right}, nil
	case *filter.Like:
		left, err := operandFrom(v.Value)
		if err != nil {
			return nil, err
		}
		right, err := operandFrom(v.Pattern)
		if err != nil {
			return nil, err
		}
		return Compare{Op: "like", Left: left, Right: right}, nil
	case *filter.In:
		left, err := operandFrom(v.Item)
		if err != nil {
			return nil, err
		}
		if len(v.List) == 0 {
			return nil, errors.New("in needs a non-empty list")
		}
		out := In{Left: left, List: make([]Operand, 0, len(v.List))}
		for _, item := range v.List {
			o, err := operandFrom(item)
			if err != nil {
				return nil, err
			}
			out.List = append(out.List, o)
		}
		return out, nil
	case *filter.IsNull:
		o, err := operandFrom(v.Value)
		if err != nil {
			return nil, err
		}
		return IsNull{Arg: o}, nil
	case *filter.Between:
		ops := make([]Operand, 0, 3)
		for _, x := range []filter.Expression{v.Value, v.Low, v.High} {
			o, err := operandFrom(x)
			if err != nil {
				return nil, err
			}
			ops = append(ops, o)
		}
		return Between{Arg: ops[0], Low: ops[1], High: ops[2]}, nil
	case nil:
		return nil, errors.New("missing expression")
	default:
		return nil, fmt.Errorf("unsupported operator %T", e)
	}
}

func logicalFrom(op string, args []filter.BooleanExpression) (Expr, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%s needs at least two args", op)
	}
	out := Logical{Op: op, Args: make([]Expr, 0, len(args))}
	for _, a := range args {
		e, err := fromFilter(a)
		if err != nil {
			return nil, err
		}
		out.Args = append(out.Args, e)
	}
	return out, nil
}

func operandFrom(e filter.Expression) (Operand, error) {
	switch v := e.(type) {
	case *filter.Property:
		if strings.TrimSpace(v.Name) == "" {
			return nil, errors.New("empty property name")
		}
		return Property{Name: v.Name}, nil
	case *filter.String:
		return Literal{Kind: KindString, Value: v.Value}, nil
	case *filter.Number:
		return Literal{Kind: KindNumber, Value: v.Value}, nil
	case *filter.Boolean:
		return Literal{Kind: KindBool, Value: v.Value}, nil
	case *filter.Timestamp:
		return Literal{Kind: KindTimestamp, Value: v.Value.UTC()}, nil
	case *filter.Date:
		return Literal{Kind: KindDate, Value: v.Value.UTC()}, nil
	case nil:
		return nil, errors.New("missing operand")
	default:
		return nil, fmt.Errorf("unsupported operand %T", e)
	}
}
