package sqlitestore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/stac-federation/internal/core/model"
	"github.com/mohammed-shakir/stac-federation/internal/cql"
)

// TimeLayout is how datetime columns are stored; it sorts lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

var columns = map[string]string{
	"id":                        "id",
	"collection":                "collection",
	"datetime":                  "datetime",
	"properties.datetime":       "datetime",
	"start_datetime":            "start_datetime",
	"properties.start_datetime": "start_datetime",
	"end_datetime":              "end_datetime",
	"properties.end_datetime":   "end_datetime",
}

type clause struct {
	where []string
	args  []any
}

func (c *clause) add(sql string, args ...any) {
	c.where = append(c.where, sql)
	c.args = append(c.args, args...)
}

func (c *clause) String() string {
	if len(c.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.where, " AND ")
}

func buildWhere(q model.QuerySpec) (*clause, error) {
	c := &clause{}
	if q.Collection != "" {
		c.add("collection = ?", q.Collection)
	}
	if len(q.IDs) > 0 {
		c.add("id IN ("+placeholders(len(q.IDs))+")", anys(q.IDs)...)
	}
	if len(q.BBox) > 0 {
		addOverlap(c, q.BBox)
	}
	if len(q.Envelope) > 0 {
		addOverlap(c, q.Envelope)
	}
	if q.Interval != nil {
		if q.Interval.End != nil {
			c.add("COALESCE(start_datetime, datetime) <= ?", q.Interval.End.UTC().Format(TimeLayout))
		}
		if q.Interval.Start != nil {
			c.add("COALESCE(end_datetime, datetime) >= ?", q.Interval.Start.UTC().Format(TimeLayout))
		}
	}
	if q.Filter != nil {
		sql, args, err := compileExpr(q.Filter)
		if err != nil {
			return nil, err
		}
		c.add(sql, args...)
	}
	return c, nil
}

// addOverlap matches items whose bbox intersects b. A bbox with minx > maxx
// crosses the antimeridian.
func addOverlap(c *clause, b model.BBox) {
	minX, minY, maxX, maxY := b.XY()
	c.add("miny <= ? AND maxy >= ?", maxY, minY)
	if minX > maxX {
		c.add("(maxx >= ? OR minx <= ?)", minX, maxX)
		return
	}
	c.add("minx <= ? AND maxx >= ?", maxX, minX)
}

func orderBy(keys []model.SortKey) (string, []any, error) {
	parts := make([]string, 0, len(keys)+2)
	var args []any
	for _, k := range keys {
		expr, a, err := fieldExpr(k.Field)
		if err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, expr+" "+dir)
		args = append(args, a...)
	}
	parts = append(parts, "id ASC", "rowid ASC")
	return " ORDER BY " + strings.Join(parts, ", "), args, nil
}

// fieldExpr maps a STAC field name to a column or a json_extract over the
// item document. Bare names refer to properties.
func fieldExpr(name string) (string, []any, error) {
	name = strings.TrimSpace(name)
	if col, ok := columns[name]; ok {
		return col, nil, nil
	}
	path, err := jsonPath(name)
	if err != nil {
		return "", nil, err
	}
	return "json_extract(item, ?)", []any{path}, nil
}

func jsonPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "\"\\") {
		return "", fmt.Errorf("unsupported field name %q", name)
	}
	segs := strings.Split(name, ".")
	switch segs[0] {
	case "properties", "assets", "geometry", "bbox", "type", "stac_version", "stac_extensions":
	default:
		segs = append([]string{"properties"}, segs...)
	}
	var b strings.Builder
	b.WriteString("$")
	for _, s := range segs {
		if s == "" {
			return "", fmt.Errorf("unsupported field name %q", name)
		}
		b.WriteString(`."`)
		b.WriteString(s)
		b.WriteString(`"`)
	}
	return b.String(), nil
}

func compileExpr(e cql.Expr) (string, []any, error) {
	switch v := e.(type) {
	case cql.Logical:
		sep := " AND "
		if v.Op == "or" {
			sep = " OR "
		}
		parts := make([]string, 0, len(v.Args))
		var args []any
		for _, a := range v.Args {
			s, aa, err := compileExpr(a)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, s)
			args = append(args, aa...)
		}
		return "(" + strings.Join(parts, sep) + ")", args, nil
	case cql.Not:
		s, args, err := compileExpr(v.Arg)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + s + ")", args, nil
	case cql.Compare:
		col := columnOf(v.Left, v.Right)
		l, la, err := operandSQL(v.Left, col)
		if err != nil {
			return "", nil, err
		}
		r, ra, err := operandSQL(v.Right, col)
		if err != nil {
			return "", nil, err
		}
		op := v.Op
		if op == "like" {
			op = "LIKE"
		}
		return l + " " + op + " " + r, append(la, ra...), nil
	case cql.In:
		col := columnOf(v.Left)
		l, args, err := operandSQL(v.Left, col)
		if err != nil {
			return "", nil, err
		}
		items := make([]string, 0, len(v.List))
		for _, o := range v.List {
			s, a, err := operandSQL(o, col)
			if err != nil {
				return "", nil, err
			}
			items = append(items, s)
			args = append(args, a...)
		}
		return l + " IN (" + strings.Join(items, ", ") + ")", args, nil
	case cql.IsNull:
		s, args, err := operandSQL(v.Arg, false)
		if err != nil {
			return "", nil, err
		}
		return s + " IS NULL", args, nil
	case cql.Between:
		col := columnOf(v.Arg)
		s, args, err := operandSQL(v.Arg, col)
		if err != nil {
			return "", nil, err
		}
		lo, la, err := operandSQL(v.Low, col)
		if err != nil {
			return "", nil, err
		}
		hi, ha, err := operandSQL(v.High, col)
		if err != nil {
			return "", nil, err
		}
		args = append(args, la...)
		args = append(args, ha...)
		return s + " BETWEEN " + lo + " AND " + hi, args, nil
	default:
		return "", nil, errors.New("unsupported filter expression")
	}
}

// columnOf reports whether a comparison involves a datetime column, which
// changes how timestamp literals are formatted.
func columnOf(ops ...cql.Operand) bool {
	for _, o := range ops {
		if p, ok := o.(cql.Property); ok {
			if col, ok := columns[p.Name]; ok && strings.HasSuffix(col, "datetime") {
				return true
			}
		}
	}
	return false
}

func operandSQL(o cql.Operand, timeColumn bool) (string, []any, error) {
	switch v := o.(type) {
	case cql.Property:
		return fieldExpr(v.Name)
	case cql.Literal:
		switch val := v.Value.(type) {
		case bool:
			if val {
				return "?", []any{1}, nil
			}
			return "?", []any{0}, nil
		case time.Time:
			switch {
			case timeColumn:
				return "?", []any{val.UTC().Format(TimeLayout)}, nil
			case v.Kind == cql.KindDate:
				return "?", []any{val.Format(time.DateOnly)}, nil
			default:
				return "?", []any{val.UTC().Format(time.RFC3339)}, nil
			}
		default:
			return "?", []any{val}, nil
		}
	default:
		return "", nil, errors.New("unsupported operand")
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anys(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
