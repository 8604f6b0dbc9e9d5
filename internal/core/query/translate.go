// Package query turns a parsed search request into the per collection query
// handed to a store.
package query

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mohammed-shakir/stac-federation/internal/core/apierr"
	"github.com/mohammed-shakir/stac-federation/internal/core/geo"
	"github.com/mohammed-shakir/stac-federation/internal/core/model"
	"github.com/mohammed-shakir/stac-federation/internal/cql"
)

const (
	DefaultLimit = 10
	MaxLimit     = 10_000
)

type Limits struct {
	Default int
	Max     int
}

func DefaultLimits() Limits { return Limits{Default: DefaultLimit, Max: MaxLimit} }

// EffectiveLimit applies the default and silently clamps to the ceiling.
func (l Limits) EffectiveLimit(requested int) (int, error) {
	def, ceiling := l.Default, l.Max
	if ceiling <= 0 {
		ceiling = MaxLimit
	}
	if def <= 0 {
		def = DefaultLimit
	}
	def = min(def, ceiling)
	switch {
	case requested < 0:
		return 0, apierr.Invalid("limit must be positive, got %d", requested)
	case requested == 0:
		return def, nil
	case requested > ceiling:
		return ceiling, nil
	default:
		return requested, nil
	}
}

// Translate validates req and builds the query template shared by every
// collection. Collection, Limit and Offset are filled in per store call.
func Translate(req model.SearchRequest, lim Limits) (model.QuerySpec, error) {
	var q model.QuerySpec

	if len(req.BBox) > 0 && req.Intersects != nil {
		return q, apierr.Invalid("bbox and intersects are mutually exclusive")
	}
	if len(req.BBox) > 0 {
		b, err := CheckBBox(req.BBox)
		if err != nil {
			return q, err
		}
		q.BBox = slices.Clone(b)
	}
	if req.Intersects != nil {
		env, err := geo.Envelope(req.Intersects.GeoJSON)
		if err != nil {
			return q, apierr.Invalid("intersects: %v", err)
		}
		g := *req.Intersects
		q.Intersects = &g
		q.Envelope = env
	}

	iv, err := ParseDatetime(req.Datetime)
	if err != nil {
		return q, err
	}
	q.Interval = iv

	expr, err := translateFilter(req.Filter)
	if err != nil {
		return q, err
	}
	for _, name := range cql.Properties(expr) {
		if err := CheckField(name); err != nil {
			return q, apierr.Invalid("filter property: %v", err)
		}
	}
	q.Filter = expr

	if !req.Fields.Empty() {
		q.Include = cleanFields(req.Fields.Include)
		q.Exclude = cleanFields(req.Fields.Exclude)
	}
	for _, k := range req.SortBy {
		if strings.TrimSpace(k.Field) == "" {
			return q, apierr.Invalid("sortby has an empty field")
		}
		if err := CheckField(k.Field); err != nil {
			return q, apierr.Invalid("sortby: %v", err)
		}
	}
	q.SortBy = slices.Clone(req.SortBy)
	q.IDs = nonEmpty(req.IDs)

	if req.Offset < 0 {
		return q, apierr.Invalid("offset must not be negative, got %d", req.Offset)
	}
	limit, err := lim.EffectiveLimit(req.Limit)
	if err != nil {
		return q, err
	}
	q.Limit = limit
	q.Offset = req.Offset
	return q, nil
}

// CheckField rejects item field names no store can address: quotes,
// backslashes and empty dotted segments.
func CheckField(name string) error {
	if name == "" {
		return errors.New("empty field name")
	}
	if strings.ContainsAny(name, "\"\\") {
		return fmt.Errorf("field %q contains a quote or backslash", name)
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return fmt.Errorf("field %q has an empty segment", name)
		}
	}
	return nil
}

// translateFilter pairs the payload with its language. A language without a
// filter is dropped.
func translateFilter(f *model.Filter) (cql.Expr, error) {
	if f == nil || (strings.TrimSpace(f.Text) == "" && len(f.JSON) == 0) {
		return nil, nil
	}
	lang := ""
	if strings.TrimSpace(f.Lang) != "" {
		lang = cql.NormalizeLang(f.Lang)
		if lang == "" {
			return nil, apierr.Invalid("unsupported filter-lang %q", f.Lang)
		}
	}
	if lang == "" {
		lang = cql.LangText
		if len(f.JSON) > 0 {
			lang = cql.LangJSON
		}
	}

	var (
		expr cql.Expr
		err  error
	)
	switch lang {
	case cql.LangText:
		if strings.TrimSpace(f.Text) == "" {
			return nil, apierr.Invalid("filter-lang %s needs a text filter", lang)
		}
		expr, err = cql.ParseText(f.Text)
	default:
		payload := []byte(f.JSON)
		if len(payload) == 0 {
			payload = []byte(f.Text)
		}
		expr, err = cql.ParseJSON(payload)
	}
	if err != nil {
		return nil, apierr.Invalid("filter: %v", err)
	}
	return expr, nil
}

func cleanFields(in []string) []string {
	var out []string
	for _, f := range in {
		f = strings.TrimSpace(strings.TrimLeft(f, "+-"))
		if f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
