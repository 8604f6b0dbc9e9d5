package query

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/stac-federation/internal/core/apierr"
	"github.com/mohammed-shakir/stac-federation/internal/core/model"
)

// ParseBBox parses the GET form "minx,miny,maxx,maxy" (or the 6 value 3D form).
func ParseBBox(s string) (model.BBox, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, apierr.Invalid("bbox is empty")
	}
	parts := strings.Split(s, ",")
	vals := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, apierr.Invalid("bbox component %q is not a number", p)
		}
		vals = append(vals, f)
	}
	return CheckBBox(vals)
}

// CheckBBox validates an already decoded bbox.
func CheckBBox(vals []float64) (model.BBox, error) {
	if len(vals) != 4 && len(vals) != 6 {
		return nil, apierr.Invalid("bbox must have 4 or 6 values, got %d", len(vals))
	}
	b := model.BBox(vals)
	_, miny, _, maxy := b.XY()
	if miny > maxy {
		return nil, apierr.Invalid("bbox miny %v is greater than maxy %v", miny, maxy)
	}
	if len(b) == 6 && b[2] > b[5] {
		return nil, apierr.Invalid("bbox minz %v is greater than maxz %v", b[2], b[5])
	}
	return b, nil
}

// ParseDatetime accepts an RFC 3339 instant, a closed interval "a/b", or a
// half-open interval with ".." (or nothing) on one side.
func ParseDatetime(s string) (*model.Interval, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.Contains(s, "/") {
		t, err := parseInstant(s)
		if err != nil {
			return nil, err
		}
		return &model.Interval{Start: &t, End: &t}, nil
	}
	left, right, _ := strings.Cut(s, "/")
	if strings.Contains(right, "/") {
		return nil, apierr.Invalid("datetime %q has more than one interval separator", s)
	}
	var iv model.Interval
	if !openEnd(left) {
		t, err := parseInstant(left)
		if err != nil {
			return nil, err
		}
		iv.Start = &t
	}
	if !openEnd(right) {
		t, err := parseInstant(right)
		if err != nil {
			return nil, err
		}
		iv.End = &t
	}
	if iv.Start == nil && iv.End == nil {
		return nil, apierr.Invalid("datetime interval %q is open on both ends", s)
	}
	if iv.Start != nil && iv.End != nil && iv.Start.After(*iv.End) {
		return nil, apierr.Invalid("datetime interval %q ends before it starts", s)
	}
	return &iv, nil
}

func openEnd(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == ".."
}

func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apierr.Invalid("datetime %q is not RFC 3339", s)
}

// ParseFieldList splits a field list into include and exclude sets; a leading
// "-" marks an exclusion and a leading "+" is ignored.
func ParseFieldList(items []string) *model.Fields {
	f := &model.Fields{}
	for _, it := range items {
		it = strings.TrimSpace(it)
		switch {
		case it == "", it == "-", it == "+":
		case strings.HasPrefix(it, "-"):
			f.Exclude = append(f.Exclude, strings.TrimSpace(it[1:]))
		case strings.HasPrefix(it, "+"):
			f.Include = append(f.Include, strings.TrimSpace(it[1:]))
		default:
			f.Include = append(f.Include, it)
		}
	}
	return f
}

// ParseFieldsJSON accepts the structured {"include":[..],"exclude":[..]} form,
// a list of field names, or a comma separated string.
func ParseFieldsJSON(raw json.RawMessage) (*model.Fields, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apierr.Invalid("fields: %v", err)
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return ParseFieldList(strings.Split(t, ",")), nil
	case []any:
		items, err := stringList("fields", t)
		if err != nil {
			return nil, err
		}
		return ParseFieldList(items), nil
	case map[string]any:
		f := &model.Fields{}
		for k, val := range t {
			arr, ok := val.([]any)
			if !ok && val != nil {
				return nil, apierr.Invalid("fields.%s must be a list of strings", k)
			}
			items, err := stringList("fields."+k, arr)
			if err != nil {
				return nil, err
			}
			switch k {
			case "include":
				f.Include = trimAll(items)
			case "exclude":
				f.Exclude = trimAll(items)
			default:
				return nil, apierr.Invalid("fields has unsupported key %q", k)
			}
		}
		return f, nil
	default:
		return nil, apierr.Invalid("fields must be an object, a list or a string")
	}
}

func stringList(what string, in []any) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, v := range in {
		s, ok := v.(string)
		if !ok {
			return nil, apierr.Invalid("%s must only contain strings", what)
		}
		out = append(out, s)
	}
	return out, nil
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseSortBy parses the GET form "-datetime,+id,properties.eo:cloud_cover".
func ParseSortBy(s string) ([]model.SortKey, error) {
	var keys []model.SortKey
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k := model.SortKey{Field: part}
		switch part[0] {
		case '-':
			k = model.SortKey{Field: part[1:], Desc: true}
		case '+':
			k.Field = part[1:]
		}
		if k.Field = strings.TrimSpace(k.Field); k.Field == "" {
			return nil, apierr.Invalid("sortby has an empty field")
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// ParseSortByJSON accepts [{"field":"datetime","direction":"desc"}] or a
// list of strings in the GET form.
func ParseSortByJSON(raw json.RawMessage) ([]model.SortKey, error) {
	var objs []struct {
		Field     string `json:"field"`
		Direction string `json:"direction"`
	}
	if err := json.Unmarshal(raw, &objs); err == nil {
		keys := make([]model.SortKey, 0, len(objs))
		for _, o := range objs {
			f := strings.TrimSpace(o.Field)
			if f == "" {
				return nil, apierr.Invalid("sortby entry without field")
			}
			switch strings.ToLower(strings.TrimSpace(o.Direction)) {
			case "", "asc":
				keys = append(keys, model.SortKey{Field: f})
			case "desc":
				keys = append(keys, model.SortKey{Field: f, Desc: true})
			default:
				return nil, apierr.Invalid("sortby direction %q is not asc or desc", o.Direction)
			}
		}
		return keys, nil
	}
	var strs []string
	if err := json.Unmarshal(raw, &strs); err == nil {
		return ParseSortBy(strings.Join(strs, ","))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseSortBy(s)
	}
	return nil, apierr.Invalid("sortby must be a list of {field, direction} objects")
}
