package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/stac-federation/internal/core/apierr"
	"github.com/mohammed-shakir/stac-federation/internal/core/geo"
	"github.com/mohammed-shakir/stac-federation/internal/core/model"
	"github.com/mohammed-shakir/stac-federation/internal/core/query"
)

// maxBody bounds POST search documents.
const maxBody = 4 << 20

// ParseSearchGet reads a search from query parameters.
func ParseSearchGet(r *http.Request) (model.SearchRequest, error) {
	var req model.SearchRequest
	q, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return req, apierr.Invalid("query string: %v", err)
	}

	req.Collections = splitList(q.Get("collections"))
	req.IDs = splitList(q.Get("ids"))
	if v := strings.TrimSpace(q.Get("bbox")); v != "" {
		if req.BBox, err = query.ParseBBox(v); err != nil {
			return req, err
		}
	}
	if v := strings.TrimSpace(q.Get("intersects")); v != "" {
		g, err := geo.Parse([]byte(v))
		if err != nil {
			return req, apierr.Invalid("intersects: %v", err)
		}
		req.Intersects = &g
	}
	req.Datetime = strings.TrimSpace(q.Get("datetime"))
	if v := q.Get("filter"); strings.TrimSpace(v) != "" {
		req.Filter = &model.Filter{Lang: strings.TrimSpace(q.Get("filter-lang")), Text: v}
	}
	if v := q.Get("fields"); strings.TrimSpace(v) != "" {
		req.Fields = query.ParseFieldList(strings.Split(v, ","))
	}
	if v := strings.TrimSpace(q.Get("sortby")); v != "" {
		if req.SortBy, err = query.ParseSortBy(v); err != nil {
			return req, err
		}
	}
	if req.Limit, err = intParam("limit", q.Get("limit"), true); err != nil {
		return req, err
	}
	if req.Offset, err = intParam("offset", q.Get("offset"), false); err != nil {
		return req, err
	}
	return req, nil
}

// ParseSearchPost reads a search from a JSON document. The decoded document
// is returned as well so that self and next links can echo it.
func ParseSearchPost(r *http.Request) (model.SearchRequest, map[string]any, error) {
	var req model.SearchRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return req, nil, apierr.Invalid("read body: %v", err)
	}
	if len(body) > maxBody {
		return req, nil, apierr.Invalid("search body exceeds %d bytes", maxBody)
	}
	raw := bytes.TrimSpace(body)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return req, nil, apierr.Invalid("search body: %v", err)
	}
	var echo map[string]any
	if err := json.Unmarshal(raw, &echo); err != nil {
		return req, nil, apierr.Invalid("search body: %v", err)
	}

	if req.Collections, err = jsonList("collections", fields["collections"]); err != nil {
		return req, nil, err
	}
	if req.IDs, err = jsonList("ids", fields["ids"]); err != nil {
		return req, nil, err
	}
	if v, ok := present(fields, "bbox"); ok {
		var vals []float64
		if err := json.Unmarshal(v, &vals); err != nil {
			return req, nil, apierr.Invalid("bbox must be an array of numbers")
		}
		if req.BBox, err = query.CheckBBox(vals); err != nil {
			return req, nil, err
		}
	}
	if v, ok := present(fields, "intersects"); ok {
		g, err := geo.Parse(v)
		if err != nil {
			return req, nil, apierr.Invalid("intersects: %v", err)
		}
		req.Intersects = &g
	}
	if req.Datetime, err = jsonString("datetime", fields["datetime"]); err != nil {
		return req, nil, err
	}
	if req.Filter, err = jsonFilter(fields); err != nil {
		return req, nil, err
	}
	if v, ok := present(fields, "fields"); ok {
		if req.Fields, err = query.ParseFieldsJSON(v); err != nil {
			return req, nil, err
		}
	}
	if v, ok := present(fields, "sortby"); ok {
		if req.SortBy, err = query.ParseSortByJSON(v); err != nil {
			return req, nil, err
		}
	}
	if req.Limit, err = jsonInt("limit", fields["limit"], true); err != nil {
		return req, nil, err
	}
	if req.Offset, err = jsonInt("offset", fields["offset"], false); err != nil {
		return req, nil, err
	}
	return req, echo, nil
}

func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := fields[key]
	if !ok || string(v) == "null" {
		return nil, false
	}
	return v, true
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intParam(name, v string, positive bool) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apierr.Invalid("%s: %q is not an integer", name, v)
	}
	return checkInt(name, n, positive)
}

func checkInt(name string, n int, positive bool) (int, error) {
	switch {
	case positive && n <= 0:
		return 0, apierr.Invalid("%s must be positive, got %d", name, n)
	case n < 0:
		return 0, apierr.Invalid("%s must not be negative, got %d", name, n)
	}
	return n, nil
}

// jsonList accepts an array of strings or a comma-separated string.
func jsonList(name string, raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return splitList(strings.Join(list, ",")), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return splitList(s), nil
	}
	return nil, apierr.Invalid("%s must be a list of strings", name)
}

func jsonString(name string, raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", apierr.Invalid("%s must be a string", name)
	}
	return strings.TrimSpace(s), nil
}

func jsonInt(name string, raw json.RawMessage, positive bool) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return intParam(name, s, positive)
		}
		return 0, apierr.Invalid("%s must be an integer", name)
	}
	return checkInt(name, n, positive)
}

// jsonFilter takes a cql2-text string or a cql2-json object.
func jsonFilter(fields map[string]json.RawMessage) (*model.Filter, error) {
	lang, err := jsonString("filter-lang", fields["filter-lang"])
	if err != nil {
		return nil, err
	}
	raw, ok := present(fields, "filter")
	if !ok {
		return nil, nil
	}
	var text string
	if json.Unmarshal(raw, &text) == nil {
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return &model.Filter{Lang: lang, Text: text}, nil
	}
	if raw[0] != '{' {
		return nil, apierr.Invalid("filter must be a string or an object")
	}
	return &model.Filter{Lang: lang, JSON: raw}, nil
}
