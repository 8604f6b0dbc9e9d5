// Package links renders the navigation links of API responses: root and
// self links, next links that encode a search cursor, and the relation links
// of records and collections.
package links

import (
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/stac-federation/internal/core/model"
	"github.com/mohammed-shakir/stac-federation/internal/search"
)

const (
	TypeJSON    = "application/json"
	TypeGeoJSON = "application/geo+json"
)

// navigational relations owned by this package; everything else on a record
// or collection is kept as stored
var (
	recordRels     = []string{"root", "parent", "collection", "self"}
	collectionRels = []string{"root", "parent", "self", "items"}
)

// Builder resolves hrefs against a fixed base URL, or against the request's
// scheme and host when no base is configured.
type Builder struct {
	base string
}

func New(baseURL string) *Builder {
	return &Builder{base: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// For binds the builder to one request.
func (b *Builder) For(r *http.Request) Set {
	if b.base != "" {
		return Set{base: b.base}
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := firstValue(r.Header.Get("X-Forwarded-Proto")); p != "" {
		scheme = p
	}
	host := r.Host
	if h := firstValue(r.Header.Get("X-Forwarded-Host")); h != "" {
		host = h
	}
	return Set{base: scheme + "://" + host}
}

func firstValue(h string) string {
	v, _, _ := strings.Cut(h, ",")
	return strings.TrimSpace(v)
}

// Set renders links for a single request.
type Set struct {
	base string
}

func (s Set) Base() string { return s.base }

func (s Set) Href(path string) string { return s.base + path }

func (s Set) Root() model.Link {
	return model.Link{Href: s.Href("/"), Rel: "root", Type: TypeJSON}
}

func (s Set) collectionHref(id string) string {
	return s.Href("/collections/" + url.PathEscape(id))
}

func (s Set) itemHref(collection, id string) string {
	return s.collectionHref(collection) + "/items/" + url.PathEscape(id)
}

func (s Set) Landing() []model.Link {
	return []model.Link{
		s.Root(),
		{Href: s.Href("/"), Rel: "self", Type: TypeJSON},
		{Href: s.Href("/conformance"), Rel: "conformance", Type: TypeJSON},
		{Href: s.Href("/collections"), Rel: "data", Type: TypeJSON},
		{Href: s.Href("/search"), Rel: "search", Type: TypeGeoJSON, Method: http.MethodGet},
		{Href: s.Href("/search"), Rel: "search", Type: TypeGeoJSON, Method: http.MethodPost},
	}
}

func (s Set) Conformance() []model.Link {
	return []model.Link{s.Root(), {Href: s.Href("/conformance"), Rel: "self", Type: TypeJSON}}
}

func (s Set) Collections() []model.Link {
	return []model.Link{s.Root(), {Href: s.Href("/collections"), Rel: "self", Type: TypeJSON}}
}

// Collection returns a copy of the collection document with its navigation
// links replaced. The registry's document is not modified.
func (s Set) Collection(c model.Collection) map[string]any {
	doc := maps.Clone(c.Doc)
	if doc == nil {
		doc = map[string]any{}
	}
	doc["id"] = c.ID
	out := []any{
		s.Root(),
		model.Link{Href: s.Href("/"), Rel: "parent", Type: TypeJSON},
		model.Link{Href: s.collectionHref(c.ID), Rel: "self", Type: TypeJSON},
		model.Link{Href: s.collectionHref(c.ID) + "/items", Rel: "items", Type: TypeGeoJSON},
	}
	if existing, ok := c.Doc["links"].([]any); ok {
		for _, l := range existing {
			m, ok := l.(map[string]any)
			if !ok {
				continue
			}
			if rel, _ := m["rel"].(string); slices.Contains(collectionRels, rel) {
				continue
			}
			out = append(out, l)
		}
	}
	doc["links"] = out
	return doc
}

// Record attaches the record's navigation links. Self is only set when both
// the record id and its collection are known.
func (s Set) Record(rec model.Record) model.Record {
	out := []model.Link{s.Root()}
	if rec.Collection != "" {
		href := s.collectionHref(rec.Collection)
		out = append(out,
			model.Link{Href: href, Rel: "collection", Type: TypeJSON},
			model.Link{Href: href, Rel: "parent", Type: TypeJSON},
		)
		if rec.ID != "" {
			out = append(out, model.Link{Href: s.itemHref(rec.Collection, rec.ID), Rel: "self", Type: TypeGeoJSON})
		}
	}
	for _, l := range rec.Links {
		if !slices.Contains(recordRels, l.Rel) {
			out = append(out, l)
		}
	}
	rec.Links = out
	return rec
}

// Origin is the search request as the client sent it. Body is the decoded
// POST document and is nil for GET requests.
type Origin struct {
	Method   string
	Path     string
	RawQuery string
	Body     map[string]any
}

func OriginOf(r *http.Request, body map[string]any) Origin {
	return Origin{Method: r.Method, Path: r.URL.Path, RawQuery: r.URL.RawQuery, Body: body}
}

// Search renders root, self and, when next is set, the next link of a search
// response. The next link keeps every original parameter and overrides
// collections, limit and offset from the cursor.
func (s Set) Search(o Origin, next *search.Cursor) []model.Link {
	out := []model.Link{s.Root()}
	if o.Method == http.MethodPost {
		out = append(out, model.Link{Href: s.Href(o.Path), Rel: "self", Type: TypeGeoJSON, Method: http.MethodPost, Body: o.Body})
		if next != nil {
			out = append(out, model.Link{Href: s.Href(o.Path), Rel: "next", Type: TypeGeoJSON, Method: http.MethodPost, Body: NextBody(o.Body, *next)})
		}
		return out
	}

	self := s.Href(o.Path)
	if o.RawQuery != "" {
		self += "?" + o.RawQuery
	}
	out = append(out, model.Link{Href: self, Rel: "self", Type: TypeGeoJSON, Method: http.MethodGet})
	if next != nil {
		// unparseable queries were rejected before a cursor could exist
		q, _ := url.ParseQuery(o.RawQuery)
		out = append(out, model.Link{
			Href:   s.Href(o.Path) + "?" + NextQuery(q, *next).Encode(),
			Rel:    "next",
			Type:   TypeGeoJSON,
			Method: http.MethodGet,
		})
	}
	return out
}

// NextQuery returns a copy of q that requests the page at cur.
func NextQuery(q url.Values, cur search.Cursor) url.Values {
	out := make(url.Values, len(q)+3)
	for k, v := range q {
		out[k] = slices.Clone(v)
	}
	out.Set("collections", strings.Join(cur.Remaining, ","))
	out.Set("limit", strconv.Itoa(cur.Limit))
	out.Set("offset", strconv.Itoa(cur.Offset))
	return out
}

// NextBody returns a copy of body that requests the page at cur.
func NextBody(body map[string]any, cur search.Cursor) map[string]any {
	out := maps.Clone(body)
	if out == nil {
		out = map[string]any{}
	}
	out["collections"] = slices.Clone(cur.Remaining)
	out["limit"] = cur.Limit
	out["offset"] = cur.Offset
	return out
}
