// Package model defines core domain types shared across the service.
package model

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/stac-federation/internal/cql"
)

// BBox holds 4 (2D) or 6 (3D) values in STAC order:
// minx,miny,maxx,maxy or minx,miny,minz,maxx,maxy,maxz.
type BBox []float64

// XY returns the horizontal extent regardless of dimensionality.
func (b BBox) XY() (minX, minY, maxX, maxY float64) {
	if len(b) == 6 {
		return b[0], b[1], b[3], b[4]
	}
	if len(b) == 4 {
		return b[0], b[1], b[2], b[3]
	}
	return 0, 0, 0, 0
}

// String representation matching the GET bbox parameter
func (b BBox) String() string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// Geometry is a validated GeoJSON geometry kept in its raw form.
type Geometry struct {
	Type    string
	GeoJSON json.RawMessage
}

func (g Geometry) MarshalJSON() ([]byte, error) {
	if len(g.GeoJSON) == 0 {
		return []byte("null"), nil
	}
	return g.GeoJSON, nil
}

// Interval is a closed or half-open temporal range; nil ends are open.
// Instants have Start == End.
type Interval struct {
	Start *time.Time
	End   *time.Time
}

// Filter is the filter expression exactly as the client sent it.
type Filter struct {
	Lang string
	Text string          // cql2-text payload
	JSON json.RawMessage // cql2-json payload
}

type Fields struct {
	Include []string
	Exclude []string
}

func (f *Fields) Empty() bool {
	return f == nil || (len(f.Include) == 0 && len(f.Exclude) == 0)
}

type SortKey struct {
	Field string
	Desc  bool
}

// SearchRequest is the backend-agnostic search as parsed from GET or POST.
// Limit 0 means "not given".
type SearchRequest struct {
	Collections []string
	IDs         []string
	BBox        BBox
	Intersects  *Geometry
	Datetime    string
	Filter      *Filter
	Fields      *Fields
	SortBy      []SortKey
	Limit       int
	Offset      int
}

// Clone returns a deep copy so that derived requests (next pages) never share
// slices with the original.
func (r SearchRequest) Clone() SearchRequest {
	out := r
	out.Collections = slices.Clone(r.Collections)
	out.IDs = slices.Clone(r.IDs)
	out.BBox = slices.Clone(r.BBox)
	out.SortBy = slices.Clone(r.SortBy)
	if r.Intersects != nil {
		g := *r.Intersects
		g.GeoJSON = slices.Clone(r.Intersects.GeoJSON)
		out.Intersects = &g
	}
	if r.Filter != nil {
		f := *r.Filter
		f.JSON = slices.Clone(r.Filter.JSON)
		out.Filter = &f
	}
	if r.Fields != nil {
		f := Fields{Include: slices.Clone(r.Fields.Include), Exclude: slices.Clone(r.Fields.Exclude)}
		out.Fields = &f
	}
	return out
}

// QuerySpec is what a store sees for one collection. Collection is singular
// or empty; fan-out across collections never reaches a store.
type QuerySpec struct {
	Collection string
	IDs        []string
	BBox       BBox
	Intersects *Geometry
	Envelope   BBox // horizontal envelope of Intersects
	Interval   *Interval
	Filter     cql.Expr
	SortBy     []SortKey
	Include    []string
	Exclude    []string
	Limit      int
	Offset     int
}

// ForCollection derives the per-collection query from a translated template.
func (q QuerySpec) ForCollection(id string, limit, offset int) QuerySpec {
	out := q
	out.Collection = id
	out.Limit = limit
	out.Offset = offset
	return out
}

// Collection is one registry entry. Doc is the collection document as loaded,
// opaque to the search core.
type Collection struct {
	ID        string
	Locations []string
	Doc       map[string]any
}

// Record is one item returned by a store. Fields holds the (projected) item
// document without its links; Links is attached at response time.
type Record struct {
	ID         string
	Collection string
	Fields     map[string]any
	Links      []Link
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.Collection != "" {
		out["collection"] = r.Collection
	}
	links := r.Links
	if links == nil {
		links = []Link{}
	}
	out["links"] = links
	return json.Marshal(out)
}
