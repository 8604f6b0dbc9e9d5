package sqlitestore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohammed-shakir/stac-federation/internal/core/model"
	"github.com/mohammed-shakir/stac-federation/internal/cql"
)

func item(id string, x, y float64, dt string, props map[string]any) map[string]any {
	p := map[string]any{"datetime": dt}
	for k, v := range props {
		p[k] = v
	}
	return map[string]any{
		"type":       "Feature",
		"id":         id,
		"geometry":   map[string]any{"type": "Point", "coordinates": []any{x, y}},
		"properties": p,
		"assets":     map[string]any{"data": map[string]any{"href": "s3://bucket/" + id + ".tif"}},
		"links":      []any{map[string]any{"rel": "license", "href": "https://example.com/license"}},
	}
}

func newStore(t *testing.T) (*Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.sqlite")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	items := []map[string]any{
		item("a", 11.5, 55.5, "2021-01-01T00:00:00Z", map[string]any{"eo:cloud_cover": 5.0, "platform": "sentinel-2a"}),
		item("b", 12.5, 56.5, "2021-06-01T00:00:00Z", map[string]any{"eo:cloud_cover": 40.0, "platform": "sentinel-2b"}),
		item("c", -100, 40, "2022-01-01T00:00:00Z", map[string]any{"eo:cloud_cover": 15.0, "platform": "landsat-8"}),
	}
	if _, err := w.PutItems(context.Background(), "s2", items); err != nil {
		t.Fatalf("PutItems: %v", err)
	}
	other := []map[string]any{item("z", 0, 0, "2020-01-01T00:00:00Z", nil)}
	if _, err := w.PutItems(context.Background(), "other", other); err != nil {
		t.Fatalf("PutItems other: %v", err)
	}
	if err := w.PutCollection(context.Background(), map[string]any{"id": "s2", "type": "Collection"}); err != nil {
		t.Fatalf("PutCollection: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close writer: %v", err)
	}

	e, err := New(4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e, path
}

func ids(recs []model.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestQuery_CollectionAndPaging(t *testing.T) {
	e, path := newStore(t)
	ctx := context.Background()

	recs, err := e.Query(ctx, path, model.QuerySpec{Collection: "s2", Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := ids(recs); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected page 1: %v", got)
	}
	recs, err = e.Query(ctx, "file://"+path, model.QuerySpec{Collection: "s2", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := ids(recs); len(got) != 1 || got[0] != "c" {
		t.Fatalf("unexpected page 2: %v", got)
	}
	if recs[0].Collection != "s2" {
		t.Fatalf("collection not set: %+v", recs[0])
	}
	if _, ok := recs[0].Fields["collection"]; ok {
		t.Fatalf("collection should not stay in fields")
	}
	if len(recs[0].Links) != 1 || recs[0].Links[0].Rel != "license" {
		t.Fatalf("stored links not extracted: %+v", recs[0].Links)
	}
}

func TestQuery_SpatialTemporalAndFilter(t *testing.T) {
	e, path := newStore(t)
	ctx := context.Background()

	recs, err := e.Query(ctx, path, model.QuerySpec{Collection: "s2", BBox: model.BBox{11, 55, 12, 56}, Limit: 10})
	if err != nil || len(recs) != 1 || recs[0].ID != "a" {
		t.Fatalf("bbox: %v %v", ids(recs), err)
	}

	// antimeridian crossing box covers -100 but not 11/12
	recs, err = e.Query(ctx, path, model.QuerySpec{Collection: "s2", BBox: model.BBox{170, 30, -90, 50}, Limit: 10})
	if err != nil || len(recs) != 1 || recs[0].ID != "c" {
		t.Fatalf("antimeridian: %v %v", ids(recs), err)
	}

	start := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	recs, err = e.Query(ctx, path, model.QuerySpec{Collection: "s2", Interval: &model.Interval{Start: &start}, Limit: 10})
	if err != nil || len(recs) != 2 {
		t.Fatalf("interval: %v %v", ids(recs), err)
	}

	f, err := cql.ParseText("eo:cloud_cover < 20 AND platform LIKE 'sentinel%'")
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	recs, err = e.Query(ctx, path, model.QuerySpec{Collection: "s2", Filter: f, Limit: 10})
	if err != nil || len(recs) != 1 || recs[0].ID != "a" {
		t.Fatalf("filter: %v %v", ids(recs), err)
	}

	f, err = cql.ParseText("datetime >= TIMESTAMP('2021-06-01T00:00:00Z') AND id IN ('b','c','z')")
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	recs, err = e.Query(ctx, path, model.QuerySpec{Collection: "s2", Filter: f, Limit: 10})
	if err != nil || len(recs) != 2 {
		t.Fatalf("timestamp filter: %v %v", ids(recs), err)
	}
}

func TestQuery_SortBy(t *testing.T) {
	e, path := newStore(t)
	recs, err := e.Query(context.Background(), path, model.QuerySpec{
		Collection: "s2",
		SortBy:     []model.SortKey{{Field: "eo:cloud_cover", Desc: true}},
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := ids(recs); got[0] != "b" || got[1] != "c" || got[2] != "a" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestQuery_FieldsProjection(t *testing.T) {
	e, path := newStore(t)
	ctx := context.Background()

	recs, err := e.Query(ctx, path, model.QuerySpec{Collection: "s2", Include: []string{"id", "geometry"}, Limit: 1})
	if err != nil {
		t.Fatalf("Query include: %v", err)
	}
	if _, ok := recs[0].Fields["properties"]; ok {
		t.Fatalf("include form kept properties: %v", recs[0].Fields)
	}
	if _, ok := recs[0].Fields["geometry"]; !ok || recs[0].ID != "a" {
		t.Fatalf("include form lost fields: %v", recs[0].Fields)
	}

	recs, err = e.Query(ctx, path, model.QuerySpec{Collection: "s2", Exclude: []string{"properties"}, Limit: 1})
	if err != nil {
		t.Fatalf("Query exclude: %v", err)
	}
	if _, ok := recs[0].Fields["properties"]; ok {
		t.Fatalf("exclude form kept properties: %v", recs[0].Fields)
	}

	recs, err = e.Query(ctx, path, model.QuerySpec{Collection: "s2", Include: []string{"properties.platform"}, Limit: 1})
	if err != nil {
		t.Fatalf("Query nested: %v", err)
	}
	props, _ := recs[0].Fields["properties"].(map[string]any)
	if len(props) != 1 || props["platform"] != "sentinel-2a" {
		t.Fatalf("nested include: %v", recs[0].Fields)
	}
	if recs[0].ID != "" {
		t.Fatalf("id was projected away, record id should be unknown")
	}
}

func TestCountAndCollections(t *testing.T) {
	e, path := newStore(t)
	ctx := context.Background()

	n, err := e.Count(ctx, path, model.QuerySpec{Collection: "s2", Limit: 1, Offset: 2})
	if err != nil || n != 3 {
		t.Fatalf("Count: %d %v", n, err)
	}
	cols, err := e.Collections(ctx, path)
	if err != nil {
		t.Fatalf("Collections: %v", err)
	}
	if len(cols) != 1 || cols[0]["id"] != "s2" {
		t.Fatalf("unexpected collections %v", cols)
	}
}

func TestQuery_MissingStore(t *testing.T) {
	e, _ := newStore(t)
	if _, err := e.Query(context.Background(), filepath.Join(t.TempDir(), "nope.sqlite"), model.QuerySpec{}); err == nil {
		t.Fatal("expected error for missing store")
	}
	if _, err := Path("s3://bucket/store.sqlite"); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}

func TestWriter_GeneratesIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.sqlite")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	it := map[string]any{"type": "Feature", "geometry": nil, "properties": map[string]any{}}
	if _, err := w.PutItems(context.Background(), "c", []map[string]any{it}); err != nil {
		t.Fatalf("PutItems: %v", err)
	}
	_ = w.Close()
	id, _ := it["id"].(string)
	if len(id) != 36 {
		t.Fatalf("expected uuid id, got %q", id)
	}
	raw, _ := json.Marshal(it)
	if len(raw) == 0 {
		t.Fatal("item should still marshal")
	}
}
