package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mohammed-shakir/stac-federation/internal/core/config"
	"github.com/mohammed-shakir/stac-federation/internal/core/model"
	"github.com/mohammed-shakir/stac-federation/internal/store/sqlitestore"
)

func writeStore(t *testing.T, path string, n int) {
	t.Helper()
	w, err := sqlitestore.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	items := make([]map[string]any, 0, n)
	for i := range n {
		items = append(items, map[string]any{
			"type":       "Feature",
			"id":         fmt.Sprintf("s2-%02d", i),
			"geometry":   map[string]any{"type": "Point", "coordinates": []any{float64(i), 1.0}},
			"properties": map[string]any{"datetime": "2021-01-01T00:00:00Z"},
		})
	}
	if _, err := w.PutItems(context.Background(), "s2", items); err != nil {
		t.Fatalf("PutItems: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNew_SearchesThroughFileRegistry(t *testing.T) {
	dir := t.TempDir()
	writeStore(t, filepath.Join(dir, "s2.sqlite"), 3)
	doc := `[{"id":"s2","type":"Collection","assets":{"data":{"href":"s2.sqlite","type":"application/vnd.sqlite3"}}}]`
	docPath := filepath.Join(dir, "collections.json")
	if err := os.WriteFile(docPath, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := config.Defaults()
	cfg.CollectionsHref = docPath
	cfg.WatchCollections = true
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if p, ok := a.WatchPath(); !ok || p != docPath {
		t.Fatalf("WatchPath = %q, %v", p, ok)
	}

	ctx := context.Background()
	first, err := a.Service.Search(ctx, model.SearchRequest{Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(first.Records) != 2 || first.Next == nil {
		t.Fatalf("first page: %d records, next %v", len(first.Records), first.Next)
	}
	next := first.Next
	second, err := a.Service.Search(ctx, model.SearchRequest{Collections: next.Remaining, Offset: next.Offset, Limit: next.Limit})
	if err != nil {
		t.Fatalf("Search page 2: %v", err)
	}
	if len(second.Records) != 1 || second.Next != nil {
		t.Fatalf("second page: %d records, next %v", len(second.Records), second.Next)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Defaults()
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error without a collections source")
	}
}
