package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/mohammed-shakir/stac-federation/internal/core/model"
	"github.com/mohammed-shakir/stac-federation/internal/store/sqlitestore"
)

func feature(id string) string {
	return `{"type":"Feature","id":"` + id + `","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"datetime":"2021-01-01T00:00:00Z"}}`
}

func collect(t *testing.T, in string) []string {
	t.Helper()
	var ids []string
	err := Decode(strings.NewReader(in), func(item map[string]any) error {
		id, _ := item["id"].(string)
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return ids
}

func TestDecode_FeatureCollection(t *testing.T) {
	in := `{"type":"FeatureCollection","features":[` + feature("a") + `,` + feature("b") + `]}`
	got := collect(t, in)
	if strings.Join(got, ",") != "a,b" {
		t.Fatalf("ids = %v", got)
	}
}

func TestDecode_NDJSON(t *testing.T) {
	in := feature("a") + "\n" + feature("b") + "\n\n" + feature("c") + "\n"
	got := collect(t, in)
	if strings.Join(got, ",") != "a,b,c" {
		t.Fatalf("ids = %v", got)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := []string{
		`{"type":"Collection","id":"x"}`,
		`{"type":"FeatureCollection","features":[1]}`,
		feature("a") + "\n{broken",
	}
	for _, in := range cases {
		err := Decode(strings.NewReader(in), func(map[string]any) error { return nil })
		if err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func writeZstd(t *testing.T, path, body string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := io.WriteString(enc, body); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func TestFiles_PlainAndCompressed(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "items.json")
	if err := os.WriteFile(plain, []byte(`{"type":"FeatureCollection","features":[`+feature("a")+`]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	packed := filepath.Join(dir, "items.ndjson.zst")
	var b strings.Builder
	for _, id := range []string{"b", "c", "d"} {
		b.WriteString(feature(id) + "\n")
	}
	writeZstd(t, packed, b.String())

	store := filepath.Join(dir, "store.sqlite")
	w, err := sqlitestore.Create(store)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	st, err := Files(context.Background(), w, "s2", []string{plain, packed})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if st.Files != 2 || st.Items != 4 {
		t.Fatalf("stats = %+v", st)
	}

	eng, err := sqlitestore.New(2, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer func() { _ = eng.Close() }()
	n, err := eng.Count(context.Background(), store, model.QuerySpec{Collection: "s2"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Fatalf("count = %d, want 4", n)
	}
}

func TestFiles_MissingFile(t *testing.T) {
	w, err := sqlitestore.Create(filepath.Join(t.TempDir(), "store.sqlite"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer func() { _ = w.Close() }()
	if _, err := Files(context.Background(), w, "s2", []string{"/does/not/exist.json"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestReadCollection(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "c.json")
	raw, _ := json.Marshal(map[string]any{"id": "s2", "type": "Collection"})
	if err := os.WriteFile(good, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := ReadCollection(good)
	if err != nil || doc["id"] != "s2" {
		t.Fatalf("ReadCollection = %v, %v", doc, err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"type":"Collection"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadCollection(bad); err == nil {
		t.Fatal("expected error for missing id")
	}
}
