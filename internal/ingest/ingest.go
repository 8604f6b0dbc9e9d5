// Package ingest loads STAC item files into sqlite collection stores.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/mohammed-shakir/stac-federation/internal/store/sqlitestore"
)

// batch is the number of items written per transaction.
const batch = 500

type zstdReadCloser struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.f.Close()
}

// Open returns a reader over path. Files ending in .zst are decompressed.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("zstd reader for %s: %w", path, err)
	}
	return &zstdReadCloser{dec: dec, f: f}, nil
}

// Decode reads a stream of JSON values. Each value is a Feature or a
// FeatureCollection, so both a single collection document and
// newline-delimited features are accepted.
func Decode(r io.Reader, fn func(item map[string]any) error) error {
	dec := json.NewDecoder(r)
	for n := 0; ; n++ {
		var v map[string]any
		if err := dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("value %d: %w", n, err)
		}
		switch v["type"] {
		case "FeatureCollection":
			feats, _ := v["features"].([]any)
			for i, f := range feats {
				item, ok := f.(map[string]any)
				if !ok {
					return fmt.Errorf("value %d: feature %d is not an object", n, i)
				}
				if err := fn(item); err != nil {
					return err
				}
			}
		case "Feature":
			if err := fn(v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("value %d: unexpected type %v", n, v["type"])
		}
	}
}

// Stats summarizes one ingestion run.
type Stats struct {
	Files int
	Items int
}

// Files writes the items of every path into w under collection.
func Files(ctx context.Context, w *sqlitestore.Writer, collection string, paths []string) (Stats, error) {
	var st Stats
	for _, p := range paths {
		n, err := file(ctx, w, collection, p)
		st.Items += n
		if err != nil {
			return st, fmt.Errorf("%s: %w", p, err)
		}
		st.Files++
	}
	return st, nil
}

func file(ctx context.Context, w *sqlitestore.Writer, collection, path string) (int, error) {
	rc, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	total := 0
	pending := make([]map[string]any, 0, batch)
	flush := func() error {
		n, err := w.PutItems(ctx, collection, pending)
		total += n
		pending = pending[:0]
		return err
	}
	err = Decode(rc, func(item map[string]any) error {
		pending = append(pending, item)
		if len(pending) == batch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// ReadCollection reads a collection document from path.
func ReadCollection(path string) (map[string]any, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	var doc map[string]any
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", path, err)
	}
	if id, _ := doc["id"].(string); id == "" {
		return nil, fmt.Errorf("collection %s has no id", path)
	}
	return doc, nil
}
