package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/stac-federation/internal/core/geo"
	"github.com/mohammed-shakir/stac-federation/internal/core/model"
)

const schema = `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT NOT NULL,
		collection TEXT NOT NULL,
		datetime TEXT,
		start_datetime TEXT,
		end_datetime TEXT,
		minx REAL,
		miny REAL,
		maxx REAL,
		maxy REAL,
		item TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_items_datetime ON items(collection, datetime);
	CREATE INDEX IF NOT EXISTS idx_items_bbox ON items(collection, minx, maxx);

	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	);
`

// Writer fills a store file. It is used by ingestion tooling and tests.
type Writer struct {
	db *sql.DB
}

// Create opens (or creates) a writable store file and ensures the schema.
func Create(path string) (*Writer, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Writer{db: db}, nil
}

// Close switches the file back to a rollback journal so that it can be opened
// read-only without WAL side files, then closes it.
func (w *Writer) Close() error {
	if _, err := w.db.Exec("PRAGMA journal_mode = DELETE"); err != nil {
		_ = w.db.Close()
		return fmt.Errorf("reset journal mode: %w", err)
	}
	return w.db.Close()
}

// PutCollection stores a collection document keyed by its id.
func (w *Writer) PutCollection(ctx context.Context, doc map[string]any) error {
	id, _ := doc["id"].(string)
	if id == "" {
		return errors.New("collection document without id")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal collection %s: %w", id, err)
	}
	_, err = w.db.ExecContext(ctx, "INSERT OR REPLACE INTO collections (id, doc) VALUES (?, ?)", id, string(raw))
	if err != nil {
		return fmt.Errorf("insert collection %s: %w", id, err)
	}
	return nil
}

// PutItems stores items in one transaction. Items without an id get a
// generated one; items without a collection are assigned to collection.
func (w *Writer) PutItems(ctx context.Context, collection string, items []map[string]any) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO items (id, collection, datetime, start_datetime, end_datetime, minx, miny, maxx, maxy, item)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, it := range items {
		row, err := itemRow(collection, it)
		if err != nil {
			return 0, fmt.Errorf("item %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("inserting item %v: %w", row[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return len(items), nil
}

func itemRow(collection string, it map[string]any) ([]any, error) {
	id, _ := it["id"].(string)
	if id == "" {
		id = uuid.NewString()
		it["id"] = id
	}
	if c, _ := it["collection"].(string); c != "" {
		collection = c
	}
	if collection == "" {
		return nil, fmt.Errorf("item %s has no collection", id)
	}
	it["collection"] = collection

	props, _ := it["properties"].(map[string]any)
	dt, err := timeColumn(props, "datetime")
	if err != nil {
		return nil, err
	}
	start, err := timeColumn(props, "start_datetime")
	if err != nil {
		return nil, err
	}
	end, err := timeColumn(props, "end_datetime")
	if err != nil {
		return nil, err
	}

	var bounds [4]any
	bb, err := itemBBox(it)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", id, err)
	}
	if bb != nil {
		minX, minY, maxX, maxY := bb.XY()
		bounds = [4]any{minX, minY, maxX, maxY}
	}

	raw, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("marshal item %s: %w", id, err)
	}
	return []any{id, collection, dt, start, end, bounds[0], bounds[1], bounds[2], bounds[3], string(raw)}, nil
}

func timeColumn(props map[string]any, key string) (any, error) {
	s, _ := props[key].(string)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("properties.%s %q: %w", key, s, err)
	}
	return t.UTC().Format(TimeLayout), nil
}

func itemBBox(it map[string]any) (model.BBox, error) {
	if arr, ok := it["bbox"].([]any); ok && (len(arr) == 4 || len(arr) == 6) {
		vals := make(model.BBox, len(arr))
		for i, v := range arr {
			f, ok := v.(float64)
			if !ok {
				return nil, errors.New("bbox must be numeric")
			}
			vals[i] = f
		}
		return vals, nil
	}
	g, ok := it["geometry"]
	if !ok || g == nil {
		return nil, nil
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return geo.Envelope(raw)
}
