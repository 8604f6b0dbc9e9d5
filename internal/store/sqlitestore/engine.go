// Package sqlitestore is the store engine for collections kept in sqlite
// files, one file per store location.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mohammed-shakir/stac-federation/internal/core/model"
)

// MediaTypes are the asset media types that mark a collection store.
var MediaTypes = []string{"application/vnd.sqlite3", "application/x-sqlite3"}

type Engine struct {
	log *slog.Logger

	mu      sync.Mutex
	handles *lru.Cache[string, *sql.DB]
}

// New returns an engine keeping at most maxOpen store files open.
func New(maxOpen int, log *slog.Logger) (*Engine, error) {
	if maxOpen <= 0 {
		maxOpen = 64
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{log: log}
	cache, err := lru.NewWithEvict(maxOpen, func(path string, db *sql.DB) {
		if err := db.Close(); err != nil {
			e.log.Warn("close store failed", "path", path, "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("store handle cache: %w", err)
	}
	e.handles = cache
	return e, nil
}

// Close closes every open store file.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handles.Purge()
	return nil
}

// Path resolves a store location (plain path or file:// URL) to a file path.
func Path(location string) (string, error) {
	if !strings.Contains(location, "://") {
		return location, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse store location %q: %w", location, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
	return u.Path, nil
}

func (e *Engine) db(location string) (*sql.DB, error) {
	path, err := Path(location)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if db, ok := e.handles.Get(path); ok {
		return db, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying pragma: %w", err)
	}
	e.handles.Add(path, db)
	return db, nil
}

func (e *Engine) Query(ctx context.Context, location string, q model.QuerySpec) ([]model.Record, error) {
	db, err := e.db(location)
	if err != nil {
		return nil, err
	}
	where, err := buildWhere(q)
	if err != nil {
		return nil, err
	}
	order, orderArgs, err := orderBy(q.SortBy)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	args := append(append(where.args, orderArgs...), limit, max(q.Offset, 0))
	stmt := "SELECT id, collection, item FROM items" + where.String() + order + " LIMIT ? OFFSET ?"

	start := time.Now()
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Record
	for rows.Next() {
		var id, collection, item string
		if err := rows.Scan(&id, &collection, &item); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		rec, err := toRecord(id, collection, item, q)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	e.log.Debug("store query", "location", location, "collection", q.Collection,
		"rows", len(out), "offset", q.Offset, "duration", time.Since(start))
	return out, nil
}

func toRecord(id, collection, item string, q model.QuerySpec) (model.Record, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(item), &doc); err != nil {
		return model.Record{}, fmt.Errorf("decode item %s: %w", id, err)
	}
	links, err := takeLinks(doc)
	if err != nil {
		return model.Record{}, fmt.Errorf("decode links of item %s: %w", id, err)
	}
	doc["id"] = id
	delete(doc, "collection")

	fields := project(doc, q.Include, q.Exclude)
	rec := model.Record{Collection: collection, Fields: fields, Links: links}
	if v, ok := fields["id"].(string); ok {
		rec.ID = v
	}
	return rec, nil
}

func takeLinks(doc map[string]any) ([]model.Link, error) {
	raw, ok := doc["links"]
	if !ok {
		return nil, nil
	}
	delete(doc, "links")
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var links []model.Link
	if err := json.Unmarshal(b, &links); err != nil {
		return nil, err
	}
	return links, nil
}

func (e *Engine) Count(ctx context.Context, location string, q model.QuerySpec) (int, error) {
	db, err := e.db(location)
	if err != nil {
		return 0, err
	}
	where, err := buildWhere(q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items"+where.String(), where.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// Collections returns the collection documents stored alongside the items.
// Stores without a collections table have none.
func (e *Engine) Collections(ctx context.Context, location string) ([]map[string]any, error) {
	db, err := e.db(location)
	if err != nil {
		return nil, err
	}
	var n int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'collections'").Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("inspect schema: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, "SELECT id, doc FROM collections ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []map[string]any
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode collection %s: %w", id, err)
		}
		if doc == nil {
			return nil, errors.New("collection " + id + " is not an object")
		}
		doc["id"] = id
		out = append(out, doc)
	}
	return out, rows.Err()
}
