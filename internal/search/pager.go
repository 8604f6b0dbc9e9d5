// Package search runs federated searches across the collections of the
// registry, one store at a time, and pages through them.
package search

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/mohammed-shakir/stac-federation/internal/core/apierr"
	"github.com/mohammed-shakir/stac-federation/internal/core/model"
	"github.com/mohammed-shakir/stac-federation/internal/core/observability"
	"github.com/mohammed-shakir/stac-federation/internal/logger"
	"github.com/mohammed-shakir/stac-federation/internal/store"
)

// Resolver maps collection ids to registry entries.
type Resolver interface {
	Lookup(id string) (model.Collection, bool)
}

type Page struct {
	Records []model.Record
	// Next is nil on the last page.
	Next *Cursor
}

type Pager struct {
	Engine store.Engine
	Log    *slog.Logger
}

func NewPager(engine store.Engine, log *slog.Logger) *Pager {
	if log == nil {
		log = slog.Default()
	}
	return &Pager{Engine: engine, Log: log}
}

// Page fetches one page starting at cur. Collections are drained in queue
// order; records keep each store's own order. A collection that is not in
// the registry, or has no store, contributes nothing.
func (p *Pager) Page(ctx context.Context, reg Resolver, tmpl model.QuerySpec, cur Cursor) (Page, error) {
	limit := cur.Limit
	if limit <= 0 {
		limit = tmpl.Limit
	}
	queue := cur.Remaining
	offset := max(cur.Offset, 0)

	var out []model.Record
	for i, id := range queue {
		if len(out) == limit {
			// filled exactly by an exhausted collection; the rest is untouched
			return p.done(out, &Cursor{Remaining: slices.Clone(queue[i:]), Limit: limit}), nil
		}
		col, ok := reg.Lookup(id)
		if !ok || len(col.Locations) == 0 {
			p.Log.DebugContext(ctx, "collection skipped", "collection", id, "known", ok)
			offset = 0
			continue
		}
		recs, consumed, more, err := p.drain(ctx, col, tmpl, limit-len(out), offset)
		if err != nil {
			return Page{}, err
		}
		out = append(out, recs...)
		if more {
			return p.done(out, &Cursor{Remaining: slices.Clone(queue[i:]), Offset: consumed, Limit: limit}), nil
		}
		offset = 0
	}
	return p.done(out, nil), nil
}

func (p *Pager) done(recs []model.Record, next *Cursor) Page {
	observability.IncSearchPage(next != nil)
	return Page{Records: recs, Next: next}
}

// drain reads up to budget records of col starting at offset, where offset
// counts across the concatenation of the collection's stores. It reports the
// offset reached and whether the collection has records beyond it.
func (p *Pager) drain(ctx context.Context, col model.Collection, tmpl model.QuerySpec, budget, offset int) ([]model.Record, int, bool, error) {
	var recs []model.Record
	skip, base := offset, 0
	for _, loc := range col.Locations {
		want := budget - len(recs)
		if want == 0 {
			// budget filled by an exhausted store; later stores may have more
			return recs, base + skip, true, nil
		}
		// one extra row tells whether the store has more
		q := tmpl.ForCollection(col.ID, want+1, skip)
		got, err := p.query(ctx, col.ID, loc, q)
		if err != nil {
			return nil, 0, false, err
		}
		if len(got) > want {
			recs = append(recs, got[:want]...)
			return recs, base + skip + want, true, nil
		}
		recs = append(recs, got...)

		n := skip + len(got)
		if len(got) == 0 && skip > 0 {
			if n, err = p.count(ctx, col.ID, loc, q); err != nil {
				return nil, 0, false, err
			}
		}
		base += n
		skip = max(0, skip-n)
	}
	return recs, 0, false, nil
}

func (p *Pager) query(ctx context.Context, collection, loc string, q model.QuerySpec) ([]model.Record, error) {
	ctx = logger.WithCollection(ctx, collection)
	start := time.Now()
	recs, err := p.Engine.Query(ctx, loc, q)
	observability.ObserveStoreQuery(collection, err, time.Since(start).Seconds())
	if err != nil {
		p.Log.ErrorContext(ctx, "store query failed", "location", loc, "err", err)
		return nil, apierr.Backend(err, "query collection %s", collection)
	}
	if len(recs) > q.Limit {
		recs = recs[:q.Limit]
	}
	for i := range recs {
		recs[i].Collection = collection
	}
	p.Log.DebugContext(ctx, "store query", "location", loc, "offset", q.Offset, "limit", q.Limit, "rows", len(recs))
	return recs, nil
}

// count returns how many records of one store match q. Engines without a
// Counter are asked for a page of q.Offset rows instead.
func (p *Pager) count(ctx context.Context, collection, loc string, q model.QuerySpec) (int, error) {
	if c, ok := p.Engine.(store.Counter); ok {
		n, err := c.Count(logger.WithCollection(ctx, collection), loc, q)
		if err != nil {
			return 0, apierr.Backend(err, "count collection %s", collection)
		}
		return n, nil
	}
	recs, err := p.query(ctx, collection, loc, q.ForCollection(collection, q.Offset, 0))
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}
