package search

import (
	"context"
	"log/slog"

	"github.com/mohammed-shakir/stac-federation/internal/core/apierr"
	"github.com/mohammed-shakir/stac-federation/internal/core/model"
	"github.com/mohammed-shakir/stac-federation/internal/core/query"
	"github.com/mohammed-shakir/stac-federation/internal/registry"
	"github.com/mohammed-shakir/stac-federation/internal/store"
)

// Snapshots yields the registry snapshot a request reads.
type Snapshots interface {
	Snapshot(ctx context.Context) (*registry.Snapshot, error)
}

type Service struct {
	pager  *Pager
	snaps  Snapshots
	limits query.Limits
	log    *slog.Logger
}

func NewService(engine store.Engine, snaps Snapshots, limits query.Limits, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{pager: NewPager(engine, log), snaps: snaps, limits: limits, log: log}
}

func (s *Service) Limits() query.Limits { return s.limits }

type Result struct {
	Records []model.Record
	Next    *Cursor
	// Limit is the page size after defaulting and clamping.
	Limit int
}

// Search runs one page of req. The request itself is the cursor: its
// collections are the queue and its offset applies to the first of them.
// Without collections every registered collection is searched in registry
// order.
func (s *Service) Search(ctx context.Context, req model.SearchRequest) (Result, error) {
	tmpl, err := query.Translate(req, s.limits)
	if err != nil {
		return Result{}, err
	}
	snap, err := s.snaps.Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	candidates := uniq(req.Collections)
	if len(candidates) == 0 {
		candidates = snap.IDs()
	}
	page, err := s.pager.Page(ctx, snap, tmpl, Start(candidates, tmpl.Limit, tmpl.Offset))
	if err != nil {
		return Result{}, err
	}
	return Result{Records: page.Records, Next: page.Next, Limit: tmpl.Limit}, nil
}

// uniq drops repeated collection ids, keeping first occurrences in order.
func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *Service) Collections(ctx context.Context) ([]model.Collection, error) {
	snap, err := s.snaps.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Collections(), nil
}

func (s *Service) Collection(ctx context.Context, id string) (model.Collection, error) {
	snap, err := s.snaps.Snapshot(ctx)
	if err != nil {
		return model.Collection{}, err
	}
	c, ok := snap.Lookup(id)
	if !ok {
		return model.Collection{}, apierr.NotFound("collection %s", id)
	}
	return c, nil
}

// Items is Search constrained to one collection that must exist.
func (s *Service) Items(ctx context.Context, collection string, req model.SearchRequest) (Result, error) {
	if _, err := s.Collection(ctx, collection); err != nil {
		return Result{}, err
	}
	req.Collections = []string{collection}
	return s.Search(ctx, req)
}

// Item looks up exactly one record. More than one match means the stores
// of the collection disagree.
func (s *Service) Item(ctx context.Context, collection, id string) (model.Record, error) {
	if _, err := s.Collection(ctx, collection); err != nil {
		return model.Record{}, err
	}
	res, err := s.Search(ctx, model.SearchRequest{Collections: []string{collection}, IDs: []string{id}, Limit: 2})
	if err != nil {
		return model.Record{}, err
	}
	switch len(res.Records) {
	case 0:
		return model.Record{}, apierr.NotFound("item %s in collection %s", id, collection)
	case 1:
		return res.Records[0], nil
	default:
		return model.Record{}, apierr.Conflict("item %s appears more than once in collection %s", id, collection)
	}
}
