package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/stac-federation/internal/core/apierr"
	"github.com/mohammed-shakir/stac-federation/internal/core/model"
	"github.com/mohammed-shakir/stac-federation/internal/core/observability"
	"github.com/mohammed-shakir/stac-federation/internal/registry/source"
	"github.com/mohammed-shakir/stac-federation/internal/store"
)

type State int32

const (
	StateEmpty State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}

type Options struct {
	// Source is the collection description document; may be nil when all
	// collections come from StoreHrefs.
	Source source.Source
	// StoreHrefs are stores whose embedded collection documents are
	// registered with the store as their only location.
	StoreHrefs []string
	Lister     store.CollectionLister
	MediaTypes []string
	Interval   time.Duration
	Logger     *slog.Logger
}

// Refresher owns the published registry snapshot. Reads are lock free; mu
// serializes refreshes.
type Refresher struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	lastErr error

	snap    atomic.Pointer[Snapshot]
	state   atomic.Int32
	trigger chan string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Refresher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Refresher{
		opts:    opts,
		log:     opts.Logger,
		trigger: make(chan string, 1),
	}
}

// Start loads the registry and keeps reloading it every Interval and on
// Trigger until ctx is cancelled or Stop is called.
func (r *Refresher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx)
	}()
	r.log.Info("collections refresher started", "interval", r.opts.Interval, "stores", len(r.opts.StoreHrefs))
}

func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("collections refresher stopped")
}

func (r *Refresher) loop(ctx context.Context) {
	_ = r.Refresh(ctx)

	var tick <-chan time.Time
	if r.opts.Interval > 0 {
		t := time.NewTicker(r.opts.Interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_ = r.Refresh(ctx)
		case src := <-r.trigger:
			r.log.Debug("collections refresh requested", "source", src)
			_ = r.Refresh(ctx)
		}
	}
}

// Trigger asks the running loop for an immediate refresh. Requests made
// while one is pending are coalesced.
func (r *Refresher) Trigger(src string) {
	observability.IncRefreshTrigger(src)
	select {
	case r.trigger <- src:
	default:
	}
}

// Refresh runs one load cycle. On failure the previous snapshot stays
// published.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Store(int32(StateLoading))
	defer func() {
		if r.snap.Load() != nil {
			r.state.Store(int32(StateReady))
		} else {
			r.state.Store(int32(StateEmpty))
		}
	}()

	start := time.Now()
	cols, err := r.load(ctx)
	var snap *Snapshot
	if err == nil {
		if prev := r.snap.Load(); prev != nil && prev.Digest() == Digest(cols) {
			r.lastErr = nil
			observability.IncRefresh("unchanged")
			r.log.Debug("collections unchanged", "collections", prev.Len())
			return nil
		}
		snap, err = NewSnapshot(cols)
	}
	if err != nil {
		r.lastErr = err
		outcome := "error"
		if errors.Is(err, apierr.ErrConfigurationConflict) {
			outcome = "conflict"
		}
		observability.IncRefresh(outcome)
		r.log.Error("collections refresh failed", "outcome", outcome, "err", err,
			"keeping_previous", r.snap.Load() != nil)
		return err
	}

	r.snap.Store(snap)
	r.lastErr = nil
	observability.IncRefresh("ok")
	observability.SetRegistrySize(snap.Len())
	r.log.Info("collections refreshed", "collections", snap.Len(), "duration", time.Since(start))
	return nil
}

func (r *Refresher) load(ctx context.Context) ([]model.Collection, error) {
	var cols []model.Collection
	if r.opts.Source != nil {
		raw, err := r.opts.Source.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		parsed, err := ParseDocument(raw, r.opts.Source.Href(), r.opts.MediaTypes)
		if err != nil {
			return nil, err
		}
		cols = append(cols, parsed...)
	}
	if len(r.opts.StoreHrefs) > 0 && r.opts.Lister == nil {
		return nil, errors.New("store hrefs configured without a collection lister")
	}
	for _, href := range r.opts.StoreHrefs {
		docs, err := r.opts.Lister.Collections(ctx, href)
		if err != nil {
			return nil, fmt.Errorf("list collections of %s: %w", href, err)
		}
		for _, doc := range docs {
			id, _ := doc["id"].(string)
			cols = append(cols, model.Collection{ID: id, Locations: []string{href}, Doc: doc})
		}
	}
	return cols, nil
}

// Snapshot returns the published snapshot. Before the first successful load
// it loads synchronously and reports why that failed.
func (r *Refresher) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s := r.snap.Load(); s != nil {
		return s, nil
	}
	if err := r.Refresh(ctx); err != nil {
		if errors.Is(err, apierr.ErrConfigurationConflict) {
			return nil, err
		}
		return nil, apierr.Backend(err, "collection registry unavailable")
	}
	return r.snap.Load(), nil
}

func (r *Refresher) State() State { return State(r.state.Load()) }

// LastError is the error of the latest refresh, nil after a good one.
func (r *Refresher) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Readiness reports whether a snapshot has been published.
func (r *Refresher) Readiness() (bool, int) {
	s := r.snap.Load()
	return s != nil, s.Len()
}
