// Package app assembles the search service from configuration. The server
// and the admin CLI share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/stac-federation/internal/cache/redisstore"
	"github.com/mohammed-shakir/stac-federation/internal/core/config"
	"github.com/mohammed-shakir/stac-federation/internal/core/httpclient"
	"github.com/mohammed-shakir/stac-federation/internal/core/query"
	"github.com/mohammed-shakir/stac-federation/internal/registry"
	"github.com/mohammed-shakir/stac-federation/internal/registry/source"
	"github.com/mohammed-shakir/stac-federation/internal/search"
	"github.com/mohammed-shakir/stac-federation/internal/store/sqlitestore"
)

type App struct {
	Config    config.Config
	Engine    *sqlitestore.Engine
	Redis     *redisstore.Client
	Source    source.Source
	Refresher *registry.Refresher
	Service   *search.Service
}

// New opens the store engine and the clients the collections source needs.
// Nothing is loaded until the refresher runs or a request needs a snapshot.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	eng, err := sqlitestore.New(cfg.StoreHandles, log)
	if err != nil {
		return nil, fmt.Errorf("store engine: %w", err)
	}
	a.Engine = eng

	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Redis = rc
	}

	if cfg.CollectionsHref != "" {
		src, err := source.New(cfg.CollectionsHref, source.Options{HTTP: httpclient.NewOutbound(), Redis: a.Redis})
		if err != nil {
			return nil, err
		}
		a.Source = src
	}

	a.Refresher = registry.New(registry.Options{
		Source:     a.Source,
		StoreHrefs: cfg.StoreHrefs,
		Lister:     eng,
		MediaTypes: sqlitestore.MediaTypes,
		Interval:   cfg.ReloadInterval,
		Logger:     log,
	})
	limits := query.Limits{Default: cfg.DefaultLimit, Max: cfg.MaxLimit}
	a.Service = search.NewService(eng, a.Refresher, limits, log)
	ok = true
	return a, nil
}

// WatchPath is the file to watch for collection changes, if any.
func (a *App) WatchPath() (string, bool) {
	f, ok := a.Source.(*source.File)
	if !ok || !a.Config.WatchCollections {
		return "", false
	}
	return f.Path(), true
}

func (a *App) Close() {
	if a.Refresher != nil {
		a.Refresher.Stop()
	}
	if a.Engine != nil {
		_ = a.Engine.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}
