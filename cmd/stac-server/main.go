package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/stac-federation/internal/app"
	"github.com/mohammed-shakir/stac-federation/internal/core/config"
	"github.com/mohammed-shakir/stac-federation/internal/core/health"
	"github.com/mohammed-shakir/stac-federation/internal/core/links"
	"github.com/mohammed-shakir/stac-federation/internal/core/observability"
	"github.com/mohammed-shakir/stac-federation/internal/core/router"
	"github.com/mohammed-shakir/stac-federation/internal/core/server"
	"github.com/mohammed-shakir/stac-federation/internal/logger"
	"github.com/mohammed-shakir/stac-federation/internal/metrics"
	"github.com/mohammed-shakir/stac-federation/internal/registry/kafkatrigger"
	"github.com/mohammed-shakir/stac-federation/internal/registry/source"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg := config.FromEnv()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Printf("load config: %v", err)
			return 1
		}
		cfg = loaded
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "stac-server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsHandler http.Handler
	var provider *metrics.Provider
	if cfg.Metrics.Enabled {
		provider = metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.Metrics.Addr,
			Path:    cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		observability.Init(provider.Registerer(), true)
		metricsHandler = provider.Handler()
		go func() {
			err := provider.Serve(ctx, func(addr net.Addr) {
				log.Printf("metrics: listening on %s%s", addr, cfg.Metrics.Path)
			})
			if err != nil {
				log.Printf("metrics server exited: %v", err)
			}
		}()
	} else {
		observability.Init(nil, false)
	}
	observability.ExposeBuildInfo(Version)

	appLog.Info("starting stac-server",
		"addr", cfg.Addr,
		"version", Version,
		"collections", cfg.CollectionsHref,
		"stores", len(cfg.StoreHrefs))

	a, err := app.New(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("setup failed", "err", err)
		return 1
	}
	defer a.Close()

	a.Refresher.Start(ctx)

	if path, ok := a.WatchPath(); ok {
		go func() {
			err := source.Watch(ctx, path, appLog, func() { a.Refresher.Trigger("fsnotify") })
			if err != nil && !errors.Is(err, context.Canceled) {
				appLog.Warn("collections watch stopped", "path", path, "err", err)
			}
		}()
	}

	var trigOpts kafkatrigger.Options
	trigOpts.Logger = appLog
	if provider != nil {
		trigOpts.Register = provider.Registerer()
	}
	runner := kafkatrigger.New(kafkatrigger.FromConfig(cfg.RefreshKafka), a.Refresher, trigOpts)
	if err := runner.Start(ctx); err != nil {
		appLog.Error("refresh trigger setup failed", "err", err)
		return 1
	}
	defer runner.Stop()

	api := router.New(a.Service, links.New(cfg.BaseURL), appLog)
	opts := server.Options{
		Addr:    cfg.Addr,
		API:     api,
		Metrics: metricsHandler,
		Ready: map[string]health.ReadinessReporter{
			"registry": a.Refresher,
			"kafka":    runner,
		},
	}
	if err := server.Run(ctx, appLog, opts); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
