package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mohammed-shakir/stac-federation/internal/app"
	"github.com/mohammed-shakir/stac-federation/internal/cache/redisstore"
	"github.com/mohammed-shakir/stac-federation/internal/core/config"
	"github.com/mohammed-shakir/stac-federation/internal/registry"
	"github.com/mohammed-shakir/stac-federation/internal/registry/kafkatrigger"
	"github.com/mohammed-shakir/stac-federation/internal/store/sqlitestore"
)

func collectionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "collections",
		Usage: "Inspect and publish collection documents",
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Load the configured registry once and list its collections",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runCheck(ctx, c.String("config"))
				},
			},
			{
				Name:      "push",
				Usage:     "Store a collection document in redis for a redis:// collections href",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "redis",
						Usage:    "Redis address",
						Sources:  cli.EnvVars("REDIS_ADDR"),
						Required: true,
					},
					&cli.StringFlag{
						Name:  "key",
						Usage: "Redis key holding the document",
						Value: "stac:collections",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("push needs exactly one file")
					}
					return runPush(ctx, c.String("redis"), c.String("key"), c.Args().First())
				},
			},
			{
				Name:  "notify",
				Usage: "Publish a refresh event on the Kafka topic the servers consume",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "op", Usage: "refresh, upsert or delete", Value: "refresh"},
					&cli.StringFlag{Name: "collection", Usage: "Collection id (required unless op is refresh)"},
					&cli.Uint64Flag{Name: "seq", Usage: "Sequence number used for de-duplication"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					ev := kafkatrigger.Event{
						Op:         c.String("op"),
						Collection: c.String("collection"),
						Source:     "stacctl",
						Seq:        c.Uint64("seq"),
					}
					return runNotify(c.String("config"), ev)
				},
			},
		},
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.FromEnv(), nil
	}
	return config.Load(path)
}

func runCheck(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(ctx, cfg, quiet)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Refresher.Refresh(ctx); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	snap, err := a.Refresher.Snapshot(ctx)
	if err != nil {
		return err
	}
	printSnapshot(os.Stdout, snap)
	return nil
}

func printSnapshot(w io.Writer, snap *registry.Snapshot) {
	for _, c := range snap.Collections() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", c.ID, strings.Join(c.Locations, ","))
	}
	_, _ = fmt.Fprintf(w, "%d collections, digest %x\n", snap.Len(), snap.Digest())
}

func runPush(ctx context.Context, addr, key, file string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if _, err := registry.ParseDocument(raw, file, sqlitestore.MediaTypes); err != nil {
		return fmt.Errorf("refusing to push invalid document: %w", err)
	}
	rc, err := redisstore.New(ctx, addr)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	if err := rc.Set(ctx, key, raw, 0); err != nil {
		return err
	}
	fmt.Printf("pushed %s to redis://%s at %s\n", file, key, time.Now().UTC().Format(time.RFC3339))
	return nil
}

func runNotify(configPath string, ev kafkatrigger.Event) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	k := kafkatrigger.FromConfig(cfg.RefreshKafka)
	p, err := kafkatrigger.Dial(k.Brokers, k.Topic)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()
	partition, offset, err := p.Publish(ev)
	if err != nil {
		return err
	}
	fmt.Printf("published %s event to %s (partition %d, offset %d)\n", ev.Op, k.Topic, partition, offset)
	return nil
}
