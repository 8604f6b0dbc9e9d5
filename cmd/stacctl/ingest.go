package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mohammed-shakir/stac-federation/internal/ingest"
	"github.com/mohammed-shakir/stac-federation/internal/store/sqlitestore"
)

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Load item files (FeatureCollection or NDJSON, optionally .zst) into a store",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "store",
				Usage:    "Store file to create or extend",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "collection",
				Usage: "Collection id for items that do not name one",
			},
			&cli.StringFlag{
				Name:  "collection-file",
				Usage: "Collection document to store alongside the items",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runIngest(ctx, c.String("store"), c.String("collection"), c.String("collection-file"), c.Args().Slice())
		},
	}
}

func runIngest(ctx context.Context, store, collection, collectionFile string, files []string) error {
	if len(files) == 0 && collectionFile == "" {
		return errors.New("nothing to ingest")
	}
	w, err := sqlitestore.Create(store)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			fmt.Printf("Warning: failed to close store: %v\n", err)
		}
	}()

	if collectionFile != "" {
		doc, err := ingest.ReadCollection(collectionFile)
		if err != nil {
			return err
		}
		if err := w.PutCollection(ctx, doc); err != nil {
			return err
		}
		if collection == "" {
			collection, _ = doc["id"].(string)
		}
		fmt.Printf("stored collection %v\n", doc["id"])
	}

	st, err := ingest.Files(ctx, w, collection, files)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	fmt.Printf("ingested %d items from %d files into %s\n", st.Items, st.Files, store)
	return nil
}
