package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

var Version = "dev"

func main() {
	app := &cli.Command{
		Name:    "stacctl",
		Usage:   "Manage and query a federated STAC search service",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "TOML config file (environment is used when empty)",
			},
		},
		Commands: []*cli.Command{
			ingestCommand(),
			collectionsCommand(),
			searchCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
