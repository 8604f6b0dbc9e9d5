package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/mohammed-shakir/stac-federation/internal/core/httpclient"
)

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Run a search against a server and print matching items as NDJSON, following next links",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Server base URL",
				Value: "http://localhost:8090",
			},
			&cli.StringFlag{Name: "collections", Usage: "Comma separated collection ids"},
			&cli.StringFlag{Name: "bbox", Usage: "minx,miny,maxx,maxy"},
			&cli.StringFlag{Name: "datetime", Usage: "Instant or interval"},
			&cli.StringFlag{Name: "filter", Usage: "CQL2 text filter"},
			&cli.StringFlag{Name: "sortby", Usage: "Sort keys, e.g. -properties.datetime"},
			&cli.IntFlag{Name: "limit", Usage: "Page size", Value: 100},
			&cli.IntFlag{Name: "max-pages", Usage: "Stop after this many pages (0 follows every page)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			q := url.Values{}
			for _, k := range []string{"collections", "bbox", "datetime", "filter", "sortby"} {
				if v := c.String(k); v != "" {
					q.Set(k, v)
				}
			}
			q.Set("limit", strconv.Itoa(c.Int("limit")))
			start := strings.TrimRight(c.String("url"), "/") + "/search?" + q.Encode()

			n, pages, err := walkPages(ctx, httpclient.NewOutbound(), start, c.Int("max-pages"), os.Stdout)
			_, _ = fmt.Fprintf(os.Stderr, "%d items in %d pages\n", n, pages)
			return err
		},
	}
}

type page struct {
	Features []json.RawMessage `json:"features"`
	Links    []struct {
		Rel    string `json:"rel"`
		Href   string `json:"href"`
		Method string `json:"method"`
	} `json:"links"`
}

// walkPages fetches href and every next page after it, writing one feature
// per line to out.
func walkPages(ctx context.Context, client *http.Client, href string, maxPages int, out io.Writer) (items, pages int, err error) {
	for href != "" {
		if maxPages > 0 && pages == maxPages {
			return items, pages, nil
		}
		p, err := fetchPage(ctx, client, href)
		if err != nil {
			return items, pages, err
		}
		pages++
		for _, f := range p.Features {
			if _, err := fmt.Fprintf(out, "%s\n", f); err != nil {
				return items, pages, err
			}
			items++
		}
		href = ""
		for _, l := range p.Links {
			if l.Rel == "next" && (l.Method == "" || l.Method == http.MethodGet) {
				href = l.Href
			}
		}
	}
	return items, pages, nil
}

func fetchPage(ctx context.Context, client *http.Client, href string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/geo+json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("GET %s: %s: %s", href, resp.Status, strings.TrimSpace(string(body)))
	}
	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &p, nil
}
