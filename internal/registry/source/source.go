// Package source fetches the collection description document from a file,
// an HTTP endpoint or a Redis key.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/mohammed-shakir/stac-federation/internal/cache/redisstore"
)

type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	// Href is the document location, used to resolve relative store hrefs.
	Href() string
}

// Options carries the clients a source may need.
type Options struct {
	HTTP  *http.Client
	Redis *redisstore.Client
}

// New picks the source implementation from the href scheme.
func New(href string, opts Options) (Source, error) {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return nil, errors.New("collections href is empty")
	case strings.HasPrefix(href, "redis://"):
		if opts.Redis == nil {
			return nil, fmt.Errorf("collections href %s needs REDIS_ADDR", href)
		}
		key := strings.TrimPrefix(href, "redis://")
		if key == "" {
			return nil, errors.New("redis collections href has no key")
		}
		return &Redis{client: opts.Redis, key: key}, nil
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		c := opts.HTTP
		if c == nil {
			c = http.DefaultClient
		}
		return &HTTP{client: c, url: href}, nil
	case strings.HasPrefix(href, "file://"):
		u, err := url.Parse(href)
		if err != nil {
			return nil, fmt.Errorf("parse collections href: %w", err)
		}
		return &File{path: u.Path}, nil
	case strings.Contains(href, "://"):
		return nil, fmt.Errorf("unsupported collections href %s", href)
	default:
		return &File{path: href}, nil
	}
}

type File struct {
	path string
}

func NewFile(path string) *File { return &File{path: path} }

func (f *File) Fetch(_ context.Context) ([]byte, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read collections file: %w", err)
	}
	return b, nil
}

func (f *File) Href() string { return f.path }

// Path is the watched file.
func (f *File) Path() string { return f.path }

type HTTP struct {
	client *http.Client
	url    string
}

func (h *HTTP) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build collections request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch collections: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch collections: %s returned %d", h.url, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read collections response: %w", err)
	}
	return b, nil
}

func (h *HTTP) Href() string { return h.url }

type Redis struct {
	client *redisstore.Client
	key    string
}

func (r *Redis) Fetch(ctx context.Context) ([]byte, error) {
	return r.client.Get(ctx, r.key)
}

func (r *Redis) Href() string { return "redis://" + r.key }
