package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/mohammed-shakir/stac-federation/internal/core/apierr"
	"github.com/mohammed-shakir/stac-federation/internal/core/model"
)

// ParseDocument reads a collection description document: a JSON array of
// STAC collections or an object with a "collections" array. Store locations
// are the assets whose media type is one of mediaTypes, resolved against
// baseHref.
func ParseDocument(raw []byte, baseHref string, mediaTypes []string) ([]model.Collection, error) {
	raw = bytes.TrimSpace(raw)
	var docs []map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		var wrapped struct {
			Collections []map[string]any `json:"collections"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("decode collections document: %w", err)
		}
		docs = wrapped.Collections
	} else if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode collections document: %w", err)
	}

	out := make([]model.Collection, 0, len(docs))
	for i, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("collection %d is not an object", i)
		}
		id, _ := doc["id"].(string)
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("collection %d has no id", i)
		}
		locs, err := storeLocations(doc, baseHref, mediaTypes)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", id, err)
		}
		out = append(out, model.Collection{ID: id, Locations: locs, Doc: doc})
	}
	return out, nil
}

// storeLocations returns store hrefs in asset key order. Listing the same
// store twice is a conflict.
func storeLocations(doc map[string]any, baseHref string, mediaTypes []string) ([]string, error) {
	assets, _ := doc["assets"].(map[string]any)
	keys := make([]string, 0, len(assets))
	for k := range assets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var locs []string
	for _, k := range keys {
		asset, _ := assets[k].(map[string]any)
		typ, _ := asset["type"].(string)
		if !slices.Contains(mediaTypes, typ) {
			continue
		}
		href, _ := asset["href"].(string)
		if href == "" {
			return nil, fmt.Errorf("store asset %q has no href", k)
		}
		abs, err := ResolveHref(baseHref, href)
		if err != nil {
			return nil, fmt.Errorf("store asset %q: %w", k, err)
		}
		if slices.Contains(locs, abs) {
			return nil, apierr.Conflict("store %s is listed more than once", abs)
		}
		locs = append(locs, abs)
	}
	return locs, nil
}

// ResolveHref makes href absolute relative to the document at base. Base is
// an http(s) or file URL or a file path; other sources (redis) resolve against
// the working directory.
func ResolveHref(base, href string) (string, error) {
	if href == "" {
		return "", errors.New("empty href")
	}
	if strings.Contains(href, "://") || filepath.IsAbs(href) {
		return href, nil
	}
	switch {
	case base == "":
		return filepath.Abs(href)
	case hasScheme(base, "http", "https", "file"):
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse base %q: %w", base, err)
		}
		r, err := url.Parse(href)
		if err != nil {
			return "", fmt.Errorf("parse href %q: %w", href, err)
		}
		return b.ResolveReference(r).String(), nil
	case strings.Contains(base, "://"):
		return filepath.Abs(href)
	default:
		return filepath.Abs(filepath.Join(filepath.Dir(base), href))
	}
}

func hasScheme(href string, schemes ...string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(strings.ToLower(href), s+"://") {
			return true
		}
	}
	return false
}
