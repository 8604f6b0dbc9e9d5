// Package registry holds the collection registry and the background process
// that keeps it in sync with the collection description source.
package registry

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/stac-federation/internal/core/apierr"
	"github.com/mohammed-shakir/stac-federation/internal/core/model"
)

// Snapshot is an immutable view of the registry. Iteration order is the
// order collections were loaded in.
type Snapshot struct {
	ids      []string
	byID     map[string]model.Collection
	digest   uint64
	loadedAt time.Time
}

// NewSnapshot builds a snapshot; a repeated collection id is a
// configuration conflict.
func NewSnapshot(cols []model.Collection) (*Snapshot, error) {
	s := &Snapshot{
		ids:      make([]string, 0, len(cols)),
		byID:     make(map[string]model.Collection, len(cols)),
		digest:   Digest(cols),
		loadedAt: time.Now(),
	}
	for _, c := range cols {
		if c.ID == "" {
			return nil, apierr.Conflict("collection without id")
		}
		if strings.Contains(c.ID, ",") {
			return nil, apierr.Conflict("collection id %q contains a comma", c.ID)
		}
		if _, dup := s.byID[c.ID]; dup {
			return nil, apierr.Conflict("duplicate collection id %q", c.ID)
		}
		c.Locations = slices.Clone(c.Locations)
		s.ids = append(s.ids, c.ID)
		s.byID[c.ID] = c
	}
	return s, nil
}

// Digest fingerprints a collection list so that unchanged reloads can be
// detected without rebuilding.
func Digest(cols []model.Collection) uint64 {
	h := xxhash.New()
	enc := json.NewEncoder(h)
	for _, c := range cols {
		_ = enc.Encode(c.ID)
		_ = enc.Encode(c.Locations)
		_ = enc.Encode(c.Doc)
	}
	return h.Sum64()
}

func (s *Snapshot) Lookup(id string) (model.Collection, bool) {
	if s == nil {
		return model.Collection{}, false
	}
	c, ok := s.byID[id]
	return c, ok
}

func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.ids)
}

func (s *Snapshot) Collections() []model.Collection {
	if s == nil {
		return nil
	}
	out := make([]model.Collection, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

func (s *Snapshot) Digest() uint64 { return s.digest }

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }
