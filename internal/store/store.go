// Package store defines what the search core needs from a collection store.
package store

import (
	"context"

	"github.com/mohammed-shakir/stac-federation/internal/core/model"
)

// Engine runs one query against one store location. Returned records keep
// the store's order and never exceed q.Limit.
type Engine interface {
	Query(ctx context.Context, location string, q model.QuerySpec) ([]model.Record, error)
}

// Counter reports how many records of a location match q, ignoring its
// limit and offset.
type Counter interface {
	Count(ctx context.Context, location string, q model.QuerySpec) (int, error)
}

// CollectionLister exposes the collection documents embedded in a store.
type CollectionLister interface {
	Collections(ctx context.Context, location string) ([]map[string]any, error)
}
