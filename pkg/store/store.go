// Package store defines the storage API the CRUD orchestrator runs compiled
// queries against.
package store

import (
	"context"
	"errors"

	"github.com/edgeflare/pgapi/pkg/query"
)

// ErrNotFound is returned when no entity matches a lookup.
var ErrNotFound = errors.New("entity not found")

// Row is one entity as returned by the store, related entities included.
type Row = map[string]any

// Store executes compiled descriptors against the entities registered with it.
type Store interface {
	// FindAndCountAll returns the page of rows described by q and the total
	// number of rows matching q without Limit / Offset.
	FindAndCountAll(ctx context.Context, entity string, q query.Descriptor) ([]Row, int64, error)
	// FindOne returns the first row matching q or ErrNotFound.
	FindOne(ctx context.Context, entity string, q query.Descriptor) (Row, error)
	// Create inserts payload and returns the stored row.
	Create(ctx context.Context, entity string, payload Row) (Row, error)
	// Update applies payload to the rows matching where and returns the first
	// updated row, or ErrNotFound when nothing matched.
	Update(ctx context.Context, entity string, where query.Predicate, payload Row) (Row, error)
	// Destroy deletes the rows matching q.Where and returns how many went.
	Destroy(ctx context.Context, entity string, q query.Descriptor) (int64, error)
}
