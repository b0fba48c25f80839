package driving

import (
	"context"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// QueryService answers filter queries against the loaded query store.
type QueryService interface {
	// Find returns queries matching every criterion.
	Find(ctx context.Context, criteria domain.Criteria, opts domain.FindOptions) (*FindResult, error)

	// FilterOptions returns sorted distinct values per indexed field,
	// optionally restricted to categories.
	FilterOptions(ctx context.Context, categories ...string) (map[string][]string, error)

	// Get returns one query by id.
	Get(ctx context.Context, id string) (*domain.Query, error)

	// Stats summarises the loaded store.
	Stats(ctx context.Context) (*StoreStats, error)
}

// FindResult is a page of matching queries.
type FindResult struct {
	// Queries is the requested page.
	Queries []*domain.Query

	// Total is the number of matches before paging.
	Total int
}

// StoreStats summarises a store.
type StoreStats struct {
	// Queries is the number of records.
	Queries int

	// IndexRows maps each indexed field to its row count.
	IndexRows map[string]int

	// IndexValues maps each indexed field to its distinct value count.
	IndexValues map[string]int
}
