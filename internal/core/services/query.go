package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driving"
	"github.com/custodia-labs/kqlstore/internal/core/store"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// QueryService answers filter queries against an in-memory store.
type QueryService struct {
	store *store.Store
}

// NewQueryService creates a query service over st.
func NewQueryService(st *store.Store) *QueryService {
	if st == nil {
		st = store.New()
	}
	return &QueryService{store: st}
}

// LoadQueryService reads a dump written by ingest and indexes it.
func LoadQueryService(ctx context.Context, dump driven.QueryDump, path string) (*QueryService, error) {
	queries, err := dump.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return NewQueryService(store.New(queries...)), nil
}

// Store returns the underlying store.
func (s *QueryService) Store() *store.Store {
	return s.store
}

// Find returns queries matching every criterion, paged by opts.
func (s *QueryService) Find(ctx context.Context, criteria domain.Criteria, opts domain.FindOptions) (*driving.FindResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queries, total, err := s.store.FindPage(criteria, opts)
	if err != nil {
		return nil, err
	}
	return &driving.FindResult{Queries: queries, Total: total}, nil
}

// FilterOptions returns sorted distinct values per indexed field.
func (s *QueryService) FilterOptions(ctx context.Context, categories ...string) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, c := range categories {
		if _, ok := store.LookupField(c); !ok {
			return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidArgument, c)
		}
	}
	return s.store.FilterOptions(categories...), nil
}

// Get returns one query by id.
func (s *QueryService) Get(ctx context.Context, id string) (*domain.Query, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.Get(id)
}

// Stats summarises the loaded store.
func (s *QueryService) Stats(ctx context.Context) (*driving.StoreStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	options := s.store.FilterOptions()
	stats := &driving.StoreStats{
		Queries:     s.store.Len(),
		IndexRows:   make(map[string]int, len(store.Fields)),
		IndexValues: make(map[string]int, len(store.Fields)),
	}
	for _, f := range store.Fields {
		stats.IndexRows[f.Name] = s.store.IndexLen(f.Name)
		stats.IndexValues[f.Name] = len(options[f.Name])
	}
	return stats, nil
}
