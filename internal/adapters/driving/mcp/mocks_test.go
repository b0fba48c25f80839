package mcp

import (
	"context"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	result  *driving.FindResult
	query   *domain.Query
	options map[string][]string
	stats   *driving.StoreStats
	err     error

	gotCriteria   domain.Criteria
	gotOpts       domain.FindOptions
	gotCategories []string
}

func (m *mockQueryService) Find(
	_ context.Context,
	criteria domain.Criteria,
	opts domain.FindOptions,
) (*driving.FindResult, error) {
	m.gotCriteria = criteria
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &driving.FindResult{}, nil
	}
	return m.result, nil
}

func (m *mockQueryService) FilterOptions(_ context.Context, categories ...string) (map[string][]string, error) {
	m.gotCategories = categories
	return m.options, m.err
}

func (m *mockQueryService) Get(_ context.Context, _ string) (*domain.Query, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.query == nil {
		return nil, domain.ErrNotFound
	}
	return m.query, nil
}

func (m *mockQueryService) Stats(_ context.Context) (*driving.StoreStats, error) {
	return m.stats, m.err
}
