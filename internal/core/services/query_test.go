package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kqlstore/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/store"
)

func testQueryService() *QueryService {
	return NewQueryService(store.New(
		domain.NewQuery("a.yaml", "SigninLogs | take 1",
			domain.WithID("q-1"),
			domain.WithAttributes(map[string]any{"tactics": []any{"InitialAccess"}}),
			domain.WithProperties(map[string]any{"tables": []any{"SigninLogs"}}),
		),
		domain.NewQuery("b.yaml", "SigninLogs | join AuditLogs",
			domain.WithID("q-2"),
			domain.WithProperties(map[string]any{
				"tables": []any{"SigninLogs", "AuditLogs"},
				"joins":  map[string]any{"inner": []any{"AuditLogs"}},
			}),
		),
		domain.NewQuery("c.kql", "SecurityEvent", domain.WithID("q-3")),
	))
}

func TestQueryService_Find(t *testing.T) {
	svc := testQueryService()
	ctx := context.Background()

	res, err := svc.Find(ctx, domain.Criteria{}.Where("tables", domain.AnyOf("SigninLogs")), domain.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Queries, 2)
	assert.Equal(t, "q-1", res.Queries[0].ID)

	res, err = svc.Find(ctx, domain.Criteria{}.Where("tables", domain.AnyOf("SigninLogs")), domain.FindOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Queries, 1)
	assert.Equal(t, "q-2", res.Queries[0].ID)

	_, err = svc.Find(ctx, domain.Criteria{}.Where("nope", domain.Equals("x")), domain.FindOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestQueryService_FilterOptions(t *testing.T) {
	svc := testQueryService()
	ctx := context.Background()

	opts, err := svc.FilterOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AuditLogs", "SigninLogs"}, opts["tables"])
	assert.Equal(t, []string{"InitialAccess"}, opts["tactics"])
	assert.NotContains(t, opts, "operators")

	opts, err = svc.FilterOptions(ctx, "joins")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"joins": {"AuditLogs"}}, opts)

	_, err = svc.FilterOptions(ctx, "colour")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestQueryService_Get(t *testing.T) {
	svc := testQueryService()

	q, err := svc.Get(context.Background(), "q-3")
	require.NoError(t, err)
	assert.Equal(t, "SecurityEvent", q.Text)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueryService_Stats(t *testing.T) {
	stats, err := testQueryService().Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Queries)
	assert.Equal(t, 3, stats.IndexRows["tables"])
	assert.Equal(t, 2, stats.IndexValues["tables"])
	assert.Equal(t, 1, stats.IndexRows["joins"])
	assert.Equal(t, 0, stats.IndexRows["operators"])
	assert.Len(t, stats.IndexRows, len(store.Fields))
}

func TestQueryService_CancelledContext(t *testing.T) {
	svc := testQueryService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Find(ctx, nil, domain.FindOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = svc.Stats(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadQueryService(t *testing.T) {
	dump := memory.NewQueryDump()
	require.NoError(t, dump.Save(context.Background(), "db.json", []*domain.Query{
		domain.NewQuery("a.kql", "T", domain.WithID("x")),
	}))

	svc, err := LoadQueryService(context.Background(), dump, "db.json")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Store().Len())

	_, err = LoadQueryService(context.Background(), dump, "missing.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewQueryService_NilStore(t *testing.T) {
	svc := NewQueryService(nil)
	res, err := svc.Find(context.Background(), nil, domain.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
}
