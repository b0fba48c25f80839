package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kqlstore/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// setupTestSnapshot creates a temporary snapshot database for testing.
func setupTestSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshot", "kql.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleQueries() []*domain.Query {
	return []*domain.Query{
		domain.NewQuery("Detections/a.yaml", "SigninLogs | take 1",
			domain.WithID("q-1"),
			domain.WithName("Rule A"),
			domain.WithSourceType(domain.SourceTypeSentinelYAML),
			domain.WithAttributes(map[string]any{"tactics": []any{"InitialAccess", "Persistence"}}),
			domain.WithProperties(map[string]any{
				"tables":      []any{"SigninLogs"},
				"operators":   []any{"take"},
				"joins":       map[string]any{"inner": []any{"AuditLogs"}},
				"valid_query": true,
			}),
		),
		domain.NewQuery("Hunting/b.md", "AuditLogs | count",
			domain.WithID("q-2"),
			domain.WithSourceType(domain.SourceTypeMarkdown),
			domain.WithSourceIndex(1),
			domain.WithAttributes(map[string]any{"tactics": []any{"Persistence"}}),
			domain.WithProperties(map[string]any{"tables": []any{"AuditLogs"}}),
		),
	}
}

func TestOpen_RecordsMigrations(t *testing.T) {
	s := setupTestSnapshot(t)

	var version int
	require.NoError(t, s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 1, version)

	// Reopening applies nothing twice.
	require.NoError(t, s.migrate(migrations.FS))
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSnapshot_WriteAndReadBack(t *testing.T) {
	s := setupTestSnapshot(t)
	ctx := context.Background()

	want := sampleQueries()
	require.NoError(t, s.WriteSnapshot(ctx, want))

	got, err := s.Queries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "q-1", got[0].ID)
	assert.Equal(t, "Rule A", got[0].Name)
	assert.Equal(t, domain.SourceTypeSentinelYAML, got[0].SourceType)
	assert.Equal(t, domain.HashText("SigninLogs | take 1"), got[0].ContentHash)
	assert.Equal(t, []any{"InitialAccess", "Persistence"}, got[0].Attributes["tactics"])
	assert.Equal(t, true, got[0].Properties["valid_query"])

	assert.Equal(t, "q-2", got[1].ID)
	assert.Equal(t, 1, got[1].SourceIndex)
	assert.Equal(t, "b.md", got[1].Name)
}

func TestSnapshot_Lookup(t *testing.T) {
	s := setupTestSnapshot(t)
	ctx := context.Background()
	require.NoError(t, s.WriteSnapshot(ctx, sampleQueries()))

	tests := []struct {
		field string
		value string
		want  []string
	}{
		{"tactics", "Persistence", []string{"q-1", "q-2"}},
		{"tactics", "InitialAccess", []string{"q-1"}},
		{"tables", "AuditLogs", []string{"q-2"}},
		{"joins", "AuditLogs", []string{"q-1"}},
		{"joins", "inner", nil},
		{"operators", "take", []string{"q-1"}},
		{"tables", "Missing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.field+"="+tt.value, func(t *testing.T) {
			ids, err := s.Lookup(ctx, tt.field, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSnapshot_WriteReplaces(t *testing.T) {
	s := setupTestSnapshot(t)
	ctx := context.Background()

	require.NoError(t, s.WriteSnapshot(ctx, sampleQueries()))
	require.NoError(t, s.WriteSnapshot(ctx, sampleQueries()[1:]))

	got, err := s.Queries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "q-2", got[0].ID)

	n, err := s.IndexRowCount(ctx, "tactics")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSnapshot_DuplicateIDsKeepLast(t *testing.T) {
	s := setupTestSnapshot(t)
	ctx := context.Background()

	first := domain.NewQuery("a.kql", "T1", domain.WithID("dup"),
		domain.WithProperties(map[string]any{"tables": []any{"T1"}}))
	second := domain.NewQuery("b.kql", "T2", domain.WithID("dup"),
		domain.WithProperties(map[string]any{"tables": []any{"T2"}}))
	require.NoError(t, s.WriteSnapshot(ctx, []*domain.Query{first, second}))

	got, err := s.Queries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "T2", got[0].Text)

	ids, err := s.Lookup(ctx, "tables", "T1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSnapshot_EmptyAndCancelled(t *testing.T) {
	s := setupTestSnapshot(t)

	require.NoError(t, s.WriteSnapshot(context.Background(), nil))
	got, err := s.Queries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.WriteSnapshot(ctx, sampleQueries()))
}

func TestSnapshot_Path(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kql.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
}
