package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

func sampleQueries() []*domain.Query {
	a := domain.NewQuery("https://github.com/org/repo/blob/main/a.yaml", "SigninLogs | take 10",
		domain.WithName("A"),
		domain.WithSourceType(domain.SourceTypeSentinelYAML),
		domain.WithAttributes(map[string]any{"tactics": []any{"InitialAccess"}}),
	)
	a.MergeProperties(map[string]any{"tables": []any{"SigninLogs"}, "valid_query": true})
	b := domain.NewQuery("notes.md", "AuditLogs", domain.WithSourceType(domain.SourceTypeMarkdown), domain.WithSourceIndex(2))
	return []*domain.Query{a, b}
}

func TestDump_RoundTrip(t *testing.T) {
	for _, name := range []string{"kql_query_db.json", "kql_query_db.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			d := New()
			ctx := context.Background()
			want := sampleQueries()

			require.NoError(t, d.Save(ctx, path, want))

			got, err := d.Load(ctx, path)
			require.NoError(t, err)
			require.Len(t, got, 2)
			for i := range want {
				assert.Equal(t, want[i].ID, got[i].ID)
				assert.Equal(t, want[i].Text, got[i].Text)
				assert.Equal(t, want[i].Name, got[i].Name)
				assert.Equal(t, want[i].SourceType, got[i].SourceType)
				assert.Equal(t, want[i].SourceIndex, got[i].SourceIndex)
				assert.Equal(t, want[i].ContentHash, got[i].ContentHash)
			}
			assert.Equal(t, []any{"InitialAccess"}, got[0].Attributes["tactics"])
			assert.Equal(t, true, got[0].Properties["valid_query"])
		})
	}
}

func TestDump_CompressedOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json.zst")
	require.NoError(t, New().Save(context.Background(), path, sampleQueries()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, zstdMagic, raw[:4])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestDump_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	d := New()

	require.NoError(t, d.Save(context.Background(), path, nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))

	got, err := d.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestDump_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	d := New()
	ctx := context.Background()

	_, err := d.Load(ctx, filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"query":`), 0o644))
	_, err = d.Load(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	wrongShape := filepath.Join(dir, "object.json")
	require.NoError(t, os.WriteFile(wrongShape, []byte(`{"query": "T"}`), 0o644))
	_, err = d.Load(ctx, wrongShape)
	assert.ErrorIs(t, err, domain.ErrMalformedInput)

	for name, content := range map[string]string{
		"null.json":        `null`,
		"null-record.json": `[null, {"query": "T"}]`,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err = d.Load(ctx, path)
		assert.ErrorIs(t, err, domain.ErrMalformedInput, name)
	}
}

func TestDump_FileMode(t *testing.T) {
	dir := t.TempDir()
	d := New()

	for _, name := range []string{"store.json", "store.json.zst"} {
		path := filepath.Join(dir, name)
		require.NoError(t, d.Save(context.Background(), path, sampleQueries()))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, FileMode, info.Mode().Perm(), name)
	}
}

func TestDump_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Save(ctx, filepath.Join(t.TempDir(), "x.json"), sampleQueries())
	assert.ErrorIs(t, err, context.Canceled)
}
