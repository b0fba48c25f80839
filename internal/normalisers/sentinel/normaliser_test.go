package sentinel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

const ruleYAML = `id: 0b9ae89d-8cad-461c-808f-0494f70ad5c4
name: Failed sign-ins from a single IP
description: |
  Identifies repeated failures.
severity: Medium
kind: Scheduled
version: 1.0.2
tactics:
  - CredentialAccess
  - InitialAccess
relevantTechniques:
  - T1110
query: |
  SigninLogs
  | where ResultType != 0
  | summarize count() by IPAddress
`

func TestNormaliser_Metadata(t *testing.T) {
	n := New()
	assert.Equal(t, "sentinel", n.Name())
	assert.Equal(t, []string{".yaml", ".yml"}, n.Extensions())
	assert.Equal(t, 80, n.Priority())
}

func TestNormalise_Rule(t *testing.T) {
	raw := &domain.RawFile{
		Path:    "Detections/SigninLogs/FailedSignins.yaml",
		URL:     "https://github.com/Azure/Azure-Sentinel/blob/master/Detections/SigninLogs/FailedSignins.yaml",
		Content: []byte(ruleYAML),
	}

	queries, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, queries, 1)

	q := queries[0]
	assert.Equal(t, raw.URL, q.SourcePath)
	assert.Equal(t, "Failed sign-ins from a single IP", q.Name)
	assert.Equal(t, domain.SourceTypeSentinelYAML, q.SourceType)
	assert.Contains(t, q.Text, "summarize count() by IPAddress")
	assert.Equal(t, domain.HashText(q.Text), q.ContentHash)

	assert.Equal(t, "Identifies repeated failures.", q.Attributes["description"])
	assert.Equal(t, "Medium", q.Attributes["severity"])
	assert.Equal(t, "Scheduled", q.Attributes["kind"])
	assert.Equal(t, "1.0.2", q.Attributes["version"])
	assert.Equal(t, "0b9ae89d-8cad-461c-808f-0494f70ad5c4", q.Attributes["sentinel_id"])
	assert.Equal(t, []any{"CredentialAccess", "InitialAccess"}, q.Attributes["tactics"])
	assert.Equal(t, []any{"T1110"}, q.Attributes["techniques"])
	assert.NotContains(t, q.Attributes, "relevantTechniques")
}

func TestNormalise_Variants(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		content   string
		wantCount int
		wantName  string
		check     func(t *testing.T, q *domain.Query)
	}{
		{
			name:      "no query",
			path:      "Detections/x.yaml",
			content:   "name: Parser\nfunctionAlias: Foo\n",
			wantCount: 0,
		},
		{
			name:      "empty document",
			path:      "Detections/empty.yaml",
			content:   "",
			wantCount: 0,
		},
		{
			name:      "name falls back to stem",
			path:      "Hunting Queries/ProcessTree.yaml",
			content:   "query: DeviceProcessEvents | take 10\n",
			wantCount: 1,
			wantName:  "ProcessTree",
		},
		{
			name:      "scalar tactic",
			path:      "Detections/a.yaml",
			content:   "name: A\ntactics: Persistence\nquery: AuditLogs\n",
			wantCount: 1,
			wantName:  "A",
			check: func(t *testing.T, q *domain.Query) {
				assert.Equal(t, []any{"Persistence"}, q.Attributes["tactics"])
			},
		},
		{
			name:      "empty lists omitted",
			path:      "Detections/b.yaml",
			content:   "name: B\ntactics: []\nrelevantTechniques:\nquery: AuditLogs\n",
			wantCount: 1,
			wantName:  "B",
			check: func(t *testing.T, q *domain.Query) {
				assert.NotContains(t, q.Attributes, "tactics")
				assert.NotContains(t, q.Attributes, "techniques")
			},
		},
		{
			name:      "path used without url",
			path:      "Detections/c.yaml",
			content:   "name: C\nquery: AuditLogs\n",
			wantCount: 1,
			wantName:  "C",
			check: func(t *testing.T, q *domain.Query) {
				assert.Equal(t, "Detections/c.yaml", q.SourcePath)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queries, err := New().Normalise(context.Background(), &domain.RawFile{
				Path:    tt.path,
				Content: []byte(tt.content),
			})
			require.NoError(t, err)
			require.Len(t, queries, tt.wantCount)
			if tt.wantCount == 0 {
				return
			}
			assert.Equal(t, tt.wantName, queries[0].Name)
			if tt.check != nil {
				tt.check(t, queries[0])
			}
		})
	}
}

func TestNormalise_InvalidYAML(t *testing.T) {
	_, err := New().Normalise(context.Background(), &domain.RawFile{
		Path:    "Detections/bad.yaml",
		Content: []byte("name: [unterminated\n"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNormalise_TacticsMapping(t *testing.T) {
	_, err := New().Normalise(context.Background(), &domain.RawFile{
		Path:    "Detections/bad.yaml",
		Content: []byte("query: T\ntactics:\n  a: b\n"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNormalise_NilInput(t *testing.T) {
	_, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
