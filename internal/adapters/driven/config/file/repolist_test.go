package file

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

const repoList = `
- Github:
    repo: reprise99/Sentinel-Queries
    branch: main
- Github:
    repo: ugurkocde/KQL_Intune
    branch: main
- Github:
    repo: alexverboon/Hunting-Queries-Detection-Rules
`

func TestReadRepoList(t *testing.T) {
	sources, err := ReadRepoList(strings.NewReader(repoList))
	require.NoError(t, err)
	require.Len(t, sources, 3)

	first := sources[0]
	assert.Equal(t, "reprise99-sentinel-queries", first.ID)
	assert.Equal(t, domain.SourceKindGitHub, first.Type)
	assert.Equal(t, "reprise99/Sentinel-Queries", first.Config["repo"])
	assert.Equal(t, "main", first.Config["branch"])
	assert.Equal(t, "*.kql,*.txt,*.md", first.Config["patterns"])

	_, hasBranch := sources[2].Config["branch"]
	assert.False(t, hasBranch)
}

func TestReadRepoList_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not a list", "Github: {repo: a/b}"},
		{"missing repo", "- Github: {branch: main}"},
		{"other host", "- Gitlab: {repo: a/b}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRepoList(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestReadRepoList_Empty(t *testing.T) {
	sources, err := ReadRepoList(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestReadRepoListFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(repoList), 0600))

	sources, err := ReadRepoListFile(path)
	require.NoError(t, err)
	assert.Len(t, sources, 3)

	_, err = ReadRepoListFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
