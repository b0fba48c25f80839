package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// CommunityPatterns are the files read from community query repositories.
var CommunityPatterns = []string{"*.kql", "*.txt", "*.md"}

// repoEntry is one item of a community repo list:
//
//	- Github:
//	    repo: reprise99/Sentinel-Queries
//	    branch: main
type repoEntry struct {
	GitHub *struct {
		Repo   string `yaml:"repo"`
		Branch string `yaml:"branch"`
	} `yaml:"Github"`
}

// ReadRepoList parses a community repo list into GitHub sources.
func ReadRepoList(r io.Reader) ([]domain.Source, error) {
	var entries []repoEntry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: parse repo list: %w", domain.ErrInvalidInput, err)
	}

	sources := make([]domain.Source, 0, len(entries))
	for i, e := range entries {
		if e.GitHub == nil || e.GitHub.Repo == "" {
			return nil, fmt.Errorf("%w: repo list entry %d has no Github.repo", domain.ErrInvalidInput, i)
		}
		cfg := map[string]string{
			"repo":     e.GitHub.Repo,
			"patterns": strings.Join(CommunityPatterns, ","),
		}
		if e.GitHub.Branch != "" {
			cfg["branch"] = e.GitHub.Branch
		}
		sources = append(sources, domain.Source{
			ID:     RepoSourceID(e.GitHub.Repo),
			Type:   domain.SourceKindGitHub,
			Name:   e.GitHub.Repo,
			Config: cfg,
		})
	}
	return sources, nil
}

// ReadRepoListFile reads a community repo list from path.
func ReadRepoListFile(path string) ([]domain.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening repo list: %w", err)
	}
	defer f.Close()
	return ReadRepoList(f)
}

// RepoSourceID derives a source id from "owner/name".
func RepoSourceID(repo string) string {
	return strings.ToLower(strings.ReplaceAll(strings.Trim(repo, "/"), "/", "-"))
}
