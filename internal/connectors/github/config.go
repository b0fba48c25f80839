package github

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// FetchMode selects how repository files are retrieved.
type FetchMode string

const (
	// FetchArchive downloads the branch as one zip archive.
	FetchArchive FetchMode = "archive"

	// FetchTree lists the git tree and fetches each blob.
	FetchTree FetchMode = "tree"
)

// Config holds the parsed configuration for a GitHub source.
type Config struct {
	// Owner and Repo name the repository.
	Owner string
	Repo  string

	// Branch to read. Empty resolves the repository's default branch.
	Branch string

	// Paths restricts files to these directory prefixes. Empty means all.
	Paths []string

	// FilePatterns are glob patterns matched against the base name or
	// the full path. Empty means all files.
	FilePatterns []string

	// Format is passed to normalisers as a hint in file metadata.
	Format string

	// Mode selects archive download or per-blob fetching.
	Mode FetchMode

	// Token authenticates API calls. Empty makes anonymous calls.
	Token string

	// RequestsPerSecond throttles API calls.
	RequestsPerSecond float64

	// BaseURL overrides the API endpoint.
	BaseURL string
}

// ParseConfig parses a source's config map into a Config struct.
// The "repo" key is required in "owner/name" form.
func ParseConfig(source domain.Source) (*Config, error) {
	repo := strings.TrimSpace(source.Config["repo"])
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: repo must be owner/name, got %q", domain.ErrConnectorValidation, repo)
	}

	cfg := &Config{
		Owner:        owner,
		Repo:         name,
		Branch:       strings.TrimSpace(source.Config["branch"]),
		Paths:        normalisePaths(source.ConfigList("paths")),
		FilePatterns: source.ConfigList("patterns"),
		Format:       strings.TrimSpace(source.Config["format"]),
		Mode:         FetchArchive,
		Token:        source.Config["token"],
		BaseURL:      source.Config["base_url"],
	}

	switch mode := FetchMode(strings.ToLower(strings.TrimSpace(source.Config["mode"]))); mode {
	case "":
	case FetchArchive, FetchTree:
		cfg.Mode = mode
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrConnectorValidation, mode)
	}

	return cfg, nil
}

// normalisePaths trims surrounding slashes so prefixes compare against
// tree paths.
func normalisePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.Trim(p, "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Includes reports whether a repository path passes the path prefixes
// and file patterns.
func (c *Config) Includes(path string) bool {
	if len(c.Paths) > 0 {
		inside := false
		for _, prefix := range c.Paths {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				inside = true
				break
			}
		}
		if !inside {
			return false
		}
	}
	return matchesPatterns(path, c.FilePatterns)
}

// FullName returns "owner/repo".
func (c *Config) FullName() string {
	return c.Owner + "/" + c.Repo
}
