package domain

import "strings"

// Source types understood by the connector factory.
const (
	SourceKindGitHub     = "github"
	SourceKindFilesystem = "filesystem"
)

// Source is a configured origin of query files.
type Source struct {
	// ID is the unique identifier for the source.
	ID string

	// Type identifies the connector ("github", "filesystem").
	Type string

	// Name is the human-readable name for this source.
	Name string

	// Config contains connector-specific configuration such as
	// "repo", "branch", "paths", "patterns" or "path".
	Config map[string]string
}

// ConfigList splits a comma separated config value, dropping blanks.
func (s *Source) ConfigList(key string) []string {
	v := s.Config[key]
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
