package driven

import (
	"context"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// Normaliser turns a raw file into query records.
// Each normaliser handles a file format (Sentinel YAML, Markdown, plain KQL).
type Normaliser interface {
	// Name identifies the format, e.g. "sentinel".
	Name() string

	// Extensions returns the lower case file extensions handled, with dot.
	Extensions() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers should return 50-100.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise parses a raw file into zero or more queries.
	// A file holding no query yields an empty slice, not an error.
	Normalise(ctx context.Context, raw *domain.RawFile) ([]*domain.Query, error)
}
