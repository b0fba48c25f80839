package driven

import (
	"context"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// QueryDump persists a whole record collection as one document and
// reads it back.
type QueryDump interface {
	// Save writes queries to path, replacing any existing file.
	Save(ctx context.Context, path string, queries []*domain.Query) error

	// Load reads queries from path.
	Load(ctx context.Context, path string) ([]*domain.Query, error)
}

// SnapshotWriter exports queries and their index rows to a queryable
// database file.
type SnapshotWriter interface {
	// WriteSnapshot replaces the snapshot contents with queries.
	WriteSnapshot(ctx context.Context, queries []*domain.Query) error

	// Close releases resources.
	Close() error
}
