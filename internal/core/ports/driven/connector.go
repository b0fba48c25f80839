package driven

import (
	"context"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// Connector fetches query files from a source.
// Each connector type (github, filesystem) implements this interface.
type Connector interface {
	// Type returns the connector type identifier.
	Type() string

	// SourceID returns the configured source ID.
	SourceID() string

	// Capabilities returns what this connector supports.
	Capabilities() ConnectorCapabilities

	// Validate checks the connector is configured and reachable.
	// For GitHub this fetches the repository, for filesystem it checks
	// the root path is a readable directory.
	Validate(ctx context.Context) error

	// FullSync fetches every matching file from the source.
	// Both channels are closed when the sync ends. A fatal error is sent
	// on the error channel before it closes.
	FullSync(ctx context.Context) (<-chan domain.RawFile, <-chan error)

	// Watch listens for real-time changes.
	// Only available if SupportsWatch is true.
	Watch(ctx context.Context) (<-chan domain.RawFileChange, error)

	// Close releases resources.
	Close() error
}

// ConnectorCapabilities describes what a connector supports.
type ConnectorCapabilities struct {
	// SupportsWatch indicates the connector can push real-time events.
	SupportsWatch bool

	// RequiresAuth indicates the connector needs credentials.
	RequiresAuth bool

	// SupportsValidation indicates Validate() performs an actual check.
	SupportsValidation bool

	// SupportsRateLimiting indicates the connector throttles itself.
	SupportsRateLimiting bool
}
