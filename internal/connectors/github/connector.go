package github

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// Connector fetches query files from one GitHub repository.
type Connector struct {
	sourceID string
	config   *Config
	client   *Client
	mu       sync.Mutex
	closed   bool
}

// New creates a new GitHub connector.
func New(sourceID string, cfg *Config) (*Connector, error) {
	client, err := NewClient(context.Background(), cfg.Token, cfg.RequestsPerSecond, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &Connector{
		sourceID: sourceID,
		config:   cfg,
		client:   client,
	}, nil
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return domain.SourceKindGitHub
}

// SourceID returns the source identifier.
func (c *Connector) SourceID() string {
	return c.sourceID
}

// Capabilities returns the connector's capabilities.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{
		SupportsWatch:        false,
		RequiresAuth:         false,
		SupportsValidation:   true,
		SupportsRateLimiting: true,
	}
}

// Validate checks the repository (and branch, when configured) exists.
func (c *Connector) Validate(ctx context.Context) error {
	if c.isClosed() {
		return domain.ErrConnectorClosed
	}

	_, err := c.client.ValidateRepository(ctx, c.config.Owner, c.config.Repo, c.config.Branch)
	switch {
	case err == nil:
		return nil
	case IsUnauthorized(err):
		return fmt.Errorf("%w: %w (check github.token or GITHUB_TOKEN)", domain.ErrConnectorValidation, err)
	case IsRateLimited(err) && c.config.Token == "":
		return fmt.Errorf("%w: %w (set a token to raise the limit)", domain.ErrConnectorValidation, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrConnectorValidation, err)
	}
}

// FullSync fetches every included file of the configured branch.
func (c *Connector) FullSync(ctx context.Context) (<-chan domain.RawFile, <-chan error) {
	filesChan := make(chan domain.RawFile)
	errsChan := make(chan error, 1)

	go func() {
		defer close(filesChan)
		defer close(errsChan)

		if c.isClosed() {
			errsChan <- domain.ErrConnectorClosed
			return
		}

		branch := c.config.Branch
		if branch == "" {
			resolved, err := c.client.ValidateRepository(ctx, c.config.Owner, c.config.Repo, "")
			if err != nil {
				errsChan <- fmt.Errorf("resolve branch: %w", err)
				return
			}
			branch = resolved
		}

		emit := func(file domain.RawFile) bool {
			file.SourceID = c.sourceID
			select {
			case <-ctx.Done():
				return false
			case filesChan <- file:
				return true
			}
		}

		var err error
		switch c.config.Mode {
		case FetchTree:
			err = FetchTreeFiles(ctx, c.client, c.config, branch, emit)
		default:
			err = FetchArchiveFiles(ctx, c.client, c.config, branch, emit)
		}
		if err != nil {
			errsChan <- fmt.Errorf("sync %s: %w", c.config.FullName(), err)
		}
	}()

	return filesChan, errsChan
}

// Watch is not supported for GitHub.
func (c *Connector) Watch(_ context.Context) (<-chan domain.RawFileChange, error) {
	return nil, domain.ErrNotImplemented
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Connector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
