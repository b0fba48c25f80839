package connectors

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/kqlstore/internal/connectors/filesystem"
	"github.com/custodia-labs/kqlstore/internal/connectors/github"
	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
)

// Ensure Factory implements the interface.
var _ driven.ConnectorFactory = (*Factory)(nil)

// Factory builds connectors by source type.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]driven.ConnectorBuilder
}

// NewFactory creates a factory with the built-in github and filesystem
// connectors. GitHub sources without their own token or rate inherit the
// values in gh.
func NewFactory(gh domain.GitHubSettings) *Factory {
	f := &Factory{builders: make(map[string]driven.ConnectorBuilder)}
	f.Register(domain.SourceKindGitHub, githubBuilder(gh))
	f.Register(domain.SourceKindFilesystem, filesystemBuilder)
	return f
}

// Create returns a Connector for the given source.
func (f *Factory) Create(_ context.Context, source domain.Source) (driven.Connector, error) {
	f.mu.RLock()
	builder, ok := f.builders[source.Type]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: connector %q", domain.ErrUnsupportedType, source.Type)
	}
	conn, err := builder(source)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source.ID, err)
	}
	return conn, nil
}

// Register adds or replaces the builder for a connector type.
func (f *Factory) Register(connectorType string, builder driven.ConnectorBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[connectorType] = builder
}

// SupportedTypes returns the registered connector types in sorted order.
func (f *Factory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func githubBuilder(settings domain.GitHubSettings) driven.ConnectorBuilder {
	return func(source domain.Source) (driven.Connector, error) {
		cfg, err := github.ParseConfig(source)
		if err != nil {
			return nil, err
		}
		if cfg.Token == "" {
			cfg.Token = settings.Token
		}
		cfg.RequestsPerSecond = settings.RequestsPerSecond
		return github.New(source.ID, cfg)
	}
}

func filesystemBuilder(source domain.Source) (driven.Connector, error) {
	root := source.Config["path"]
	if root == "" {
		return nil, fmt.Errorf("%w: filesystem source needs a path", domain.ErrConnectorValidation)
	}

	var opts []filesystem.Option
	if patterns := source.ConfigList("patterns"); len(patterns) > 0 {
		opts = append(opts, filesystem.WithPatterns(patterns...))
	}
	if format := source.Config["format"]; format != "" {
		opts = append(opts, filesystem.WithFormat(format))
	}
	if base := source.Config["url_base"]; base != "" {
		opts = append(opts, filesystem.WithURLBase(base))
	}
	return filesystem.New(source.ID, root, opts...), nil
}
