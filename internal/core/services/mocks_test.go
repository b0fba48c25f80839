package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/custodia-labs/kqlstore/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
)

// mockConnector implements driven.Connector for testing.
type mockConnector struct {
	sourceID     string
	capabilities driven.ConnectorCapabilities
	files        []domain.RawFile
	syncErr      error
	validateErr  error
	closed       atomic.Bool
}

func (m *mockConnector) Type() string     { return "mock" }
func (m *mockConnector) SourceID() string { return m.sourceID }
func (m *mockConnector) Capabilities() driven.ConnectorCapabilities {
	return m.capabilities
}

func (m *mockConnector) Validate(context.Context) error { return m.validateErr }

func (m *mockConnector) FullSync(ctx context.Context) (<-chan domain.RawFile, <-chan error) {
	files := make(chan domain.RawFile)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		for _, f := range m.files {
			select {
			case <-ctx.Done():
				return
			case files <- f:
			}
		}
		if m.syncErr != nil {
			errs <- m.syncErr
		}
	}()

	return files, errs
}

func (m *mockConnector) Watch(context.Context) (<-chan domain.RawFileChange, error) {
	return nil, domain.ErrNotImplemented
}

func (m *mockConnector) Close() error {
	m.closed.Store(true)
	return nil
}

// mockFactory hands out preconfigured connectors by source id.
type mockFactory struct {
	connectors map[string]*mockConnector
	createErr  map[string]error
}

func (f *mockFactory) Create(_ context.Context, source domain.Source) (driven.Connector, error) {
	if err := f.createErr[source.ID]; err != nil {
		return nil, err
	}
	c, ok := f.connectors[source.ID]
	if !ok {
		return nil, domain.ErrUnsupportedType
	}
	return c, nil
}

func (f *mockFactory) Register(string, driven.ConnectorBuilder) {}
func (f *mockFactory) SupportedTypes() []string                 { return []string{"mock"} }

// lineRegistry turns every non-blank line of a .kql file into a query.
// Files containing "corrupt" fail to parse, other extensions are
// unsupported.
type lineRegistry struct{}

func (lineRegistry) Normalise(_ context.Context, raw *domain.RawFile) ([]*domain.Query, error) {
	if filepath.Ext(raw.Path) != ".kql" {
		return nil, domain.ErrUnsupportedType
	}
	content := string(raw.Content)
	if strings.Contains(content, "corrupt") {
		return nil, errors.New("corrupt file")
	}
	var out []*domain.Query
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		out = append(out, domain.NewQuery(raw.Location(), line, domain.WithSourceIndex(len(out))))
	}
	return out, nil
}

func (lineRegistry) Register(driven.Normaliser)    {}
func (lineRegistry) SupportedExtensions() []string { return []string{".kql"} }

// savedDump returns the queries dumped under path, or nil.
func savedDump(d *memory.QueryDump, path string) []*domain.Query {
	queries, err := d.Load(context.Background(), path)
	if err != nil {
		return nil
	}
	return queries
}

// scriptedExtractor answers from the query text:
//
//	invalid  a rejected query
//	silent   no response
//	other    the text as the only table
type scriptedExtractor struct {
	started, stopped atomic.Int32
	calls            atomic.Int32
}

func (e *scriptedExtractor) Start() { e.started.Add(1) }
func (e *scriptedExtractor) Stop()  { e.stopped.Add(1) }

func (e *scriptedExtractor) Submit(_ context.Context, text, _ string) map[string]any {
	e.calls.Add(1)
	switch text {
	case "invalid":
		return map[string]any{"valid_query": false}
	case "silent":
		return map[string]any{}
	}
	return map[string]any{
		"tables":      []any{text},
		"operators":   []any{"take"},
		"valid_query": true,
	}
}

// mockSnapshot records what it was asked to write.
type mockSnapshot struct {
	path    string
	written []*domain.Query
	closed  bool
}

func (s *mockSnapshot) WriteSnapshot(_ context.Context, queries []*domain.Query) error {
	s.written = queries
	return nil
}

func (s *mockSnapshot) Close() error {
	s.closed = true
	return nil
}
