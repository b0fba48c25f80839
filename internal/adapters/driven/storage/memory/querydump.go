package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
)

// Ensure QueryDump implements the interface.
var _ driven.QueryDump = (*QueryDump)(nil)

// QueryDump is an in-memory implementation of driven.QueryDump keyed by
// path.
type QueryDump struct {
	mu    sync.RWMutex
	dumps map[string][]*domain.Query
}

// NewQueryDump creates an empty in-memory dump.
func NewQueryDump() *QueryDump {
	return &QueryDump{
		dumps: make(map[string][]*domain.Query),
	}
}

// Save stores queries under path, replacing any previous dump.
func (d *QueryDump) Save(ctx context.Context, path string, queries []*domain.Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dumps[path] = slices.Clone(queries)
	return nil
}

// Load returns the queries stored under path.
func (d *QueryDump) Load(ctx context.Context, path string) ([]*domain.Query, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	queries, ok := d.dumps[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return slices.Clone(queries), nil
}

// Paths returns the stored paths in sorted order.
func (d *QueryDump) Paths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	paths := make([]string, 0, len(d.dumps))
	for p := range d.dumps {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
