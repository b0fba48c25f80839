package normalisers

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
	"github.com/custodia-labs/kqlstore/internal/normalisers/markdown"
	"github.com/custodia-labs/kqlstore/internal/normalisers/plaintext"
	"github.com/custodia-labs/kqlstore/internal/normalisers/sentinel"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// FormatKey is the RawFile metadata key naming a preferred normaliser.
const FormatKey = "format"

// Registry dispatches raw files to normalisers.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry(normalisers ...driven.Normaliser) *Registry {
	r := &Registry{}
	for _, n := range normalisers {
		r.Register(n)
	}
	return r
}

// NewDefaultRegistry creates a registry with the built-in normalisers.
func NewDefaultRegistry() *Registry {
	return NewRegistry(sentinel.New(), markdown.New(), plaintext.New())
}

// Register adds a normaliser, keeping the list in descending priority.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.normalisers = append(r.normalisers, n)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// Normalise parses raw with the normaliser named by its format hint, or
// with the highest priority normaliser for its extension.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawFile) ([]*domain.Query, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	n := r.lookup(raw)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, raw.Path)
	}
	return n.Normalise(ctx, raw)
}

// SupportedExtensions returns the sorted union of registered extensions.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, n := range r.normalisers {
		for _, ext := range n.Extensions() {
			ext = strings.ToLower(ext)
			if !seen[ext] {
				seen[ext] = true
				out = append(out, ext)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(raw *domain.RawFile) driven.Normaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if format, ok := raw.Metadata[FormatKey].(string); ok && format != "" {
		for _, n := range r.normalisers {
			if strings.EqualFold(n.Name(), format) {
				return n
			}
		}
	}

	ext := strings.ToLower(path.Ext(raw.Path))
	if ext == "" {
		return nil
	}
	for _, n := range r.normalisers {
		for _, e := range n.Extensions() {
			if strings.EqualFold(e, ext) {
				return n
			}
		}
	}
	return nil
}
