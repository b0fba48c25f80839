package plaintext

import (
	"context"
	"path"
	"strings"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser treats a whole file as one query.
type Normaliser struct{}

// New creates a new plaintext normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Name returns the format name.
func (n *Normaliser) Name() string {
	return "text"
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".kql", ".txt"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 10
}

// Normalise returns the file content as a single text query named after
// the file stem. Blank files yield nothing.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawFile) ([]*domain.Query, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	text := string(raw.Content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	base := path.Base(raw.Path)
	q := domain.NewQuery(raw.Location(), text,
		domain.WithName(strings.TrimSuffix(base, path.Ext(base))),
		domain.WithSourceType(domain.SourceTypeText),
	)
	return []*domain.Query{q}, nil
}
