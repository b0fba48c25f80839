package driven

import (
	"context"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// NormaliserRegistry selects the appropriate normaliser for a file.
// It maintains a priority-ordered list of normalisers and dispatches on
// file extension, or on the source's "format" hint when one is set.
type NormaliserRegistry interface {
	// Normalise parses a raw file using the best matching normaliser.
	// Returns ErrUnsupportedType when no normaliser handles the file.
	Normalise(ctx context.Context, raw *domain.RawFile) ([]*domain.Query, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedExtensions returns all file extensions that can be normalised.
	SupportedExtensions() []string
}
