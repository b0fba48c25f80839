package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// NewFromJSON builds a store from a JSON array of query records.
// Malformed input, including a null document or a null record, fails
// with domain.ErrMalformedInput and no store.
func NewFromJSON(data []byte) (*Store, error) {
	var queries []*domain.Query
	if err := json.Unmarshal(data, &queries); err != nil {
		if errors.Is(err, domain.ErrMalformedInput) {
			return nil, fmt.Errorf("decode store: %w", err)
		}
		return nil, fmt.Errorf("decode store: %w: %w", domain.ErrMalformedInput, err)
	}
	if err := checkRecords(queries); err != nil {
		return nil, fmt.Errorf("decode store: %w", err)
	}
	return New(queries...), nil
}

// checkRecords rejects a null document and null array elements. An
// empty array decodes to a non-nil slice and is accepted.
func checkRecords(queries []*domain.Query) error {
	if queries == nil {
		return fmt.Errorf("%w: expected a JSON array of records", domain.ErrMalformedInput)
	}
	for i, q := range queries {
		if q == nil {
			return fmt.Errorf("%w: record %d is null", domain.ErrMalformedInput, i)
		}
	}
	return nil
}

// ToJSON encodes all records as a JSON array in insertion order.
func (s *Store) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queries := s.queries
	if queries == nil {
		queries = []*domain.Query{}
	}
	data, err := json.Marshal(queries)
	if err != nil {
		return nil, fmt.Errorf("encode store: %w", err)
	}
	return data, nil
}
