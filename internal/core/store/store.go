package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// Store is the in-memory indexed collection of query records.
//
// Records are kept in insertion order and addressed internally by a
// dense ordinal which the inverted indexes reference. Reads may run
// concurrently. Writes (Add, AddProperties) must be serialised by the
// caller.
type Store struct {
	mu       sync.RWMutex
	queries  []*domain.Query
	ordinals map[string]uint32
	indexes  map[string]*Index
}

// New creates a store holding queries. All declared indexes are built
// in one pass over the initial content. Later records overwrite earlier
// ones with the same id.
func New(queries ...*domain.Query) *Store {
	s := &Store{
		ordinals: make(map[string]uint32, len(queries)),
		indexes:  make(map[string]*Index, len(Fields)),
	}
	for _, q := range queries {
		if q == nil {
			continue
		}
		q = q.Clone()
		if ord, ok := s.ordinals[q.ID]; ok {
			s.queries[ord] = q
			continue
		}
		s.ordinals[q.ID] = uint32(len(s.queries))
		s.queries = append(s.queries, q)
	}
	for _, f := range Fields {
		s.indexes[f.Name] = BuildIndex(f, s.queries)
	}
	return s
}

// Add merges queries into the store. A query whose id is already present
// replaces the stored record and its index contributions. Only the added
// records are scanned.
func (s *Store) Add(queries ...*domain.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range queries {
		if q == nil {
			continue
		}
		q = q.Clone()
		ord, exists := s.ordinals[q.ID]
		if exists {
			for _, idx := range s.indexes {
				idx.Remove(ord)
			}
			s.queries[ord] = q
		} else {
			ord = uint32(len(s.queries))
			s.ordinals[q.ID] = ord
			s.queries = append(s.queries, q)
		}
		for _, idx := range s.indexes {
			idx.Add(ord, ExtractValues(idx.Field(), q))
		}
	}
}

// AddProperties merges extractor properties into the record with the
// given id and indexes the passed values. Keys are folded to lower case.
//
// Index rows are appended, never replaced: calling it twice with
// overlapping values leaves duplicate rows for this record.
func (s *Store) AddProperties(id string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.ordinals[id]
	if !ok {
		return fmt.Errorf("add properties %s: %w", id, domain.ErrNotFound)
	}
	s.queries[ord].MergeProperties(props)

	delta := &domain.Query{Properties: make(map[string]any, len(props))}
	delta.MergeProperties(props)
	for _, f := range Fields {
		if f.Scope != ScopeProperties {
			continue
		}
		if _, ok := delta.Properties[f.Name]; !ok {
			continue
		}
		s.indexes[f.Name].Add(ord, ExtractValues(f, delta))
	}
	return nil
}

// FilterOptions returns the sorted distinct values of every non-empty
// index, optionally restricted to categories. Unknown categories are
// ignored.
func (s *Store) FilterOptions(categories ...string) map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(categories))
	for _, c := range categories {
		want[strings.ToLower(c)] = true
	}

	out := make(map[string][]string)
	for _, f := range Fields {
		if len(want) > 0 && !want[f.Name] {
			continue
		}
		idx := s.indexes[f.Name]
		if idx.IsEmpty() {
			continue
		}
		out[f.Name] = idx.Values()
	}
	return out
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (*domain.Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ord, ok := s.ordinals[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, domain.ErrNotFound)
	}
	return s.queries[ord].Clone(), nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queries)
}

// Queries returns copies of all records in insertion order.
func (s *Store) Queries() []*domain.Query {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Query, len(s.queries))
	for i, q := range s.queries {
		out[i] = q.Clone()
	}
	return out
}

// IDs returns all record ids in insertion order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.queries))
	for i, q := range s.queries {
		out[i] = q.ID
	}
	return out
}

// IndexSnapshot returns value -> record ids for one index field, with ids
// in insertion order. Unknown fields yield nil.
func (s *Store) IndexSnapshot(field string) map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := LookupField(field)
	if !ok {
		return nil
	}
	idx := s.indexes[f.Name]
	out := make(map[string][]string, len(idx.postings))
	for v, bm := range idx.postings {
		ids := make([]string, 0, bm.GetCardinality())
		it := bm.Iterator()
		for it.HasNext() {
			ids = append(ids, s.queries[it.Next()].ID)
		}
		out[v] = ids
	}
	return out
}

// IndexLen returns the number of rows in an index, counting duplicates.
// Unknown fields yield 0.
func (s *Store) IndexLen(field string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := LookupField(field)
	if !ok {
		return 0
	}
	return s.indexes[f.Name].Len()
}
