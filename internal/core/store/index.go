package store

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// Index is an inverted index for one declared field.
//
// Postings map each value to a bitmap of record ordinals. The forward
// map keeps every row a record contributed, duplicates included, so a
// record's contributions can be removed when it is overwritten.
type Index struct {
	field    Field
	postings map[string]*roaring.Bitmap
	rows     map[uint32][]string
	size     int
}

// NewIndex creates an empty index for field.
func NewIndex(field Field) *Index {
	return &Index{
		field:    field,
		postings: make(map[string]*roaring.Bitmap),
		rows:     make(map[uint32][]string),
	}
}

// BuildIndex builds the index for field over queries in a single pass.
// The position of each query in the slice is its ordinal.
func BuildIndex(field Field, queries []*domain.Query) *Index {
	idx := NewIndex(field)
	for i, q := range queries {
		idx.Add(uint32(i), ExtractValues(field, q))
	}
	return idx
}

// Field returns the declared field this index covers.
func (idx *Index) Field() Field {
	return idx.field
}

// Add appends one row per value for the record at ord.
func (idx *Index) Add(ord uint32, values []string) {
	if len(values) == 0 {
		return
	}
	for _, v := range values {
		bm, ok := idx.postings[v]
		if !ok {
			bm = roaring.New()
			idx.postings[v] = bm
		}
		bm.Add(ord)
	}
	idx.rows[ord] = append(idx.rows[ord], values...)
	idx.size += len(values)
}

// Remove drops every row contributed by the record at ord.
func (idx *Index) Remove(ord uint32) {
	values, ok := idx.rows[ord]
	if !ok {
		return
	}
	for _, v := range values {
		bm, ok := idx.postings[v]
		if !ok {
			continue
		}
		bm.Remove(ord)
		if bm.IsEmpty() {
			delete(idx.postings, v)
		}
	}
	idx.size -= len(values)
	delete(idx.rows, ord)
}

// Lookup returns a copy of the ordinals holding value.
func (idx *Index) Lookup(value string) *roaring.Bitmap {
	if bm, ok := idx.postings[value]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

// Union returns the ordinals holding at least one of values.
func (idx *Index) Union(values []string) *roaring.Bitmap {
	out := roaring.New()
	for _, v := range values {
		if bm, ok := idx.postings[v]; ok {
			out.Or(bm)
		}
	}
	return out
}

// Values returns the distinct indexed values in sorted order.
func (idx *Index) Values() []string {
	out := make([]string, 0, len(idx.postings))
	for v := range idx.postings {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Rows returns the values contributed by the record at ord, in insertion order.
func (idx *Index) Rows(ord uint32) []string {
	return append([]string(nil), idx.rows[ord]...)
}

// Len returns the number of index rows, counting duplicates.
func (idx *Index) Len() int {
	return idx.size
}

// IsEmpty reports whether no value is indexed.
func (idx *Index) IsEmpty() bool {
	return len(idx.postings) == 0
}
