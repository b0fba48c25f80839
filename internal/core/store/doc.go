// Package store holds KQL query records in memory and answers
// conjunctive filter queries over them.
//
// Collection-valued fields (tactics, techniques, tables, operators,
// function calls, joins) are kept in inverted indexes backed by roaring
// bitmaps of record ordinals. Indexes are maintained incrementally as
// records are added or enriched with extractor properties; no mutation
// rescans the whole collection.
//
// # Architectural Position
//
// Store is part of the core. It depends only on domain and is used by
// the services layer and the driving adapters through it.
package store
