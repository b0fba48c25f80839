// Package domain defines the core business entities for kqlstore.
//
// This package is part of the hexagonal architecture's innermost layer.
// It defines the fundamental types:
//
//   - Query: One ingested KQL query with attributes and extracted properties
//   - Criteria: An ordered conjunction of per-field predicates
//   - Source: A configured origin of query files
//   - RawFile: Opaque bytes from a connector
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. Apart from the standard library
// it only imports github.com/google/uuid for id generation. All other
// packages depend on domain, never the reverse.
package domain
