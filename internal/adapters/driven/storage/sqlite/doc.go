// Package sqlite exports query collections to a SQLite database file.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. A snapshot holds two tables:
//
//   - queries: one row per record, with attributes and properties as JSON
//   - index_rows: one (field, value, query_id) row per inverted index entry
//
// # Schema
//
// The schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files; applied versions are recorded in schema_migrations.
//
// # Example
//
//	SELECT q.query_name FROM index_rows r JOIN queries q ON q.id = r.query_id
//	WHERE r.field = 'tactics' AND r.value = 'InitialAccess';
package sqlite
