package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/kqlstore/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
	"github.com/custodia-labs/kqlstore/internal/core/store"
)

// Ensure Snapshot implements the interface.
var _ driven.SnapshotWriter = (*Snapshot)(nil)

// Snapshot is a SQLite database holding query records and one row per
// index entry, for ad hoc SQL over an ingest result.
type Snapshot struct {
	db   *sql.DB
	path string
}

// Open opens or creates the snapshot database at path.
func Open(path string) (*Snapshot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Foreign keys are a per-connection pragma.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Snapshot{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Snapshot) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Snapshot) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Snapshot) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// WriteSnapshot replaces the database contents with queries and their
// index rows in one transaction.
func (s *Snapshot) WriteSnapshot(ctx context.Context, queries []*domain.Query) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM index_rows"); err != nil {
		return fmt.Errorf("clearing index rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM queries"); err != nil {
		return fmt.Errorf("clearing queries: %w", err)
	}

	insertQuery, err := tx.PrepareContext(ctx, `
		INSERT INTO queries (id, position, source_path, query_text, source_type, source_index,
			query_name, attributes, properties, content_hash, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_path = excluded.source_path,
			query_text = excluded.query_text,
			source_type = excluded.source_type,
			source_index = excluded.source_index,
			query_name = excluded.query_name,
			attributes = excluded.attributes,
			properties = excluded.properties,
			content_hash = excluded.content_hash,
			version = excluded.version
	`)
	if err != nil {
		return fmt.Errorf("preparing query insert: %w", err)
	}
	defer insertQuery.Close()

	insertRow, err := tx.PrepareContext(ctx, "INSERT INTO index_rows (field, value, query_id) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing index insert: %w", err)
	}
	defer insertRow.Close()

	for i, q := range queries {
		attrs, err := marshalMap(q.Attributes)
		if err != nil {
			return fmt.Errorf("marshalling attributes of %s: %w", q.ID, err)
		}
		props, err := marshalMap(q.Properties)
		if err != nil {
			return fmt.Errorf("marshalling properties of %s: %w", q.ID, err)
		}

		if _, err := insertQuery.ExecContext(ctx, q.ID, i, q.SourcePath, q.Text, string(q.SourceType),
			q.SourceIndex, q.Name, attrs, props, domain.HashText(q.Text), q.Version); err != nil {
			return fmt.Errorf("inserting query %s: %w", q.ID, err)
		}
	}

	// Rows are written after every query so duplicate ids resolve to the
	// last record before indexing.
	seen := make(map[string]bool, len(queries))
	for i := len(queries) - 1; i >= 0; i-- {
		q := queries[i]
		if seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		for _, field := range store.Fields {
			for _, value := range store.ExtractValues(field, q) {
				if _, err := insertRow.ExecContext(ctx, field.Name, value, q.ID); err != nil {
					return fmt.Errorf("inserting %s row for %s: %w", field.Name, q.ID, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Queries reads every record back in position order.
func (s *Snapshot) Queries(ctx context.Context) ([]*domain.Query, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_path, query_text, source_type, source_index, query_name,
			attributes, properties, content_hash, version
		FROM queries ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []*domain.Query
	for rows.Next() {
		var (
			q            domain.Query
			sourceType   string
			attrs, props string
		)
		if err := rows.Scan(&q.ID, &q.SourcePath, &q.Text, &sourceType, &q.SourceIndex, &q.Name,
			&attrs, &props, &q.ContentHash, &q.Version); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		q.SourceType = domain.SourceType(sourceType)
		if err := json.Unmarshal([]byte(attrs), &q.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshalling attributes of %s: %w", q.ID, err)
		}
		if err := json.Unmarshal([]byte(props), &q.Properties); err != nil {
			return nil, fmt.Errorf("unmarshalling properties of %s: %w", q.ID, err)
		}
		out = append(out, &q)
	}
	return out, rows.Err()
}

// Lookup returns the ids of records whose field index holds value, in
// position order.
func (s *Snapshot) Lookup(ctx context.Context, field, value string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT q.id FROM index_rows r
		JOIN queries q ON q.id = r.query_id
		WHERE r.field = ? AND r.value = ?
		ORDER BY q.position
	`, field, value)
	if err != nil {
		return nil, fmt.Errorf("querying index rows: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IndexRowCount returns the number of index rows for field.
func (s *Snapshot) IndexRowCount(ctx context.Context, field string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM index_rows WHERE field = ?", field).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting index rows: %w", err)
	}
	return n, nil
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
