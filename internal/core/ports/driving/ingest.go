package driving

import (
	"context"
	"time"
)

// IngestService fetches queries from configured sources, extracts their
// properties and writes the resulting store.
type IngestService interface {
	// Ingest runs the full pipeline.
	Ingest(ctx context.Context, opts IngestOptions) (*IngestReport, error)
}

// IngestOptions controls a single ingest run.
type IngestOptions struct {
	// SourceIDs restricts the run to these sources. Empty means all.
	SourceIDs []string

	// SkipExtraction loads and stores queries without calling the extractor.
	SkipExtraction bool

	// Progress, when set, is called after each query is extracted.
	Progress func(done, total int)
}

// IngestReport summarises an ingest run.
type IngestReport struct {
	// Files is the number of files fetched.
	Files int

	// Queries is the number of records in the resulting store.
	Queries int

	// Extracted is the number of queries that received properties.
	Extracted int

	// Invalid is the number of queries the extractor rejected.
	Invalid int

	// Unparsed is the number of queries with no extractor response.
	Unparsed int

	// Errors is the number of files or sources that failed.
	Errors int

	// OutputPath is the JSON dump written, if any.
	OutputPath string

	// StagePath is the pre-extraction dump written, if any.
	StagePath string

	// SnapshotPath is the SQLite snapshot written, if any.
	SnapshotPath string

	// Duration is the wall time of the run.
	Duration time.Duration
}
