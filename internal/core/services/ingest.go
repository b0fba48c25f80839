package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driving"
	"github.com/custodia-labs/kqlstore/internal/core/store"
	"github.com/custodia-labs/kqlstore/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// OutputBase is the file name stem of ingest outputs.
const OutputBase = "kql_query_db"

// TimestampLayout formats the UTC timestamp added to output names.
const TimestampLayout = "2006-01-02-15-04-05"

// SnapshotOpener opens a snapshot database at path.
type SnapshotOpener func(path string) (driven.SnapshotWriter, error)

// IngestOption configures optional IngestService collaborators.
type IngestOption func(*IngestService)

// WithExtractor sets the property extractor. Without one, ingest behaves
// as if SkipExtraction were always set.
func WithExtractor(e driven.Extractor) IngestOption {
	return func(s *IngestService) { s.extractor = e }
}

// WithSnapshot enables SQLite snapshots when settings ask for them.
func WithSnapshot(open SnapshotOpener) IngestOption {
	return func(s *IngestService) { s.openSnapshot = open }
}

// WithClock replaces the time source used for output names and durations.
func WithClock(now func() time.Time) IngestOption {
	return func(s *IngestService) { s.now = now }
}

// IngestService fetches files from every configured source, normalises
// them into query records, extracts KQL properties and writes the store.
type IngestService struct {
	settings     *domain.Settings
	factory      driven.ConnectorFactory
	registry     driven.NormaliserRegistry
	dump         driven.QueryDump
	extractor    driven.Extractor
	openSnapshot SnapshotOpener
	now          func() time.Time

	mu   sync.RWMutex
	last *store.Store
}

// NewIngestService creates an ingest service.
func NewIngestService(
	settings *domain.Settings,
	factory driven.ConnectorFactory,
	registry driven.NormaliserRegistry,
	dump driven.QueryDump,
	opts ...IngestOption,
) *IngestService {
	s := &IngestService{
		settings: settings,
		factory:  factory,
		registry: registry,
		dump:     dump,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the store built by the last successful run, or nil.
func (s *IngestService) Store() *store.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Ingest runs the full pipeline.
//
//nolint:gocyclo // Pipeline orchestration with sequential steps
func (s *IngestService) Ingest(ctx context.Context, opts driving.IngestOptions) (*driving.IngestReport, error) {
	started := s.now()
	report := &driving.IngestReport{}

	sources, err := s.selectSources(opts.SourceIDs)
	if err != nil {
		return nil, err
	}

	// 1. FETCH AND NORMALISE
	logger.Section("Fetching queries")
	st := store.New()
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, queries, failures, err := s.ingestSource(ctx, src)
		report.Files += files
		report.Errors += failures
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			report.Errors++
			logger.Error("Failed to fetch queries from %s: %v", src.ID, err)
		}
		st.Add(queries...)
		logger.Info("Source %s: %d files, %d queries", src.ID, files, len(queries))
	}
	logger.Info("Adding %d queries to store.", st.Len())

	out := s.settings.Output
	if err := os.MkdirAll(out.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output folder %s: %w", out.Dir, err)
	}
	stamp := ""
	if out.Timestamp {
		stamp = started.UTC().Format(TimestampLayout)
	}

	if out.SaveStages {
		report.StagePath = OutputPath(out.Dir, stamp, "p1.json", out.Compress)
		if err := s.dump.Save(ctx, report.StagePath, st.Queries()); err != nil {
			return nil, fmt.Errorf("save stage: %w", err)
		}
		logger.Debug("Wrote stage dump to %s", report.StagePath)
	}

	// 2. EXTRACT PROPERTIES
	if !opts.SkipExtraction && s.extractor != nil {
		logger.Section("Extracting properties")
		if err := s.extract(ctx, st, report, opts.Progress); err != nil {
			return nil, err
		}
		logger.Info("Finished getting KQL properties for %d kql queries.", st.Len())
	}

	// 3. WRITE OUTPUTS
	report.Queries = st.Len()
	report.OutputPath = OutputPath(out.Dir, stamp, "json", out.Compress)
	if err := s.dump.Save(ctx, report.OutputPath, st.Queries()); err != nil {
		return nil, fmt.Errorf("save store: %w", err)
	}
	logger.Info("Writing JSON output to %s", report.OutputPath)

	if out.SQLite && s.openSnapshot != nil {
		report.SnapshotPath = OutputPath(out.Dir, stamp, "db", false)
		if err := s.writeSnapshot(ctx, report.SnapshotPath, st.Queries()); err != nil {
			return nil, err
		}
		logger.Info("Writing SQLite snapshot to %s", report.SnapshotPath)
	}

	s.mu.Lock()
	s.last = st
	s.mu.Unlock()

	report.Duration = s.now().Sub(started)
	return report, nil
}

// OutputPath builds dir/kql_query_db[-stamp].ext, with a .zst suffix for
// compressed JSON.
func OutputPath(dir, stamp, ext string, compress bool) string {
	name := OutputBase
	if stamp != "" {
		name += "-" + stamp
	}
	name += "." + ext
	if compress && strings.HasSuffix(ext, "json") {
		name += ".zst"
	}
	return filepath.Join(dir, name)
}

func (s *IngestService) selectSources(ids []string) ([]domain.Source, error) {
	if len(ids) == 0 {
		return s.settings.Sources, nil
	}
	byID := make(map[string]domain.Source, len(s.settings.Sources))
	for _, src := range s.settings.Sources {
		byID[src.ID] = src
	}
	out := make([]domain.Source, 0, len(ids))
	for _, id := range ids {
		src, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("source %s: %w", id, domain.ErrNotFound)
		}
		out = append(out, src)
	}
	return out, nil
}

// ingestSource syncs one source. failures counts files that could not be
// normalised; err is a connector failure that ended the sync early.
func (s *IngestService) ingestSource(ctx context.Context, src domain.Source) (files int, queries []*domain.Query, failures int, err error) {
	connector, err := s.factory.Create(ctx, src)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("create connector: %w", err)
	}
	defer connector.Close()

	if connector.Capabilities().SupportsValidation {
		if err := connector.Validate(ctx); err != nil {
			return 0, nil, 0, err
		}
	}

	filesCh, errsCh := connector.FullSync(ctx)
	var syncErr error
	for filesCh != nil || errsCh != nil {
		select {
		case <-ctx.Done():
			return files, queries, failures, ctx.Err()

		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			if err != nil {
				syncErr = err
			}

		case raw, ok := <-filesCh:
			if !ok {
				filesCh = nil
				continue
			}
			files++
			parsed, err := s.registry.Normalise(ctx, &raw)
			if err != nil {
				if errors.Is(err, domain.ErrUnsupportedType) {
					logger.Debug("Skipping %s: %v", raw.Path, err)
					continue
				}
				failures++
				logger.Warn("Failed to parse %s: %v", raw.Location(), err)
				continue
			}
			queries = append(queries, parsed...)
		}
	}
	return files, queries, failures, syncErr
}

type extraction struct {
	id    string
	path  string
	props map[string]any
}

// extract submits every record to the extractor with bounded concurrency
// and merges results from a single writer goroutine.
func (s *IngestService) extract(ctx context.Context, st *store.Store, report *driving.IngestReport, progress func(done, total int)) error {
	if lc, ok := s.extractor.(driven.ExtractorLifecycle); ok {
		lc.Start()
		defer lc.Stop()
	}

	queries := st.Queries()
	total := len(queries)
	results := make(chan extraction)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.Extractor.Concurrency)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		done := 0
		for res := range results {
			done++
			switch {
			case len(res.props) == 0:
				report.Unparsed++
				logger.Debug("No KQL properties for query %s (%s)", res.id, res.path)
			case res.props["valid_query"] == false:
				report.Invalid++
				logger.Error("Invalid KQL for query %s (%s)", res.id, res.path)
			default:
				report.Extracted++
			}
			if err := st.AddProperties(res.id, res.props); err != nil {
				logger.Warn("Failed to update kql properties for query %s: %v", res.id, err)
			}
			if progress != nil {
				progress(done, total)
			}
		}
	}()

	for _, q := range queries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			props := s.extractor.Submit(gctx, q.Text, q.ID)
			select {
			case results <- extraction{id: q.ID, path: q.SourcePath, props: props}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	err := g.Wait()
	close(results)
	<-writerDone
	if err != nil {
		return fmt.Errorf("extract properties: %w", err)
	}
	return ctx.Err()
}

func (s *IngestService) writeSnapshot(ctx context.Context, path string, queries []*domain.Query) error {
	snap, err := s.openSnapshot(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	if err := snap.WriteSnapshot(ctx, queries); err != nil {
		_ = snap.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	return snap.Close()
}
