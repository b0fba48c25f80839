package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/kqlstore/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driving"
	"github.com/custodia-labs/kqlstore/internal/core/services"
	"github.com/custodia-labs/kqlstore/internal/core/store"
)

// fakeIngest records the run it was asked to perform.
type fakeIngest struct {
	settings *domain.Settings
	opts     driving.IngestOptions
	report   *driving.IngestReport
	err      error
}

func (f *fakeIngest) Ingest(_ context.Context, opts driving.IngestOptions) (*driving.IngestReport, error) {
	f.opts = opts
	return f.report, f.err
}

// fakeSnapshot records what it was asked to write.
type fakeSnapshot struct {
	written []*domain.Query
	closed  bool
}

func (s *fakeSnapshot) WriteSnapshot(_ context.Context, queries []*domain.Query) error {
	s.written = queries
	return nil
}

func (s *fakeSnapshot) Close() error {
	s.closed = true
	return nil
}

type testApp struct {
	settings  *domain.Settings
	config    *memory.ConfigStore
	ingest    *fakeIngest
	dump      *memory.QueryDump
	snapshots map[string]*fakeSnapshot
	opened    []string
	repoList  []domain.Source
}

func sampleQueries() []*domain.Query {
	return []*domain.Query{
		domain.NewQuery("https://github.com/Azure/Azure-Sentinel/blob/master/Detections/a.yaml", "SigninLogs | where ResultType != 0",
			domain.WithID("q-1"),
			domain.WithName("Failed sign-ins"),
			domain.WithSourceType(domain.SourceTypeSentinelYAML),
			domain.WithAttributes(map[string]any{"tactics": []any{"InitialAccess"}}),
			domain.WithProperties(map[string]any{"tables": []any{"SigninLogs"}, "operators": []any{"where"}}),
		),
		domain.NewQuery("https://github.com/org/repo/blob/main/hunt.md", "AuditLogs | join SigninLogs on UserId",
			domain.WithID("q-2"),
			domain.WithName("Audit join"),
			domain.WithSourceType(domain.SourceTypeMarkdown),
			domain.WithProperties(map[string]any{
				"tables":    []any{"AuditLogs"},
				"operators": []any{"join"},
				"joins":     map[string]any{"inner": []any{"SigninLogs"}},
			}),
		),
	}
}

// setupTestApp installs fake wiring and returns it for inspection.
func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	settings := domain.DefaultSettings()
	settings.Output.Dir = t.TempDir()

	ta := &testApp{
		settings:  &settings,
		config:    memory.NewConfigStore(&settings),
		ingest:    &fakeIngest{report: &driving.IngestReport{Files: 3, Queries: 2, Extracted: 2, OutputPath: "out/kql_query_db.json"}},
		dump:      memory.NewQueryDump(),
		snapshots: map[string]*fakeSnapshot{},
	}

	previous := app
	app = &App{
		OpenConfig: func(string) (driven.ConfigStore, error) { return ta.config, nil },
		NewIngest: func(s *domain.Settings) driving.IngestService {
			ta.ingest.settings = s
			return ta.ingest
		},
		OpenQueries: func(_ context.Context, path string) (driving.QueryService, error) {
			ta.opened = append(ta.opened, path)
			return services.NewQueryService(store.New(sampleQueries()...)), nil
		},
		Dump: ta.dump,
		OpenSnapshot: func(path string) (driven.SnapshotWriter, error) {
			s := &fakeSnapshot{}
			ta.snapshots[path] = s
			return s, nil
		},
		ReadRepoList: func(string) ([]domain.Source, error) { return ta.repoList, nil },
	}
	t.Cleanup(func() { app = previous })
	return ta
}

// resetFlags restores every flag to its default so package level flag
// variables do not leak between command runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// runCommand executes the root command with args and returns its output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}
