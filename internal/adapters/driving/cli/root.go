package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driving"
	"github.com/custodia-labs/kqlstore/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=".
var version = "dev"

var (
	configDir string
	verbose   bool
	quiet     bool
)

// App holds the constructors the commands need. It is assembled in
// cmd/kqlstore so the CLI depends only on ports.
type App struct {
	// OpenConfig opens the settings store in dir. Empty means the default.
	OpenConfig func(dir string) (driven.ConfigStore, error)

	// NewIngest builds an ingest service for settings.
	NewIngest func(settings *domain.Settings) driving.IngestService

	// OpenQueries loads a query store dump and returns a service over it.
	OpenQueries func(ctx context.Context, path string) (driving.QueryService, error)

	// Dump reads and writes query store dumps.
	Dump driven.QueryDump

	// OpenSnapshot opens a SQLite snapshot for writing.
	OpenSnapshot func(path string) (driven.SnapshotWriter, error)

	// ReadRepoList parses a community repo list file into sources.
	ReadRepoList func(path string) ([]domain.Source, error)
}

var app *App

var errNotConfigured = errors.New("application not configured")

var rootCmd = &cobra.Command{
	Use:   "kqlstore",
	Short: "Collect, index and filter KQL hunting queries",
	Long: `kqlstore downloads KQL queries from Sentinel and community repositories,
extracts the tables, operators, functions and joins each query uses, and
indexes them for filtering by those properties and by MITRE tactic or technique.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
		logger.SetQuiet(quiet)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.kqlstore)")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// Execute runs the root command with the given application wiring.
func Execute(a *App) error {
	return ExecuteContext(context.Background(), a)
}

// ExecuteContext is Execute with a context that commands observe for
// cancellation.
func ExecuteContext(ctx context.Context, a *App) error {
	app = a
	return rootCmd.ExecuteContext(ctx)
}

// loadSettings reads settings from the configured directory.
func loadSettings() (driven.ConfigStore, *domain.Settings, error) {
	if app == nil || app.OpenConfig == nil {
		return nil, nil, errNotConfigured
	}
	store, err := app.OpenConfig(configDir)
	if err != nil {
		return nil, nil, err
	}
	settings, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	return store, settings, nil
}
