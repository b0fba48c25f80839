// Command kqlstore collects KQL queries, extracts their properties and
// serves filter queries over the resulting store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/kqlstore/internal/adapters/driven/config/file"
	"github.com/custodia-labs/kqlstore/internal/adapters/driven/extraction"
	"github.com/custodia-labs/kqlstore/internal/adapters/driven/storage/jsonfile"
	"github.com/custodia-labs/kqlstore/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/kqlstore/internal/adapters/driving/cli"
	"github.com/custodia-labs/kqlstore/internal/connectors"
	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driving"
	"github.com/custodia-labs/kqlstore/internal/core/services"
	"github.com/custodia-labs/kqlstore/internal/normalisers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.ExecuteContext(ctx, newApp()); err != nil {
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	dump := jsonfile.New()

	return &cli.App{
		OpenConfig: func(dir string) (driven.ConfigStore, error) {
			store, err := file.NewConfigStore(dir)
			if err != nil {
				return nil, err
			}
			return store, nil
		},
		NewIngest: func(settings *domain.Settings) driving.IngestService {
			gateway := extraction.New(extraction.Config{
				Command: settings.Extractor.Command,
				Dir:     settings.Extractor.Dir,
				Timeout: settings.Extractor.Timeout,
			})
			return services.NewIngestService(
				settings,
				connectors.NewFactory(settings.GitHub),
				normalisers.NewDefaultRegistry(),
				dump,
				services.WithExtractor(gateway),
				services.WithSnapshot(openSnapshot),
			)
		},
		OpenQueries: func(ctx context.Context, path string) (driving.QueryService, error) {
			svc, err := services.LoadQueryService(ctx, dump, path)
			if err != nil {
				return nil, err
			}
			return svc, nil
		},
		Dump:         dump,
		OpenSnapshot: openSnapshot,
		ReadRepoList: file.ReadRepoListFile,
	}
}

func openSnapshot(path string) (driven.SnapshotWriter, error) {
	snap, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	return snap, nil
}
