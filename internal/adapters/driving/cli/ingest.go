package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driving"
)

var (
	ingestSources        []string
	ingestOut            string
	ingestTimestamp      bool
	ingestSaveStages     bool
	ingestSkipExtraction bool
	ingestSQLite         bool
	ingestCompress       bool
	ingestTimeout        time.Duration
	ingestConcurrency    int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Download queries and build the query store",
	Long: `Fetches query files from every configured source, parses Sentinel YAML,
markdown and plain KQL files into query records, extracts KQL properties with
the external extractor and writes the store to the output folder.

Output files are named kql_query_db[-YYYY-MM-DD-HH-MM-SS].json, with a .zst
suffix when --compress is set.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVarP(&ingestSources, "source", "s", nil, "only ingest these source ids")
	ingestCmd.Flags().StringVarP(&ingestOut, "out", "o", "", "output folder")
	ingestCmd.Flags().BoolVarP(&ingestTimestamp, "timestamp", "t", false, "add a UTC timestamp to output file names")
	ingestCmd.Flags().BoolVar(&ingestSaveStages, "save-stages", false, "also write the store before extraction")
	ingestCmd.Flags().BoolVar(&ingestSkipExtraction, "skip-extraction", false, "do not run the KQL extractor")
	ingestCmd.Flags().BoolVar(&ingestSQLite, "sqlite", false, "also export a SQLite snapshot")
	ingestCmd.Flags().BoolVar(&ingestCompress, "compress", false, "write zstd compressed JSON")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "extractor-timeout", 0, "per-query extractor timeout")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "queries submitted to the extractor at once")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	_, settings, err := loadSettings()
	if err != nil {
		return err
	}
	if app.NewIngest == nil {
		return errNotConfigured
	}
	applyIngestFlags(cmd, settings)

	opts := driving.IngestOptions{
		SourceIDs:      ingestSources,
		SkipExtraction: ingestSkipExtraction,
	}
	if isTerminal(cmd.ErrOrStderr()) {
		opts.Progress = progressPrinter(cmd.ErrOrStderr())
	}

	report, err := app.NewIngest(settings).Ingest(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	printReport(cmd, report)
	return nil
}

// applyIngestFlags overrides settings with flags given on the command line.
func applyIngestFlags(cmd *cobra.Command, settings *domain.Settings) {
	flags := cmd.Flags()
	if flags.Changed("out") {
		settings.Output.Dir = ingestOut
	}
	if flags.Changed("timestamp") {
		settings.Output.Timestamp = ingestTimestamp
	}
	if flags.Changed("save-stages") {
		settings.Output.SaveStages = ingestSaveStages
	}
	if flags.Changed("sqlite") {
		settings.Output.SQLite = ingestSQLite
	}
	if flags.Changed("compress") {
		settings.Output.Compress = ingestCompress
	}
	if flags.Changed("extractor-timeout") && ingestTimeout > 0 {
		settings.Extractor.Timeout = ingestTimeout
	}
	if flags.Changed("concurrency") && ingestConcurrency > 0 {
		settings.Extractor.Concurrency = ingestConcurrency
	}
}

func printReport(cmd *cobra.Command, r *driving.IngestReport) {
	cmd.Printf("Ingested %d queries from %d files in %s\n", r.Queries, r.Files, r.Duration.Round(time.Millisecond))
	cmd.Printf("  Extracted: %d\n", r.Extracted)
	if r.Invalid > 0 {
		cmd.Printf("  Invalid:   %d\n", r.Invalid)
	}
	if r.Unparsed > 0 {
		cmd.Printf("  Unparsed:  %d\n", r.Unparsed)
	}
	if r.Errors > 0 {
		cmd.Printf("  Errors:    %d\n", r.Errors)
	}
	cmd.Printf("Store:    %s\n", r.OutputPath)
	if r.StagePath != "" {
		cmd.Printf("Stage:    %s\n", r.StagePath)
	}
	if r.SnapshotPath != "" {
		cmd.Printf("Snapshot: %s\n", r.SnapshotPath)
	}
}

// progressPrinter redraws a single progress line on w.
func progressPrinter(w io.Writer) func(done, total int) {
	return func(done, total int) {
		fmt.Fprintf(w, "\rExtracting properties %d/%d", done, total)
		if done == total {
			fmt.Fprintln(w)
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
