package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

var exportCmd = &cobra.Command{
	Use:   "export [destination]",
	Short: "Convert the query store to another format",
	Long: `Writes the query store to destination. The format follows the extension:

  .json      indented JSON
  .json.zst  zstd compressed JSON
  .db        SQLite snapshot with a queries table and an index_rows table`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&dbPath, "db", "", "query store dump (default newest in the output folder)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	dest := args[0]
	svc, src, err := openQueries(cmd.Context())
	if err != nil {
		return err
	}
	if app.Dump == nil {
		return errNotConfigured
	}
	res, err := svc.Find(cmd.Context(), nil, domain.FindOptions{})
	if err != nil {
		return err
	}

	switch {
	case strings.HasSuffix(dest, ".db"):
		if app.OpenSnapshot == nil {
			return errNotConfigured
		}
		snap, err := app.OpenSnapshot(dest)
		if err != nil {
			return fmt.Errorf("open snapshot: %w", err)
		}
		if err := snap.WriteSnapshot(cmd.Context(), res.Queries); err != nil {
			_ = snap.Close()
			return fmt.Errorf("write snapshot: %w", err)
		}
		if err := snap.Close(); err != nil {
			return err
		}
	case strings.HasSuffix(dest, ".json"), strings.HasSuffix(dest, ".json.zst"):
		if err := app.Dump.Save(cmd.Context(), dest, res.Queries); err != nil {
			return fmt.Errorf("save %s: %w", dest, err)
		}
	default:
		return fmt.Errorf("%w: unknown export format for %s", domain.ErrUnsupportedType, dest)
	}

	cmd.Printf("Exported %d queries from %s to %s\n", len(res.Queries), src, dest)
	return nil
}
