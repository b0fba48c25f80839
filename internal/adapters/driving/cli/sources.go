package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage query sources",
	Long:  `List the configured query sources or import community repositories.`,
	RunE:  runSourcesList,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	Args:  cobra.NoArgs,
	RunE:  runSourcesList,
}

var sourcesImportCmd = &cobra.Command{
	Use:   "import [repos.yaml]",
	Short: "Import community repositories",
	Long: `Adds the GitHub repositories listed in a YAML file to the configuration.

File format:
  - Github:
      repo: reprise99/Sentinel-Queries
      branch: main`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcesImport,
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove [source-id]",
	Short: "Remove a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesRemove,
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd, sourcesImportCmd, sourcesRemoveCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSourcesList(cmd *cobra.Command, _ []string) error {
	_, settings, err := loadSettings()
	if err != nil {
		return err
	}
	if len(settings.Sources) == 0 {
		cmd.Println("No sources configured.")
		return nil
	}

	cmd.Println("Sources:")
	for _, src := range settings.Sources {
		cmd.Printf("  %s (%s)\n", src.ID, src.Type)
		keys := make([]string, 0, len(src.Config))
		for k := range src.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Printf("      %s: %s\n", k, src.Config[k])
		}
	}
	return nil
}

func runSourcesImport(cmd *cobra.Command, args []string) error {
	store, settings, err := loadSettings()
	if err != nil {
		return err
	}
	if app.ReadRepoList == nil {
		return errNotConfigured
	}

	sources, err := app.ReadRepoList(args[0])
	if err != nil {
		return err
	}
	added := settings.AddSources(sources...)
	if err := store.Save(settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	cmd.Printf("Imported %d of %d repositories into %s\n", added, len(sources), store.Path())
	return nil
}

func runSourcesRemove(cmd *cobra.Command, args []string) error {
	store, settings, err := loadSettings()
	if err != nil {
		return err
	}

	kept := settings.Sources[:0]
	for _, src := range settings.Sources {
		if src.ID != args[0] {
			kept = append(kept, src)
		}
	}
	if len(kept) == len(settings.Sources) {
		return fmt.Errorf("source %s: %w", args[0], domain.ErrNotFound)
	}
	settings.Sources = kept
	if err := store.Save(settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	cmd.Printf("Removed source %s\n", args[0])
	return nil
}
