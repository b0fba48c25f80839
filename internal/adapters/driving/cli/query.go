package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

var (
	findTables        []string
	findOperators     []string
	findFunctions     []string
	findJoins         []string
	findTactics       []string
	findTechniques    []string
	findWhere         []string
	findContains      []string
	findMatches       []string
	findCaseSensitive bool
	findLimit         int
	findOffset        int
	outputJSON        bool
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Find queries by their properties",
	Long: `Finds queries matching every given criterion. List flags match queries
holding at least one of the values.

Examples:
  kqlstore find --table SigninLogs --table AADSignInEventsBeta
  kqlstore find --tactic InitialAccess --operator join
  kqlstore find --contains query_name=password --json
  kqlstore find --matches source_path='.*/Hunting Queries/.*'
  kqlstore find --where source_type=sentinel_yaml --limit 5`,
	Args: cobra.NoArgs,
	RunE: runFind,
}

var filtersCmd = &cobra.Command{
	Use:   "filters [category...]",
	Short: "List the values available for filtering",
	Long: `Lists the distinct values of each indexed field: tactics, techniques,
tables, operators, functioncalls and joins.`,
	RunE: runFilters,
}

var showCmd = &cobra.Command{
	Use:   "show [query-id]",
	Short: "Show one query",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the query store",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	for _, c := range []*cobra.Command{findCmd, filtersCmd, showCmd, statsCmd} {
		c.Flags().StringVar(&dbPath, "db", "", "query store dump (default newest in the output folder)")
		c.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
		rootCmd.AddCommand(c)
	}

	flags := findCmd.Flags()
	flags.StringSliceVar(&findTables, "table", nil, "referenced table")
	flags.StringSliceVar(&findOperators, "operator", nil, "KQL operator")
	flags.StringSliceVar(&findFunctions, "function", nil, "function call")
	flags.StringSliceVar(&findJoins, "join", nil, "joined table")
	flags.StringSliceVar(&findTactics, "tactic", nil, "MITRE tactic")
	flags.StringSliceVar(&findTechniques, "technique", nil, "MITRE technique")
	flags.StringArrayVar(&findWhere, "where", nil, "field=value equality on a record field")
	flags.StringArrayVar(&findContains, "contains", nil, "field=text substring match")
	flags.StringArrayVar(&findMatches, "matches", nil, "field=regex match anchored at the start")
	flags.BoolVar(&findCaseSensitive, "case-sensitive", false, "case sensitive pattern matches")
	flags.IntVarP(&findLimit, "limit", "n", 20, "maximum number of results (0 = all)")
	flags.IntVar(&findOffset, "offset", 0, "number of matches to skip")
}

// buildCriteria assembles the criteria named by the find flags.
func buildCriteria() (domain.Criteria, error) {
	var c domain.Criteria
	lists := []struct {
		field  string
		values []string
	}{
		{"tables", findTables},
		{"operators", findOperators},
		{"functioncalls", findFunctions},
		{"joins", findJoins},
		{"tactics", findTactics},
		{"techniques", findTechniques},
	}
	for _, l := range lists {
		if len(l.values) > 0 {
			c = c.Where(l.field, domain.AnyOf(l.values...))
		}
	}

	pairs := []struct {
		flag   string
		values []string
		build  func(string) domain.Predicate
	}{
		{"where", findWhere, func(v string) domain.Predicate { return domain.Equals(v) }},
		{"contains", findContains, func(v string) domain.Predicate { return domain.Match(domain.OpContains, v) }},
		{"matches", findMatches, func(v string) domain.Predicate { return domain.Match(domain.OpMatches, v) }},
	}
	for _, p := range pairs {
		for _, raw := range p.values {
			field, value, ok := strings.Cut(raw, "=")
			if !ok || field == "" {
				return nil, fmt.Errorf("--%s %q: expected field=value", p.flag, raw)
			}
			c = c.Where(field, p.build(value))
		}
	}
	return c, nil
}

func runFind(cmd *cobra.Command, _ []string) error {
	criteria, err := buildCriteria()
	if err != nil {
		return err
	}
	svc, _, err := openQueries(cmd.Context())
	if err != nil {
		return err
	}

	res, err := svc.Find(cmd.Context(), criteria, domain.FindOptions{
		CaseSensitive: findCaseSensitive,
		Limit:         findLimit,
		Offset:        findOffset,
	})
	if err != nil {
		return fmt.Errorf("find failed: %w", err)
	}

	if outputJSON {
		return printJSON(cmd, res.Queries)
	}

	if len(res.Queries) == 0 {
		cmd.Println("No queries found.")
		return nil
	}
	cmd.Printf("Showing %d of %d queries:\n\n", len(res.Queries), res.Total)
	for i, q := range res.Queries {
		cmd.Printf("  [%d] %s\n", findOffset+i+1, q.Name)
		cmd.Printf("      ID:     %s\n", q.ID)
		cmd.Printf("      Source: %s\n", q.SourcePath)
		if tables := listProperty(q.Properties["tables"]); tables != "" {
			cmd.Printf("      Tables: %s\n", tables)
		}
		cmd.Println()
	}
	return nil
}

func runFilters(cmd *cobra.Command, args []string) error {
	svc, _, err := openQueries(cmd.Context())
	if err != nil {
		return err
	}
	options, err := svc.FilterOptions(cmd.Context(), args...)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(cmd, options)
	}

	fields := make([]string, 0, len(options))
	for f := range options {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		cmd.Printf("%s (%d):\n", f, len(options[f]))
		for _, v := range options[f] {
			cmd.Printf("  %s\n", v)
		}
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	svc, _, err := openQueries(cmd.Context())
	if err != nil {
		return err
	}
	q, err := svc.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query %s: %w", args[0], err)
	}

	if outputJSON {
		return printJSON(cmd, q)
	}

	cmd.Printf("Query:  %s\n", q.Name)
	cmd.Printf("ID:     %s\n", q.ID)
	cmd.Printf("Source: %s\n", q.SourcePath)
	cmd.Printf("Type:   %s\n", q.SourceType)
	for _, key := range []string{"tactics", "techniques"} {
		if v := listProperty(q.Attributes[key]); v != "" {
			cmd.Printf("  %-14s %s\n", key, v)
		}
	}
	for _, key := range []string{"tables", "operators", "functioncalls"} {
		if v := listProperty(q.Properties[key]); v != "" {
			cmd.Printf("  %-14s %s\n", key, v)
		}
	}
	cmd.Println()
	cmd.Println(q.Text)
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	svc, path, err := openQueries(cmd.Context())
	if err != nil {
		return err
	}
	stats, err := svc.Stats(cmd.Context())
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(cmd, stats)
	}

	cmd.Printf("Store:   %s\n", path)
	cmd.Printf("Queries: %d\n", stats.Queries)
	fields := make([]string, 0, len(stats.IndexRows))
	for f := range stats.IndexRows {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		cmd.Printf("  %-14s %6d rows %6d values\n", f, stats.IndexRows[f], stats.IndexValues[f])
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// listProperty renders a list or map-of-lists value as a comma separated string.
func listProperty(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, fmt.Sprint(e))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	}
	return ""
}
