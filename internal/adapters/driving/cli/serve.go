package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kqlstore/internal/adapters/driving/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server over the query store.

By default, the server communicates over stdio using JSON-RPC and can be
used with Claude Desktop and other MCP-compatible AI assistants.

Tools: find, filters, get, stats.
Resources: kql://sources, kql://filters, kql://queries/{id}.

Examples:
  # Stdio mode (default)
  kqlstore serve

  # HTTP mode (for MCP Inspector, remote access)
  kqlstore serve --port 8080

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "kqlstore": {
        "command": "/path/to/kqlstore",
        "args": ["serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "query store dump (default newest in the output folder)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	svc, path, err := openQueries(cmd.Context())
	if err != nil {
		return err
	}

	ports := &mcp.Ports{Query: svc, StorePath: path}
	if _, settings, err := loadSettings(); err == nil {
		ports.Sources = settings.Sources
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.ErrOrStderr(), "MCP server over %s listening on http://localhost%s\n", path, addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
