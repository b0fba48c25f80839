package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

const defaultFindLimit = 20

// FindInput is the input schema for the find tool.
type FindInput struct {
	Criteria      map[string]any `json:"criteria,omitempty" jsonschema:"field to value: a scalar for equality, a list for any-of, or an object with one operator (startswith, endswith, contains, matches) for patterns"`
	CaseSensitive bool           `json:"case_sensitive,omitempty" jsonschema:"disable case folding for pattern matches"`
	Limit         int            `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 20)"`
	Offset        int            `json:"offset,omitempty" jsonschema:"number of matches to skip"`
}

// FindOutput is the output schema for the find tool.
type FindOutput struct {
	Results []QueryOutput `json:"results"`
	Count   int           `json:"count"`
	Total   int           `json:"total"`
}

// QueryOutput represents a single query record.
type QueryOutput struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	SourcePath  string         `json:"source_path"`
	SourceType  string         `json:"source_type"`
	SourceIndex int            `json:"source_index"`
	Query       string         `json:"query"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// FiltersInput is the input schema for the filters tool.
type FiltersInput struct {
	Categories []string `json:"categories,omitempty" jsonschema:"index fields to list (tactics, techniques, tables, operators, functioncalls, joins); empty lists all"`
}

// FiltersOutput is the output schema for the filters tool.
type FiltersOutput struct {
	Options map[string][]string `json:"options"`
}

// GetInput is the input schema for the get tool.
type GetInput struct {
	ID string `json:"id" jsonschema:"the query id"`
}

// StatsInput is the input schema for the stats tool.
type StatsInput struct{}

// StatsOutput is the output schema for the stats tool.
type StatsOutput struct {
	Queries     int            `json:"queries"`
	IndexRows   map[string]int `json:"index_rows"`
	IndexValues map[string]int `json:"index_values"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "find",
		Description: "Find KQL queries matching every criterion",
	}, s.handleFind)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "filters",
		Description: "List the distinct values of each indexed field",
	}, s.handleFilters)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get",
		Description: "Get one KQL query by id",
	}, s.handleGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stats",
		Description: "Summarise the loaded query store",
	}, s.handleStats)
}

// handleFind handles the find tool invocation.
func (s *Server) handleFind(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input FindInput,
) (*mcp.CallToolResult, FindOutput, error) {
	criteria, err := domain.ParseCriteria(input.Criteria)
	if err != nil {
		return nil, FindOutput{}, fmt.Errorf("parsing criteria: %w", err)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultFindLimit
	}

	res, err := s.ports.Query.Find(ctx, criteria, domain.FindOptions{
		CaseSensitive: input.CaseSensitive,
		Limit:         limit,
		Offset:        input.Offset,
	})
	if err != nil {
		return nil, FindOutput{}, err
	}

	output := FindOutput{
		Results: make([]QueryOutput, len(res.Queries)),
		Count:   len(res.Queries),
		Total:   res.Total,
	}
	for i, q := range res.Queries {
		output.Results[i] = toOutput(q)
	}
	return nil, output, nil
}

// handleFilters handles the filters tool invocation.
func (s *Server) handleFilters(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input FiltersInput,
) (*mcp.CallToolResult, FiltersOutput, error) {
	options, err := s.ports.Query.FilterOptions(ctx, input.Categories...)
	if err != nil {
		return nil, FiltersOutput{}, err
	}
	return nil, FiltersOutput{Options: options}, nil
}

// handleGet handles the get tool invocation.
func (s *Server) handleGet(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	q, err := s.ports.Query.Get(ctx, input.ID)
	if err != nil {
		return nil, QueryOutput{}, err
	}
	return nil, toOutput(q), nil
}

// handleStats handles the stats tool invocation.
func (s *Server) handleStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatsInput,
) (*mcp.CallToolResult, StatsOutput, error) {
	stats, err := s.ports.Query.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, err
	}
	return nil, StatsOutput{
		Queries:     stats.Queries,
		IndexRows:   stats.IndexRows,
		IndexValues: stats.IndexValues,
	}, nil
}

func toOutput(q *domain.Query) QueryOutput {
	return QueryOutput{
		ID:          q.ID,
		Name:        q.Name,
		SourcePath:  q.SourcePath,
		SourceType:  string(q.SourceType),
		SourceIndex: q.SourceIndex,
		Query:       q.Text,
		Attributes:  q.Attributes,
		Properties:  q.Properties,
	}
}
