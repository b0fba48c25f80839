package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for kqlstore resources.
	uriScheme = "kql://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing sources.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "sources",
		Name:        "sources",
		Description: "List of all configured query sources",
		MIMEType:    "application/json",
	}, s.handleSourcesResource)

	// Static resource for the filter values.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "filters",
		Name:        "filters",
		Description: "Distinct values of every indexed field",
		MIMEType:    "application/json",
	}, s.handleFiltersResource)

	// Template for query text.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "queries/{queryId}",
		Name:        "query-text",
		Description: "Text of a specific KQL query",
		MIMEType:    "text/plain",
	}, s.handleQueryResource)
}

// handleSourcesResource returns a list of all configured sources.
func (s *Server) handleSourcesResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	type sourceInfo struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
		URI  string `json:"uri"`
	}

	infos := make([]sourceInfo, len(s.ports.Sources))
	for i, src := range s.ports.Sources {
		// Repo for GitHub sources, path for filesystem sources.
		uri := src.Config["repo"]
		if path, ok := src.Config["path"]; ok {
			uri = path
		}
		infos[i] = sourceInfo{
			ID:   src.ID,
			Name: src.Name,
			Type: src.Type,
			URI:  uri,
		}
	}

	return jsonResource(req.Params.URI, infos)
}

// handleFiltersResource returns the filter values of every index.
func (s *Server) handleFiltersResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	options, err := s.ports.Query.FilterOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing filters: %w", err)
	}
	return jsonResource(req.Params.URI, options)
}

// handleQueryResource returns the text of a specific query.
func (s *Server) handleQueryResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract queryId from URI: kql://queries/{queryId}
	id := extractQueryID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	q, err := s.ports.Query.Get(ctx, id)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     q.Text,
		}},
	}, nil
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractQueryID extracts the query ID from a URI like kql://queries/{queryId}.
func extractQueryID(uri string) string {
	const prefix = uriScheme + "queries/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}
