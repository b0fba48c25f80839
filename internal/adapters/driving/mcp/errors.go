// Package mcp provides an MCP (Model Context Protocol) server adapter for kqlstore.
// It lets AI assistants filter the query store by table, operator, join
// and MITRE attributes.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")
