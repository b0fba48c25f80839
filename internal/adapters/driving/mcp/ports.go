package mcp

import (
	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driving"
)

// Ports aggregates the driving ports and data the MCP server exposes.
type Ports struct {
	// Query answers filter queries against the loaded store.
	Query driving.QueryService

	// Sources lists the configured sources. Optional.
	Sources []domain.Source

	// StorePath names the loaded dump in the server instructions. Optional.
	StorePath string
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
