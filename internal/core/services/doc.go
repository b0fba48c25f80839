// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
//   - IngestService: connectors -> normalisers -> store -> extractor -> dumps
//   - QueryService: filter queries over a loaded store
package services
