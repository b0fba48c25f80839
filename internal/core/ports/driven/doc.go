// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Connector: Fetches query files from a source
//   - ConnectorFactory: Creates connectors from configuration
//   - Normaliser: Parses a file format into query records
//   - NormaliserRegistry: Selects the appropriate normaliser
//   - Extractor: Derives structural properties from query text
//   - QueryDump: Whole-collection JSON persistence
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
//   - SnapshotWriter: SQLite export of the store. Nil disables the export.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or normaliser package
package driven
