// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML-based settings storage (config.toml)
//   - ReadRepoList: import of community query repositories from YAML
package file
