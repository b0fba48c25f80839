// Package github implements a connector that reads query files from a
// single GitHub repository.
//
// # Architecture
//
// The connector follows the driven port pattern defined in [driven.Connector].
// It comprises the following components:
//
//   - Connector: orchestrates sync operations and manages lifecycle
//   - Client: handles GitHub API communication with rate limiting
//   - Config: parses source configuration and filters repository paths
//
// # Configuration
//
// Source configuration accepts the following keys:
//
//   - repo: required, in "owner/name" form.
//   - branch: branch or ref to read. Default: the repository default branch.
//   - paths: comma-separated directory prefixes, e.g.
//     "Detections,Hunting Queries". Default: the whole repository.
//   - patterns: comma-separated glob patterns matched against the file name
//     or the full path, e.g. "*.yaml,*.yml". Default: all files.
//   - format: normaliser hint copied into every file's metadata.
//   - mode: "archive" (default) downloads one zipball; "tree" lists the git
//     tree and fetches each blob through the API.
//   - token: optional personal access token.
//
// Anonymous access works for public repositories but is limited to 60 API
// calls per hour, which is enough for archive mode and rarely for tree mode.
//
// # Rate Limiting
//
// A token bucket limits requests to a configurable rate (1.2 per second by
// default). The connector also tracks X-RateLimit-Remaining and
// X-RateLimit-Reset and waits for the reset once the quota runs low.
//
// # File Locations
//
// Every file carries a browsable URL of the form
//
//	https://github.com/{owner}/{repo}/blob/{branch}/{path}
//
// with the path percent-encoded except for "/" and ":". Normalisers use it
// as the query source path.
//
// # Limitations
//
//   - Binary files and files over 1MB are skipped
//   - Watch mode is not supported
//   - Tree mode is subject to the truncation limit of the Trees API
package github
