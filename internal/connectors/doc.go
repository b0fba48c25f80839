// Package connectors holds the source connectors and the factory that
// builds them from configured sources. Each sub-package fetches query
// files from one kind of origin (a GitHub repository, a local directory).
package connectors
