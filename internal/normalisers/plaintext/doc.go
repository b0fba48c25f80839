// Package plaintext reads standalone .kql files as single queries.
package plaintext
