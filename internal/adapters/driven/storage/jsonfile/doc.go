// Package jsonfile stores query collections as JSON documents on disk,
// optionally zstd compressed.
package jsonfile
