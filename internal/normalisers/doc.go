// Package normalisers turns raw files into query records.
//
// Each sub-package handles one file format. The Registry picks a
// normaliser for a file by the source's format hint, falling back to the
// file extension, and is built once at startup.
package normalisers
