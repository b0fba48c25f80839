package domain

// RawFile represents opaque bytes fetched by a connector.
// It is the connector's output before normalisation.
type RawFile struct {
	// SourceID links to the Source that produced this file.
	SourceID string

	// Path is the file path relative to the source root.
	Path string

	// URL is the browsable location, used as the query's source path when set.
	URL string

	// Content is the raw bytes.
	Content []byte

	// Metadata contains connector-specific key-value pairs.
	Metadata map[string]any
}

// Location returns URL when set, otherwise Path.
func (f *RawFile) Location() string {
	if f.URL != "" {
		return f.URL
	}
	return f.Path
}

// ChangeType represents the type of file change.
type ChangeType int

const (
	// ChangeCreated indicates a new file.
	ChangeCreated ChangeType = iota

	// ChangeUpdated indicates a modified file.
	ChangeUpdated

	// ChangeDeleted indicates a removed file.
	ChangeDeleted
)

// RawFileChange represents a change event from a watching connector.
type RawFileChange struct {
	// Type is the kind of change.
	Type ChangeType

	// File is the affected file.
	File RawFile
}
