package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"
)

// SourceType tags the kind of file or service a query came from.
type SourceType string

const (
	// SourceTypeText is a plain query file (.kql, .txt).
	SourceTypeText SourceType = "text"
	// SourceTypeMarkdown is a fenced block inside a markdown document.
	SourceTypeMarkdown SourceType = "markdown"
	// SourceTypeSentinelYAML is a Sentinel detection or hunting YAML file.
	SourceTypeSentinelYAML SourceType = "sentinel_yaml"
	// SourceTypeAPI is a query fetched from a service API.
	SourceTypeAPI SourceType = "api"
	// SourceTypeOther covers anything else.
	SourceTypeOther SourceType = "other"
)

// ParseSourceType validates a serialised source type.
// An empty string yields SourceTypeText.
func ParseSourceType(s string) (SourceType, error) {
	switch st := SourceType(s); st {
	case "":
		return SourceTypeText, nil
	case SourceTypeText, SourceTypeMarkdown, SourceTypeSentinelYAML, SourceTypeAPI, SourceTypeOther:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown source type %q", ErrMalformedInput, s)
	}
}

// Query is one ingested KQL query with its provenance, ingestion-time
// attributes and extractor-derived properties.
type Query struct {
	// ID is the primary key in a Store. Generated at creation.
	ID string

	// SourcePath locates the file the query came from.
	SourcePath string

	// Text is the raw query body.
	Text string

	// SourceType tags the kind of source file.
	SourceType SourceType

	// SourceIndex is the position of the query within a multi-query source file.
	SourceIndex int

	// Name is the display name. Defaults to the last segment of SourcePath.
	Name string

	// Attributes holds metadata attached at ingestion (description, tactics, ...).
	Attributes map[string]any

	// Properties holds extractor output. Keys are lower case.
	Properties map[string]any

	// ContentHash is the hex SHA-256 of Text.
	ContentHash string

	// Version is reserved and not enforced.
	Version int
}

// QueryOption configures a Query at construction.
type QueryOption func(*Query)

// WithName overrides the name derived from the source path.
func WithName(name string) QueryOption {
	return func(q *Query) {
		if name != "" {
			q.Name = name
		}
	}
}

// WithSourceType sets the source type.
func WithSourceType(t SourceType) QueryOption {
	return func(q *Query) { q.SourceType = t }
}

// WithSourceIndex sets the position within the source file.
func WithSourceIndex(i int) QueryOption {
	return func(q *Query) { q.SourceIndex = i }
}

// WithAttributes sets the ingestion-time attributes. The map is copied.
func WithAttributes(attrs map[string]any) QueryOption {
	return func(q *Query) { q.Attributes = maps.Clone(attrs) }
}

// WithProperties sets extractor properties, folding keys to lower case.
func WithProperties(props map[string]any) QueryOption {
	return func(q *Query) { q.MergeProperties(props) }
}

// WithID sets an explicit id instead of a generated one.
func WithID(id string) QueryOption {
	return func(q *Query) {
		if id != "" {
			q.ID = id
		}
	}
}

// NewQuery creates a query record for the given source path and text.
func NewQuery(sourcePath, text string, opts ...QueryOption) *Query {
	q := &Query{
		ID:         uuid.NewString(),
		SourceType: SourceTypeText,
		Attributes: make(map[string]any),
		Properties: make(map[string]any),
	}
	q.SetSourcePath(sourcePath, "")
	q.SetText(text)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetText replaces the query text and recomputes ContentHash.
func (q *Query) SetText(text string) {
	q.Text = text
	q.ContentHash = HashText(text)
}

// SetSourcePath replaces the source path. Name is recomputed from the path
// unless a non-empty name is given.
func (q *Query) SetSourcePath(path, name string) {
	q.SourcePath = path
	if name != "" {
		q.Name = name
		return
	}
	q.Name = NameFromPath(path)
}

// MergeProperties merges extractor output into Properties with lower case keys.
func (q *Query) MergeProperties(props map[string]any) {
	if q.Properties == nil {
		q.Properties = make(map[string]any, len(props))
	}
	for k, v := range props {
		q.Properties[strings.ToLower(k)] = v
	}
}

// Attribute returns the attribute stored under key, falling back to a
// case-insensitive match.
func (q *Query) Attribute(key string) (any, bool) {
	if v, ok := q.Attributes[key]; ok {
		return v, true
	}
	for k, v := range q.Attributes {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the query.
func (q *Query) Clone() *Query {
	c := *q
	c.Attributes = cloneMap(q.Attributes)
	c.Properties = cloneMap(q.Properties)
	return &c
}

// HashText returns the hex SHA-256 digest of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NameFromPath returns the last "/" separated segment of path.
func NameFromPath(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string][]string:
		out := make(map[string][]string, len(t))
		for k, vs := range t {
			out[k] = append([]string(nil), vs...)
		}
		return out
	default:
		return v
	}
}

// queryJSON is the on-disk shape of a Query.
type queryJSON struct {
	ID          string         `json:"query_id"`
	SourcePath  string         `json:"source_path"`
	Text        string         `json:"query"`
	SourceType  string         `json:"source_type"`
	SourceIndex int            `json:"source_index"`
	Name        string         `json:"query_name"`
	Attributes  map[string]any `json:"attributes"`
	Properties  map[string]any `json:"kql_properties"`
	ContentHash string         `json:"query_hash"`
	Version     int            `json:"query_version"`
}

// MarshalJSON encodes the query as a flat object.
func (q Query) MarshalJSON() ([]byte, error) {
	st := q.SourceType
	if st == "" {
		st = SourceTypeText
	}
	attrs := q.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	props := q.Properties
	if props == nil {
		props = map[string]any{}
	}
	return json.Marshal(queryJSON{
		ID:          q.ID,
		SourcePath:  q.SourcePath,
		Text:        q.Text,
		SourceType:  string(st),
		SourceIndex: q.SourceIndex,
		Name:        q.Name,
		Attributes:  attrs,
		Properties:  props,
		ContentHash: HashText(q.Text),
		Version:     q.Version,
	})
}

// UnmarshalJSON decodes a flat query object. The content hash is always
// recomputed, a missing name is derived from the source path and a
// missing id is generated.
func (q *Query) UnmarshalJSON(data []byte) error {
	var raw queryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	st, err := ParseSourceType(raw.SourceType)
	if err != nil {
		return err
	}

	*q = Query{
		ID:          raw.ID,
		SourceType:  st,
		SourceIndex: raw.SourceIndex,
		Attributes:  raw.Attributes,
		Version:     raw.Version,
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Attributes == nil {
		q.Attributes = make(map[string]any)
	}
	q.SetSourcePath(raw.SourcePath, raw.Name)
	q.SetText(raw.Text)
	q.Properties = make(map[string]any, len(raw.Properties))
	q.MergeProperties(raw.Properties)
	return nil
}
