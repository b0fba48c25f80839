package sentinel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Sentinel analytic rule and hunting query YAML files.
type Normaliser struct{}

// New creates a new Sentinel YAML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Name returns the format name.
func (n *Normaliser) Name() string {
	return "sentinel"
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".yaml", ".yml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 80
}

// rule is the subset of a Sentinel YAML document that is kept.
type rule struct {
	ID                 string     `yaml:"id"`
	Name               string     `yaml:"name"`
	Description        string     `yaml:"description"`
	Severity           string     `yaml:"severity"`
	Kind               string     `yaml:"kind"`
	Version            string     `yaml:"version"`
	Query              string     `yaml:"query"`
	Tactics            stringList `yaml:"tactics"`
	RelevantTechniques stringList `yaml:"relevantTechniques"`
}

// stringList accepts either a YAML sequence or a single scalar.
type stringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			*l = nil
			return nil
		}
		*l = stringList{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(stringList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode || item.Value == "" {
				continue
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a list of strings", node.Line)
	}
}

func (l stringList) values() []any {
	out := make([]any, len(l))
	for i, v := range l {
		out[i] = v
	}
	return out
}

// Normalise parses one YAML rule. Files without a query yield nothing.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawFile) ([]*domain.Query, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	var r rule
	if err := yaml.NewDecoder(bytes.NewReader(raw.Content)).Decode(&r); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrInvalidInput, raw.Path, err)
	}
	if strings.TrimSpace(r.Query) == "" {
		return nil, nil
	}

	name := r.Name
	if name == "" {
		base := path.Base(raw.Path)
		name = strings.TrimSuffix(base, path.Ext(base))
	}

	attrs := map[string]any{}
	setIf(attrs, "description", strings.TrimSpace(r.Description))
	setIf(attrs, "severity", r.Severity)
	setIf(attrs, "kind", r.Kind)
	setIf(attrs, "version", r.Version)
	setIf(attrs, "sentinel_id", r.ID)
	if len(r.Tactics) > 0 {
		attrs["tactics"] = r.Tactics.values()
	}
	if len(r.RelevantTechniques) > 0 {
		attrs["techniques"] = r.RelevantTechniques.values()
	}

	q := domain.NewQuery(raw.Location(), r.Query,
		domain.WithName(name),
		domain.WithSourceType(domain.SourceTypeSentinelYAML),
		domain.WithAttributes(attrs),
	)
	return []*domain.Query{q}, nil
}

func setIf(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
