package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// Scope says which record map an indexed field is read from.
type Scope int

const (
	// ScopeAttributes reads from Query.Attributes.
	ScopeAttributes Scope = iota
	// ScopeProperties reads from Query.Properties.
	ScopeProperties
)

// Shape is the expected layout of an indexed field's value.
type Shape int

const (
	// ShapeList is a flat list of values.
	ShapeList Shape = iota
	// ShapeMapOfLists is a map whose values are lists. Only the inner
	// values are indexed.
	ShapeMapOfLists
)

// Field declares one indexable field.
type Field struct {
	Name  string
	Scope Scope
	Shape Shape
}

// Declared index fields.
const (
	FieldTactics       = "tactics"
	FieldTechniques    = "techniques"
	FieldTables        = "tables"
	FieldOperators     = "operators"
	FieldFunctionCalls = "functioncalls"
	FieldJoins         = "joins"
)

// Fields is the fixed set of indexed fields in declaration order.
var Fields = []Field{
	{Name: FieldTactics, Scope: ScopeAttributes, Shape: ShapeList},
	{Name: FieldTechniques, Scope: ScopeAttributes, Shape: ShapeList},
	{Name: FieldTables, Scope: ScopeProperties, Shape: ShapeList},
	{Name: FieldOperators, Scope: ScopeProperties, Shape: ShapeList},
	{Name: FieldFunctionCalls, Scope: ScopeProperties, Shape: ShapeList},
	{Name: FieldJoins, Scope: ScopeProperties, Shape: ShapeMapOfLists},
}

// LookupField returns the declared index field with the given name.
func LookupField(name string) (Field, bool) {
	name = strings.ToLower(name)
	for _, f := range Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the declared index field names.
func FieldNames() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}

// ExtractValues returns the index keys a query contributes to field.
// Lists yield each element, maps of lists yield the inner values across
// all outer keys. Absent, null and empty values yield nothing.
// The query is not modified.
func ExtractValues(field Field, q *domain.Query) []string {
	if q == nil {
		return nil
	}
	var raw any
	switch field.Scope {
	case ScopeAttributes:
		raw, _ = q.Attribute(field.Name)
	case ScopeProperties:
		raw = q.Properties[field.Name]
	}
	if raw == nil {
		return nil
	}

	if field.Shape == ShapeMapOfLists {
		return flattenMap(raw)
	}
	return flattenList(raw)
}

func flattenList(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if e == nil {
				continue
			}
			out = append(out, stringify(e))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case map[string]any, map[string][]string:
		return nil
	default:
		return []string{stringify(v)}
	}
}

func flattenMap(raw any) []string {
	switch m := raw.(type) {
	case map[string]any:
		keys := sortedKeys(m)
		var out []string
		for _, k := range keys {
			out = append(out, flattenList(m[k])...)
		}
		return out
	case map[string][]string:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, m[k]...)
		}
		return out
	default:
		return nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
