package domain

import (
	"fmt"
	"slices"
	"sort"
)

// PredicateKind selects which variant of a Predicate is populated.
type PredicateKind int

const (
	// PredicateEquals compares a field to a single literal.
	PredicateEquals PredicateKind = iota
	// PredicatePattern applies a string operator to a scalar string field.
	PredicatePattern
	// PredicateAnyOf matches records holding at least one of the values in an indexed field.
	PredicateAnyOf
)

// String returns the variant name.
func (k PredicateKind) String() string {
	switch k {
	case PredicateEquals:
		return "equals"
	case PredicatePattern:
		return "pattern"
	case PredicateAnyOf:
		return "any_of"
	default:
		return fmt.Sprintf("PredicateKind(%d)", int(k))
	}
}

// PatternOp is a string matching operator.
type PatternOp string

const (
	OpStartsWith PatternOp = "startswith"
	OpEndsWith   PatternOp = "endswith"
	OpContains   PatternOp = "contains"
	// OpMatches is a regular expression anchored at the start of the value.
	OpMatches PatternOp = "matches"
)

// Valid reports whether op is a supported operator.
func (op PatternOp) Valid() bool {
	switch op {
	case OpStartsWith, OpEndsWith, OpContains, OpMatches:
		return true
	}
	return false
}

// Predicate is a single per-field condition.
type Predicate struct {
	Kind PredicateKind

	// Value is set for PredicateEquals.
	Value any

	// Op and Expr are set for PredicatePattern.
	Op   PatternOp
	Expr string

	// Values is set for PredicateAnyOf.
	Values []string
}

// Equals builds an equality predicate.
func Equals(v any) Predicate {
	return Predicate{Kind: PredicateEquals, Value: v}
}

// Match builds a pattern predicate.
func Match(op PatternOp, expr string) Predicate {
	return Predicate{Kind: PredicatePattern, Op: op, Expr: expr}
}

// AnyOf builds a multi-value predicate over an indexed field.
func AnyOf(values ...string) Predicate {
	return Predicate{Kind: PredicateAnyOf, Values: values}
}

// Criterion pairs a field name with its predicate.
type Criterion struct {
	Field     string
	Predicate Predicate
}

// Criteria is an ordered conjunction of per-field predicates.
type Criteria []Criterion

// Where returns c with another condition appended.
func (c Criteria) Where(field string, p Predicate) Criteria {
	return append(c, Criterion{Field: field, Predicate: p})
}

// Fields returns the field names in order.
func (c Criteria) Fields() []string {
	out := make([]string, len(c))
	for i, cr := range c {
		out[i] = cr.Field
	}
	return out
}

// FindOptions controls evaluation of a Criteria.
type FindOptions struct {
	// CaseSensitive disables case folding for pattern predicates.
	CaseSensitive bool

	// Offset skips the first matches.
	Offset int

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// ParseCriteria decodes the loose call shape used by JSON callers: each
// value is a scalar (Equals), a single-key object {op: expr} (Pattern) or
// a list (AnyOf). Fields are ordered by name.
func ParseCriteria(raw map[string]any) (Criteria, error) {
	fields := make([]string, 0, len(raw))
	for k := range raw {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	c := make(Criteria, 0, len(fields))
	for _, f := range fields {
		p, err := parsePredicate(raw[f])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		c = c.Where(f, p)
	}
	return c, nil
}

func parsePredicate(v any) (Predicate, error) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) != 1 {
			return Predicate{}, fmt.Errorf("%w: pattern must have exactly one operator", ErrInvalidArgument)
		}
		for op, expr := range t {
			s, ok := expr.(string)
			if !ok {
				return Predicate{}, fmt.Errorf("%w: pattern expression must be a string", ErrInvalidArgument)
			}
			return Match(PatternOp(op), s), nil
		}
	case map[string]string:
		if len(t) != 1 {
			return Predicate{}, fmt.Errorf("%w: pattern must have exactly one operator", ErrInvalidArgument)
		}
		for op, expr := range t {
			return Match(PatternOp(op), expr), nil
		}
	case []string:
		return AnyOf(slices.Clone(t)...), nil
	case []any:
		values := make([]string, 0, len(t))
		for _, e := range t {
			values = append(values, fmt.Sprint(e))
		}
		return AnyOf(values...), nil
	}
	return Equals(v), nil
}
