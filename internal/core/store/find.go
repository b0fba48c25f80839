package store

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
)

// scalarKind is the value type of a scalar record field.
type scalarKind int

const (
	scalarString scalarKind = iota
	scalarInt
)

type scalarField struct {
	name string
	kind scalarKind
	get  func(q *domain.Query) any
}

var scalarFields = []scalarField{
	{"id", scalarString, func(q *domain.Query) any { return q.ID }},
	{"source_path", scalarString, func(q *domain.Query) any { return q.SourcePath }},
	{"text", scalarString, func(q *domain.Query) any { return q.Text }},
	{"source_type", scalarString, func(q *domain.Query) any { return string(q.SourceType) }},
	{"source_index", scalarInt, func(q *domain.Query) any { return q.SourceIndex }},
	{"name", scalarString, func(q *domain.Query) any { return q.Name }},
	{"content_hash", scalarString, func(q *domain.Query) any { return q.ContentHash }},
	{"version", scalarInt, func(q *domain.Query) any { return q.Version }},
}

// Serialised names accepted as aliases of scalar fields.
var scalarAliases = map[string]string{
	"query_id":      "id",
	"query":         "text",
	"query_name":    "name",
	"query_hash":    "content_hash",
	"query_version": "version",
}

func lookupScalar(name string) (scalarField, bool) {
	name = strings.ToLower(name)
	if alias, ok := scalarAliases[name]; ok {
		name = alias
	}
	for _, f := range scalarFields {
		if f.name == name {
			return f, true
		}
	}
	return scalarField{}, false
}

// ScalarFieldNames returns the scalar field names accepted by Find.
func ScalarFieldNames() []string {
	names := make([]string, len(scalarFields))
	for i, f := range scalarFields {
		names[i] = f.name
	}
	return names
}

type matcher func(q *domain.Query) bool

// plan is a compiled Criteria: an index candidate set plus scalar filters.
type plan struct {
	candidates *roaring.Bitmap
	matchers   []matcher
}

// Find returns copies of the records matching every criterion, in
// insertion order.
//
// Equals applies to scalar fields, and to indexed fields as a single
// value AnyOf. Pattern applies to string scalar fields. AnyOf applies to
// indexed fields and matches records holding at least one of the values.
// Unknown fields and unsupported field/predicate pairs fail with
// domain.ErrInvalidArgument.
func (s *Store) Find(criteria domain.Criteria, opts domain.FindOptions) ([]*domain.Query, error) {
	page, _, err := s.FindPage(criteria, opts)
	return page, err
}

// FindPage is Find that also returns the number of matches before
// paging. Both come from one evaluation under one read lock.
func (s *Store) FindPage(criteria domain.Criteria, opts domain.FindOptions) ([]*domain.Query, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.compile(criteria, opts)
	if err != nil {
		return nil, 0, err
	}

	var out []*domain.Query
	total := 0
	skip := max(opts.Offset, 0)
	s.evaluate(p, func(q *domain.Query) bool {
		total++
		if skip > 0 {
			skip--
			return true
		}
		if opts.Limit <= 0 || len(out) < opts.Limit {
			out = append(out, q.Clone())
		}
		return true
	})
	return out, total, nil
}

// Count returns the number of records matching criteria. Paging options
// are ignored and no records are copied.
func (s *Store) Count(criteria domain.Criteria, opts domain.FindOptions) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.compile(criteria, opts)
	if err != nil {
		return 0, err
	}
	n := 0
	s.evaluate(p, func(*domain.Query) bool {
		n++
		return true
	})
	return n, nil
}

// evaluate calls visit for each record matching p in insertion order
// until visit returns false. Caller must hold s.mu.
func (s *Store) evaluate(p *plan, visit func(q *domain.Query) bool) {
	match := func(ord uint32) bool {
		q := s.queries[ord]
		for _, m := range p.matchers {
			if !m(q) {
				return true
			}
		}
		return visit(q)
	}

	if p.candidates == nil {
		for i := range s.queries {
			if !match(uint32(i)) {
				return
			}
		}
		return
	}

	it := p.candidates.Iterator()
	for it.HasNext() {
		if !match(it.Next()) {
			return
		}
	}
}

// compile validates criteria and resolves indexed predicates to a
// candidate bitmap. Caller must hold s.mu.
func (s *Store) compile(criteria domain.Criteria, opts domain.FindOptions) (*plan, error) {
	p := &plan{}
	for _, c := range criteria {
		if f, ok := LookupField(c.Field); ok {
			values, err := indexedValues(c)
			if err != nil {
				return nil, err
			}
			bm := s.indexes[f.Name].Union(values)
			if p.candidates == nil {
				p.candidates = bm
			} else {
				p.candidates.And(bm)
			}
			continue
		}

		f, ok := lookupScalar(c.Field)
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q", domain.ErrInvalidArgument, c.Field)
		}
		m, err := scalarMatcher(f, c.Predicate, opts.CaseSensitive)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", c.Field, err)
		}
		p.matchers = append(p.matchers, m)
	}
	return p, nil
}

func indexedValues(c domain.Criterion) ([]string, error) {
	switch c.Predicate.Kind {
	case domain.PredicateAnyOf:
		return c.Predicate.Values, nil
	case domain.PredicateEquals:
		if c.Predicate.Value == nil {
			return nil, nil
		}
		return []string{stringify(c.Predicate.Value)}, nil
	default:
		return nil, fmt.Errorf("%w: %s predicate not supported on indexed field %q",
			domain.ErrInvalidArgument, c.Predicate.Kind, c.Field)
	}
}

func scalarMatcher(f scalarField, p domain.Predicate, caseSensitive bool) (matcher, error) {
	switch p.Kind {
	case domain.PredicateEquals:
		return equalsMatcher(f, p.Value)
	case domain.PredicatePattern:
		if f.kind != scalarString {
			return nil, fmt.Errorf("%w: pattern on non-string field", domain.ErrInvalidArgument)
		}
		return patternMatcher(f, p.Op, p.Expr, caseSensitive)
	case domain.PredicateAnyOf:
		return nil, fmt.Errorf("%w: multi-value predicate on non-indexed field", domain.ErrInvalidArgument)
	default:
		return nil, fmt.Errorf("%w: unknown predicate kind %d", domain.ErrInvalidArgument, int(p.Kind))
	}
}

func equalsMatcher(f scalarField, value any) (matcher, error) {
	if f.kind == scalarInt {
		want, err := toInt(value)
		if err != nil {
			return nil, err
		}
		return func(q *domain.Query) bool { return f.get(q).(int) == want }, nil
	}
	want := stringify(value)
	return func(q *domain.Query) bool { return f.get(q).(string) == want }, nil
}

func patternMatcher(f scalarField, op domain.PatternOp, expr string, caseSensitive bool) (matcher, error) {
	get := func(q *domain.Query) string { return f.get(q).(string) }

	if op == domain.OpMatches {
		src := "^(?:" + expr + ")"
		if !caseSensitive {
			src = "(?i)" + src
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
		}
		return func(q *domain.Query) bool { return re.MatchString(get(q)) }, nil
	}

	var test func(s, sub string) bool
	switch op {
	case domain.OpStartsWith:
		test = strings.HasPrefix
	case domain.OpEndsWith:
		test = strings.HasSuffix
	case domain.OpContains:
		test = strings.Contains
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", domain.ErrInvalidArgument, op)
	}
	if caseSensitive {
		return func(q *domain.Query) bool { return test(get(q), expr) }, nil
	}
	lowered := strings.ToLower(expr)
	return func(q *domain.Query) bool { return test(strings.ToLower(get(q)), lowered) }, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %v is not an integer", domain.ErrInvalidArgument, v)
}
