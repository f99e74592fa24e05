// Package query evaluates document filters expressed in the Mongo-like
// operator language shared by every storage adapter.
package query

import (
	"strings"

	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
)

// Operators understood by Match.
const (
	OpEq     = "$eq"
	OpNe     = "$ne"
	OpIn     = "$in"
	OpNin    = "$nin"
	OpExists = "$exists"
	OpGt     = "$gt"
	OpGte    = "$gte"
	OpLt     = "$lt"
	OpLte    = "$lte"
	OpAnd    = "$and"
	OpOr     = "$or"
)

// Match reports whether doc satisfies every clause of q. A nil or empty query
// matches everything.
func Match(doc map[string]any, q map[string]any) bool {
	for key, cond := range q {
		switch key {
		case OpAnd:
			for _, sub := range subQueries(cond) {
				if !Match(doc, sub) {
					return false
				}
			}
		case OpOr:
			subs := subQueries(cond)
			if len(subs) == 0 {
				continue
			}
			matched := false
			for _, sub := range subs {
				if Match(doc, sub) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			actual, present := fieldpath.Lookup(doc, key)
			if !matchField(actual, present, cond) {
				return false
			}
		}
	}
	return true
}

func matchField(actual any, present bool, cond any) bool {
	ops, ok := operatorMap(cond)
	if !ok {
		return equals(actual, present, cond)
	}
	for op, expected := range ops {
		if !applyOperator(op, actual, present, expected) {
			return false
		}
	}
	return true
}

func applyOperator(op string, actual any, present bool, expected any) bool {
	switch op {
	case OpEq:
		return equals(actual, present, expected)
	case OpNe:
		return !equals(actual, present, expected)
	case OpIn:
		return in(actual, present, expected)
	case OpNin:
		return !in(actual, present, expected)
	case OpExists:
		want, _ := expected.(bool)
		return present == want
	case OpGt, OpGte, OpLt, OpLte:
		if !present {
			return false
		}
		return anyCompares(actual, expected, op)
	default:
		return false
	}
}

// equals follows document-store semantics: a scalar condition matches a list
// field containing it, and a nil condition matches a missing field.
func equals(actual any, present bool, expected any) bool {
	if expected == nil {
		return !present || actual == nil
	}
	if !present {
		return false
	}
	if fieldpath.Equal(actual, expected) {
		return true
	}
	if items, ok := fieldpath.AsList(actual); ok {
		for _, item := range items {
			if fieldpath.Equal(item, expected) {
				return true
			}
		}
	}
	return false
}

func in(actual any, present bool, expected any) bool {
	candidates, ok := fieldpath.AsList(expected)
	if !ok {
		return false
	}
	for _, c := range candidates {
		if equals(actual, present, c) {
			return true
		}
	}
	return false
}

func anyCompares(actual, expected any, op string) bool {
	if items, ok := fieldpath.AsList(actual); ok {
		for _, item := range items {
			if compares(item, expected, op) {
				return true
			}
		}
		return false
	}
	return compares(actual, expected, op)
}

func compares(actual, expected any, op string) bool {
	c, ok := Compare(actual, expected)
	if !ok {
		return false
	}
	switch op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	default:
		return c <= 0
	}
}

// Compare orders two numbers or two strings. The boolean is false when the
// values are not comparable.
func Compare(a, b any) (int, bool) {
	if fa, ok := fieldpath.Number(a); ok {
		fb, ok := fieldpath.Number(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func operatorMap(cond any) (map[string]any, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func subQueries(v any) []map[string]any {
	items, ok := fieldpath.AsList(v)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
