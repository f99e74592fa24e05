// Package fieldpath resolves dot separated paths over generic document trees
// built from maps, slices and scalars.
package fieldpath

import (
	"reflect"
	"strconv"
	"strings"
)

// Lookup resolves path against root. Numeric segments index into slices; any
// other segment applied to a slice is mapped over its elements and the results
// are flattened, so "owner.tags" over a populated list of owners yields every tag.
func Lookup(root any, path string) (any, bool) {
	if path == "" {
		return root, root != nil
	}
	return lookup(root, strings.Split(path, "."))
}

func lookup(node any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return node, true
	}
	head, rest := segments[0], segments[1:]
	switch v := node.(type) {
	case map[string]any:
		child, ok := v[head]
		if !ok {
			return nil, false
		}
		return lookup(child, rest)
	case map[string]string:
		child, ok := v[head]
		if !ok {
			return nil, false
		}
		return lookup(child, rest)
	}
	items, ok := AsList(node)
	if !ok {
		return nil, false
	}
	if idx, err := strconv.Atoi(head); err == nil {
		if idx < 0 || idx >= len(items) {
			return nil, false
		}
		return lookup(items[idx], rest)
	}
	var out []any
	for _, item := range items {
		found, ok := lookup(item, segments)
		if !ok {
			continue
		}
		if nested, isList := AsList(found); isList {
			out = append(out, nested...)
			continue
		}
		out = append(out, found)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// AsList converts the common slice shapes found in decoded documents into []any.
func AsList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Strings returns the string members of v when v is a list, or v itself when it
// is a single string.
func Strings(v any) ([]string, bool) {
	if s, ok := v.(string); ok {
		return []string{s}, true
	}
	items, ok := AsList(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Clone deep copies maps and slices. Scalars are returned as is.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Clone(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = CloneMap(item)
		}
		return out
	default:
		return v
	}
}

// CloneMap deep copies a document.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// Equal compares two scalar or composite values, treating every numeric kind as
// the same number.
func Equal(a, b any) bool {
	if fa, ok := Number(a); ok {
		fb, ok := Number(b)
		return ok && fa == fb
	}
	if la, ok := AsList(a); ok {
		lb, ok := AsList(b)
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !Equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Matches applies the ownership comparison: plain equality, list membership when
// exactly one side is a list, and any overlap when both sides are lists.
func Matches(a, b any) bool {
	la, aList := AsList(a)
	lb, bList := AsList(b)
	switch {
	case aList && bList:
		for _, x := range la {
			for _, y := range lb {
				if Equal(x, y) {
					return true
				}
			}
		}
		return false
	case aList:
		return contains(la, b)
	case bList:
		return contains(lb, a)
	default:
		return Equal(a, b)
	}
}

func contains(list []any, v any) bool {
	for _, item := range list {
		if Equal(item, v) {
			return true
		}
	}
	return false
}

// Number reports the float64 value of any Go numeric kind.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Root returns the first segment of a dot path.
func Root(path string) string {
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		return path[:idx]
	}
	return path
}
