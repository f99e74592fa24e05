package query

import "github.com/odyssey-cms/odyssey-cms/internal/fieldpath"

// ArchivedField is the reserved soft-delete flag.
const ArchivedField = "_archived"

// CoerceArchived rewrites loosely typed values of the archive flag as they
// arrive from query strings: "true" and "false" become booleans while "" and
// "undefined" become absent. The rewrite descends into operator maps, lists and
// logical groups. q is modified in place and returned.
func CoerceArchived(q map[string]any) map[string]any {
	for key, cond := range q {
		switch key {
		case OpAnd, OpOr:
			for _, sub := range subQueries(cond) {
				CoerceArchived(sub)
			}
		case ArchivedField:
			v, keep := coerceLoose(cond)
			if !keep {
				delete(q, key)
				continue
			}
			q[key] = v
		}
	}
	return q
}

func coerceLoose(v any) (any, bool) {
	switch t := v.(type) {
	case string:
		switch t {
		case "true":
			return true, true
		case "false":
			return false, true
		case "", "undefined":
			return nil, false
		}
		return t, true
	case map[string]any:
		for k, inner := range t {
			coerced, keep := coerceLoose(inner)
			if !keep {
				t[k] = nil
				continue
			}
			t[k] = coerced
		}
		return t, true
	}
	if items, ok := fieldpath.AsList(v); ok {
		out := make([]any, len(items))
		for i, item := range items {
			coerced, _ := coerceLoose(item)
			out[i] = coerced
		}
		return out, true
	}
	return v, true
}
