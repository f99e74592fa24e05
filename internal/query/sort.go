package query

import (
	"sort"
	"strings"

	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
)

// SortDocuments orders docs in place by the given fields. A leading "-" sorts
// the field descending. Missing values sort first.
func SortDocuments(docs []map[string]any, fields []string) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			desc := strings.HasPrefix(f, "-")
			name := strings.TrimPrefix(f, "-")
			a, aok := fieldpath.Lookup(docs[i], name)
			b, bok := fieldpath.Lookup(docs[j], name)
			c := 0
			switch {
			case !aok && !bok:
			case !aok:
				c = -1
			case !bok:
				c = 1
			default:
				c, _ = Compare(a, b)
			}
			if c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// ParseSort splits a comma or space separated sort expression.
func ParseSort(v any) []string {
	if s, ok := v.(string); ok {
		return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	}
	out, _ := fieldpath.Strings(v)
	return out
}
