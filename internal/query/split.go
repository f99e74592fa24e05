package query

import (
	"strings"

	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
)

// Split partitions q into the clauses a storage adapter can answer and the
// clauses that dot into a populated field. isPopulated reports whether a root
// field name is produced by population. Logical groups that touch any
// populated path move to the populated side as a whole.
func Split(q map[string]any, isPopulated func(root string) bool) (native, populated map[string]any) {
	native = map[string]any{}
	populated = map[string]any{}
	for key, cond := range q {
		if needsPopulation(key, cond, isPopulated) {
			populated[key] = cond
			continue
		}
		native[key] = cond
	}
	return native, populated
}

// PopulatedRoots lists the populated root fields referenced by q.
func PopulatedRoots(q map[string]any, isPopulated func(root string) bool) []string {
	seen := map[string]struct{}{}
	var roots []string
	var walk func(map[string]any)
	walk = func(m map[string]any) {
		for key, cond := range m {
			if key == OpAnd || key == OpOr {
				for _, sub := range subQueries(cond) {
					walk(sub)
				}
				continue
			}
			if !strings.Contains(key, ".") {
				continue
			}
			root := fieldpath.Root(key)
			if !isPopulated(root) {
				continue
			}
			if _, ok := seen[root]; ok {
				continue
			}
			seen[root] = struct{}{}
			roots = append(roots, root)
		}
	}
	walk(q)
	return roots
}

func needsPopulation(key string, cond any, isPopulated func(string) bool) bool {
	if key == OpAnd || key == OpOr {
		for _, sub := range subQueries(cond) {
			for k, c := range sub {
				if needsPopulation(k, c, isPopulated) {
					return true
				}
			}
		}
		return false
	}
	return strings.Contains(key, ".") && isPopulated(fieldpath.Root(key))
}

// HasField reports whether q constrains field at its top level.
func HasField(q map[string]any, field string) bool {
	_, ok := q[field]
	return ok
}
