package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchOperators(t *testing.T) {
	doc := map[string]any{
		"name":      "Foo",
		"price":     float64(12),
		"tags":      []any{"red", "blue"},
		"_archived": true,
		"owner":     map[string]any{"firstName": "Ada"},
	}

	cases := []struct {
		name  string
		query map[string]any
		want  bool
	}{
		{"empty", nil, true},
		{"equality", map[string]any{"name": "Foo"}, true},
		{"scalar in list field", map[string]any{"tags": "blue"}, true},
		{"ne archived", map[string]any{"_archived": map[string]any{"$ne": true}}, false},
		{"ne missing field", map[string]any{"deleted": map[string]any{"$ne": true}}, true},
		{"in", map[string]any{"name": map[string]any{"$in": []any{"Bar", "Foo"}}}, true},
		{"nin", map[string]any{"tags": map[string]any{"$nin": []any{"red"}}}, false},
		{"exists", map[string]any{"missing": map[string]any{"$exists": false}}, true},
		{"range", map[string]any{"price": map[string]any{"$gte": 10, "$lt": 12}}, false},
		{"range inclusive", map[string]any{"price": map[string]any{"$gt": 11, "$lte": 12}}, true},
		{"dot path", map[string]any{"owner.firstName": "Ada"}, true},
		{"or", map[string]any{"$or": []any{
			map[string]any{"name": "Bar"},
			map[string]any{"price": 12},
		}}, true},
		{"and", map[string]any{"$and": []any{
			map[string]any{"name": "Foo"},
			map[string]any{"price": 13},
		}}, false},
		{"nil matches missing", map[string]any{"missing": nil}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Match(doc, tc.query))
		})
	}
}

func TestSplitSeparatesPopulatedPaths(t *testing.T) {
	populated := func(root string) bool { return root == "owner" }
	q := map[string]any{
		"name":            "Foo",
		"owner":           "u1",
		"owner.firstName": "Ada",
		"meta.color":      "red",
		"$or": []any{
			map[string]any{"owner.lastName": "Lovelace"},
			map[string]any{"name": "Bar"},
		},
	}

	native, pop := Split(q, populated)
	require.Equal(t, map[string]any{"name": "Foo", "owner": "u1", "meta.color": "red"}, native)
	require.Contains(t, pop, "owner.firstName")
	require.Contains(t, pop, "$or")
	require.Equal(t, []string{"owner"}, PopulatedRoots(q, populated))
}

func TestCoerceArchived(t *testing.T) {
	q := CoerceArchived(map[string]any{"_archived": "true"})
	require.Equal(t, true, q["_archived"])

	q = CoerceArchived(map[string]any{"_archived": "undefined", "name": "x"})
	require.NotContains(t, q, "_archived")

	q = CoerceArchived(map[string]any{"$or": []any{
		map[string]any{"_archived": map[string]any{"$in": []any{"false", ""}}},
	}})
	inner := q["$or"].([]any)[0].(map[string]any)["_archived"].(map[string]any)
	require.Equal(t, []any{false, nil}, inner["$in"])
}

func TestSortDocuments(t *testing.T) {
	docs := []map[string]any{
		{"name": "b", "rank": 2},
		{"name": "a", "rank": 2},
		{"name": "c", "rank": 1},
	}
	SortDocuments(docs, ParseSort("-rank,name"))
	require.Equal(t, "a", docs[0]["name"])
	require.Equal(t, "b", docs[1]["name"])
	require.Equal(t, "c", docs[2]["name"])
}
