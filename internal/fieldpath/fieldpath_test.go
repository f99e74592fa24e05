package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupNestedMaps(t *testing.T) {
	doc := map[string]any{
		"owner": map[string]any{"firstName": "Ada", "_id": "u1"},
		"tags":  []any{"a", "b"},
	}

	v, ok := Lookup(doc, "owner.firstName")
	require.True(t, ok)
	require.Equal(t, "Ada", v)

	v, ok = Lookup(doc, "tags.1")
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok = Lookup(doc, "owner.lastName")
	require.False(t, ok)

	_, ok = Lookup(doc, "tags.7")
	require.False(t, ok)
}

func TestLookupFlattensLists(t *testing.T) {
	doc := map[string]any{
		"authors": []any{
			map[string]any{"_id": "a1", "groups": []any{"g1", "g2"}},
			map[string]any{"_id": "a2", "groups": []string{"g3"}},
			map[string]any{"name": "no groups"},
		},
	}

	v, ok := Lookup(doc, "authors._id")
	require.True(t, ok)
	require.Equal(t, []any{"a1", "a2"}, v)

	v, ok = Lookup(doc, "authors.groups")
	require.True(t, ok)
	require.Equal(t, []any{"g1", "g2", "g3"}, v)
}

func TestMatchesIsSymmetric(t *testing.T) {
	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{"equal scalars", "u1", "u1", true},
		{"different scalars", "u1", "u2", false},
		{"numbers across kinds", 3, float64(3), true},
		{"list contains scalar", []any{"u1", "u2"}, "u2", true},
		{"list misses scalar", []string{"u1"}, "u3", false},
		{"lists overlap", []any{"g1", "g2"}, []string{"g2", "g9"}, true},
		{"lists disjoint", []any{"g1"}, []any{"g2"}, false},
		{"nil against value", nil, "u1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Matches(tc.a, tc.b))
			require.Equal(t, tc.want, Matches(tc.b, tc.a))
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	src := map[string]any{"nested": map[string]any{"list": []any{"x"}}}
	dst := CloneMap(src)
	dst["nested"].(map[string]any)["list"].([]any)[0] = "y"
	require.Equal(t, "x", src["nested"].(map[string]any)["list"].([]any)[0])
}

func TestStrings(t *testing.T) {
	out, ok := Strings([]any{"a", "b"})
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, out)

	_, ok = Strings([]any{"a", 1})
	require.False(t, ok)

	out, ok = Strings("solo")
	require.True(t, ok)
	require.Equal(t, []string{"solo"}, out)
}
