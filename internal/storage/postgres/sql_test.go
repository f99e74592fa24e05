package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-cms/odyssey-cms/internal/storage"
)

func TestBuildFindArchivedFilter(t *testing.T) {
	sql, args, err := buildFind("collection-widgets__en", storage.FindParams{
		Query: map[string]any{"_archived": map[string]any{"$ne": true}},
		Sort:  []string{"-createdAt"},
		Limit: 10,
	})
	require.NoError(t, err)
	require.Equal(t,
		"SELECT body FROM cms_documents WHERE collection = $1 AND NOT COALESCE(COALESCE((body #> $2::text[]) @> $3::jsonb, FALSE), FALSE)"+
			" ORDER BY (body #> $4::text[]) DESC NULLS LAST LIMIT $5",
		sql)
	require.Equal(t, []any{"collection-widgets__en", []string{"_archived"}, "true", []string{"createdAt"}, 10}, args)
}

func TestBuildCountCombinesClauses(t *testing.T) {
	sql, args, err := buildCount("c", map[string]any{
		"owner.id": "u1",
		"tags":     map[string]any{"$in": []any{}},
		"$or": []any{
			map[string]any{"price": map[string]any{"$gt": 5}},
			map[string]any{"deleted": nil},
		},
	})
	require.NoError(t, err)
	require.Equal(t,
		"SELECT count(*) FROM cms_documents WHERE collection = $1 AND (("+
			"(jsonb_typeof(body #> $2::text[]) = 'number' AND (body #>> $2::text[])::numeric > $3)"+
			" OR ((body #> $4::text[]) IS NULL OR (body #> $4::text[]) = 'null'::jsonb))"+
			" AND COALESCE((body #> $5::text[]) @> $6::jsonb, FALSE) AND FALSE)",
		sql)
	require.Len(t, args, 6)
	require.Equal(t, []string{"owner", "id"}, args[4])
	require.Equal(t, `"u1"`, args[5])
}

func TestBuildObjectEqualityIsExact(t *testing.T) {
	sql, args, err := buildCount("c", map[string]any{"meta": map[string]any{"a": 1}})
	require.NoError(t, err)
	require.Equal(t,
		"SELECT count(*) FROM cms_documents WHERE collection = $1 AND "+
			"COALESCE((body #> $2::text[]) = $3::jsonb OR (jsonb_typeof(body #> $2::text[]) = 'array' AND "+
			"EXISTS (SELECT 1 FROM jsonb_array_elements(body #> $2::text[]) AS elem WHERE elem = $3::jsonb)), FALSE)",
		sql)
	require.Equal(t, []any{"c", []string{"meta"}, `{"a":1}`}, args)
	require.NotContains(t, sql, "@>")
}

func TestBuilderRejectsUnknownOperator(t *testing.T) {
	_, _, err := buildCount("c", map[string]any{"name": map[string]any{"$regex": "x"}})
	require.Error(t, err)
}

func TestUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isUniqueViolation(errors.New("boom")))
}
