package postgres

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
	"github.com/odyssey-cms/odyssey-cms/internal/query"
)

// builder compiles document queries into SQL predicates over the body column.
type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) jsonArg(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("storage/postgres: encode value: %w", err)
	}
	return b.arg(string(raw)) + "::jsonb", nil
}

func (b *builder) path(field string) string {
	return b.arg(strings.Split(field, ".")) + "::text[]"
}

// where renders q as a conjunction. Keys are visited in sorted order so the
// generated SQL is stable.
func (b *builder) where(q map[string]any) (string, error) {
	if len(q) == 0 {
		return "TRUE", nil
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		var (
			clause string
			err    error
		)
		switch key {
		case query.OpAnd, query.OpOr:
			clause, err = b.logical(key, q[key])
		default:
			clause, err = b.field(key, q[key])
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (b *builder) logical(op string, cond any) (string, error) {
	items, ok := fieldpath.AsList(cond)
	if !ok {
		return "", fmt.Errorf("storage/postgres: %s expects a list", op)
	}
	if len(items) == 0 {
		return "TRUE", nil
	}
	joiner := " AND "
	if op == query.OpOr {
		joiner = " OR "
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		sub, ok := item.(map[string]any)
		if !ok {
			return "", fmt.Errorf("storage/postgres: %s expects objects", op)
		}
		clause, err := b.where(sub)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	return "(" + strings.Join(parts, joiner) + ")", nil
}

func (b *builder) field(key string, cond any) (string, error) {
	ops, ok := cond.(map[string]any)
	if !ok || !allOperators(ops) {
		return b.eq(key, cond)
	}
	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(ops))
	for _, op := range names {
		clause, err := b.operator(key, op, ops[op])
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (b *builder) operator(key, op string, v any) (string, error) {
	switch op {
	case query.OpEq:
		return b.eq(key, v)
	case query.OpNe:
		clause, err := b.eq(key, v)
		if err != nil {
			return "", err
		}
		return "NOT COALESCE(" + clause + ", FALSE)", nil
	case query.OpIn, query.OpNin:
		items, ok := fieldpath.AsList(v)
		if !ok {
			return "", fmt.Errorf("storage/postgres: %s expects a list", op)
		}
		if len(items) == 0 {
			if op == query.OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			clause, err := b.eq(key, item)
			if err != nil {
				return "", err
			}
			parts = append(parts, clause)
		}
		clause := "(" + strings.Join(parts, " OR ") + ")"
		if op == query.OpNin {
			return "NOT COALESCE(" + clause + ", FALSE)", nil
		}
		return clause, nil
	case query.OpExists:
		want, _ := v.(bool)
		if want {
			return "(body #> " + b.path(key) + ") IS NOT NULL", nil
		}
		return "(body #> " + b.path(key) + ") IS NULL", nil
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		return b.compare(key, op, v)
	}
	return "", fmt.Errorf("storage/postgres: unsupported operator %s", op)
}

// eq matches a field equal to v or a list field holding an element equal to
// v. Scalars use jsonb containment; objects and lists compare exactly, since
// containment would also accept supersets.
func (b *builder) eq(key string, v any) (string, error) {
	if v == nil {
		p := b.path(key)
		return "((body #> " + p + ") IS NULL OR (body #> " + p + ") = 'null'::jsonb)", nil
	}
	p := b.path(key)
	val, err := b.jsonArg(v)
	if err != nil {
		return "", err
	}
	switch v.(type) {
	case map[string]any, []any:
		return "COALESCE((body #> " + p + ") = " + val +
			" OR (jsonb_typeof(body #> " + p + ") = 'array' AND EXISTS (SELECT 1 FROM jsonb_array_elements(body #> " + p + ") AS elem WHERE elem = " + val + ")), FALSE)", nil
	}
	return "COALESCE((body #> " + p + ") @> " + val + ", FALSE)", nil
}

func (b *builder) compare(key, op string, v any) (string, error) {
	sqlOp := map[string]string{query.OpGt: ">", query.OpGte: ">=", query.OpLt: "<", query.OpLte: "<="}[op]
	if n, ok := fieldpath.Number(v); ok {
		p := b.path(key)
		return "(jsonb_typeof(body #> " + p + ") = 'number' AND (body #>> " + p + ")::numeric " + sqlOp + " " + b.arg(n) + ")", nil
	}
	if s, ok := v.(string); ok {
		return "((body #>> " + b.path(key) + ") " + sqlOp + " " + b.arg(s) + ")", nil
	}
	return "", fmt.Errorf("storage/postgres: %s expects a number or string", op)
}

// orderBy renders the sort fields. Paths are bound as parameters.
func (b *builder) orderBy(fields []string) string {
	if len(fields) == 0 {
		return "created_at ASC, id ASC"
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		dir := "ASC NULLS FIRST"
		if strings.HasPrefix(f, "-") {
			dir = "DESC NULLS LAST"
			f = strings.TrimPrefix(f, "-")
		}
		parts = append(parts, "(body #> "+b.path(f)+") "+dir)
	}
	return strings.Join(parts, ", ")
}

func allOperators(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}
