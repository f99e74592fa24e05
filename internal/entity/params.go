package entity

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
)

const (
	paramID                = "id"
	paramQuery             = "query"
	paramPopulate          = "populate"
	paramQueryByPopulation = "queryByPopulation"
	paramPage              = "page"
	paramPageSize          = "pageSize"
	paramSort              = "sort"
	paramLimit             = "limit"
	paramOffset            = "offset"
	paramEntity            = "entity"
	paramEntities          = "entities"
)

var controlParams = map[string]struct{}{
	paramID: {}, paramQuery: {}, paramPopulate: {}, paramQueryByPopulation: {},
	paramPage: {}, paramPageSize: {}, paramSort: {}, paramLimit: {}, paramOffset: {},
	"fields": {}, "search": {}, "collectionName": {}, "language": {},
}

// ListResult is the paginated envelope returned by list.
type ListResult struct {
	Rows       []map[string]any `json:"rows"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalPages int              `json:"totalPages"`
}

func newListResult(rows []map[string]any, p shared.Pagination) ListResult {
	if rows == nil {
		rows = []map[string]any{}
	}
	return ListResult{Rows: rows, Total: p.Total, Page: p.Page, PageSize: p.PageSize, TotalPages: p.TotalPages}
}

// queryParam normalises params["query"] into a map and stores it back so
// later hooks see the same value. JSON encoded strings are accepted.
func queryParam(params map[string]any) (map[string]any, error) {
	var q map[string]any
	switch v := params[paramQuery].(type) {
	case nil:
		q = map[string]any{}
	case map[string]any:
		q = v
	case string:
		if strings.TrimSpace(v) == "" {
			q = map[string]any{}
			break
		}
		if err := json.Unmarshal([]byte(v), &q); err != nil {
			return nil, fmt.Errorf("%w: query is not valid JSON", shared.ErrValidation)
		}
		if q == nil {
			q = map[string]any{}
		}
	default:
		return nil, fmt.Errorf("%w: query must be an object", shared.ErrValidation)
	}
	params[paramQuery] = q
	return q, nil
}

func populateParam(params map[string]any) []string {
	switch v := params[paramPopulate].(type) {
	case nil:
		return nil
	case string:
		var out []string
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
		return out
	default:
		out, _ := fieldpath.Strings(v)
		return out
	}
}

func addPopulate(params map[string]any, field string) {
	fields := populateParam(params)
	for _, f := range fields {
		if f == field {
			return
		}
	}
	params[paramPopulate] = append(fields, field)
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	}
	if n, ok := fieldpath.Number(v); ok {
		return n != 0
	}
	return false
}

func stringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// idsParam returns the requested ids and whether a single id was given.
func idsParam(params map[string]any) ([]string, bool, error) {
	switch v := params[paramID].(type) {
	case string:
		if v != "" {
			return []string{v}, true, nil
		}
	case nil:
	default:
		if ids, ok := fieldpath.Strings(v); ok && len(ids) > 0 {
			return ids, false, nil
		}
	}
	return nil, false, fmt.Errorf("%w: id is required", shared.ErrValidation)
}

// entityParams strips routing and query controls from params, leaving the
// record fields.
func entityParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if _, skip := controlParams[k]; skip {
			continue
		}
		out[k] = v
	}
	return out
}

// mapRecords applies fn to every record carried by an action result.
// copyRecords copies the record containers of res and each top-level record
// map so callers can drop keys without touching res.
func copyRecords(res any) any {
	switch v := res.(type) {
	case map[string]any:
		return maps.Clone(v)
	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i, doc := range v {
			out[i] = maps.Clone(doc)
		}
		return out
	case ListResult:
		v.Rows = copyRecords(v.Rows).([]map[string]any)
		return v
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			if m, ok := item.(map[string]any); ok {
				out[i] = maps.Clone(m)
				continue
			}
			out[i] = item
		}
		return out
	}
	return res
}

func mapRecords(res any, fn func(map[string]any) map[string]any) any {
	switch v := res.(type) {
	case map[string]any:
		return fn(v)
	case []map[string]any:
		for i := range v {
			v[i] = fn(v[i])
		}
		return v
	case ListResult:
		for i := range v.Rows {
			v.Rows[i] = fn(v.Rows[i])
		}
		return v
	case []any:
		for i, item := range v {
			if m, ok := item.(map[string]any); ok {
				v[i] = fn(m)
			}
		}
		return v
	}
	return res
}
