package sqlx

import (
	"database/sql"
	"sort"
)

// Args carries named parameters for a query. Keys map to :name
// placeholders in the registered SQL.
type Args map[string]any

// Named flattens the map into sorted sql.Named values.
func (a Args) Named() []any {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]any, 0, len(a))
	for _, k := range names {
		out = append(out, sql.Named(k, a[k]))
	}
	return out
}
