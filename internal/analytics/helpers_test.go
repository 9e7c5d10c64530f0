package analytics

import (
	"math"
	"testing"
	"time"

	"inventory-analytics/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// mv is a compact movement row: product, type, quantity, time and optional
// from/to warehouses.
type mv struct {
	product string
	typ     string
	qty     float64
	at      time.Time
	from    any
	to      any
}

func movementsTable(rows ...mv) *table.Table {
	t := table.New(
		table.Column{Name: "movement_id", Kind: table.KindString},
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "movement_type", Kind: table.KindString},
		table.Column{Name: "quantity", Kind: table.KindFloat},
		table.Column{Name: "movement_time", Kind: table.KindTime},
		table.Column{Name: "from_warehouse_id", Kind: table.KindString},
		table.Column{Name: "to_warehouse_id", Kind: table.KindString},
	)
	for i, r := range rows {
		t.Append(string(rune('a'+i)), r.product, r.typ, r.qty, r.at, r.from, r.to)
	}
	return t
}

func stockTable(rows ...[]any) *table.Table {
	t := table.New(
		table.Column{Name: "warehouse_id", Kind: table.KindString},
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "quantity", Kind: table.KindFloat},
		table.Column{Name: "last_update", Kind: table.KindTime},
	)
	for _, r := range rows {
		t.Append(r...)
	}
	return t
}

func productsTable(rows ...[]any) *table.Table {
	t := table.New(
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "category_id", Kind: table.KindString},
		table.Column{Name: "unit_cost", Kind: table.KindFloat},
	)
	for _, r := range rows {
		t.Append(r...)
	}
	return t
}

func set(tables map[string]*table.Table) *table.Set {
	s := table.NewSet()
	for name, t := range tables {
		s.Put(name, t)
	}
	return s
}

// column extracts one column of a result table keyed by the first column.
func column(t *testing.T, tbl *table.Table, key, name string) map[any]any {
	t.Helper()
	require.True(t, tbl.Has(key), "missing column %s", key)
	require.True(t, tbl.Has(name), "missing column %s", name)
	out := make(map[any]any, tbl.Len())
	for i := range tbl.Rows {
		out[tbl.Value(i, key)] = tbl.Value(i, name)
	}
	return out
}

func assertNaN(t *testing.T, v any, msgAndArgs ...any) {
	t.Helper()
	f, ok := v.(float64)
	if assert.True(t, ok, msgAndArgs...) {
		assert.True(t, math.IsNaN(f), msgAndArgs...)
	}
}

func ids(tbl *table.Table, col string) []any {
	out := make([]any, tbl.Len())
	for i := range tbl.Rows {
		out[i] = tbl.Value(i, col)
	}
	return out
}
