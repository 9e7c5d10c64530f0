package analytics

import (
	"testing"
	"time"

	"inventory-analytics/config"
	"inventory-analytics/internal/models"
	"inventory-analytics/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newInventory(deadDays int) *InventoryMetrics {
	return NewInventoryMetrics(config.BusinessConfig{DeadStockDays: deadDays}, clock, zap.NewNop())
}

func TestTurnoverAndDaysOnHand(t *testing.T) {
	in := set(map[string]*table.Table{
		models.TableMovements: movementsTable(
			mv{product: "P1", typ: "OUT", qty: 10, at: day("2025-08-01")},
			mv{product: "P1", typ: "SALE", qty: 5, at: day("2025-08-02")},
			mv{product: "P1", typ: "IN", qty: 100, at: day("2025-08-03")},
			mv{product: "P1", typ: "OUT", qty: 1000, at: day("2024-01-01")},
			mv{product: "P2", typ: "OUT", qty: 4, at: day("2025-08-10")},
			mv{product: "P3", typ: "TRANSFER_OUT", qty: 3, at: day("2025-08-11")},
		),
		models.TableStock: stockTable(
			[]any{"W1", "P1", 10.0, nil},
			[]any{"W2", "P1", 20.0, nil},
			[]any{"W1", "P2", 0.0, nil},
		),
		models.TableProducts: productsTable(
			[]any{"P1", "C1", 2.0},
			[]any{"P2", "C1", nil},
			[]any{"P3", nil, 1.0},
		),
	})

	out := newInventory(180).Compute(in)

	prod := out.Lookup(TableTurnoverProduct)
	assert.Equal(t, []any{"P1", "P2", "P3"}, ids(prod, "product_id"))
	assert.Equal(t, map[any]any{"P1": 30.0, "P2": 4.0, "P3": 3.0}, column(t, prod, "product_id", "cogs_annual"))
	ratios := column(t, prod, "product_id", "stock_turnover_ratio")
	assert.InDelta(t, 1.0, ratios["P1"], 1e-12)
	assertNaN(t, ratios["P2"], "zero average inventory")
	assertNaN(t, ratios["P3"], "no stock rows")

	doh := column(t, out.Lookup(TableDaysOnHand), "product_id", "days_on_hand")
	assert.InDelta(t, 365.0, doh["P1"], 1e-9)
	assertNaN(t, doh["P2"])

	cat := out.Lookup(TableTurnoverCategory)
	require.Equal(t, 2, cat.Len())
	assert.Equal(t, []any{"C1", nil}, ids(cat, "category_id"))
	assert.InDelta(t, 34.0/30.0, cat.Value(0, "stock_turnover_ratio"), 1e-12)
	assert.Equal(t, 34.0, cat.Value(0, "cogs_annual"))
	assertNaN(t, cat.Value(1, "stock_turnover_ratio"))
}

func TestTurnoverWithoutCategoryColumn(t *testing.T) {
	products := table.New(
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "unit_cost", Kind: table.KindFloat},
	)
	products.Append("P1", 1.0)
	in := set(map[string]*table.Table{
		models.TableMovements: movementsTable(mv{product: "P1", typ: "OUT", qty: 1, at: day("2025-08-01")}),
		models.TableProducts:  products,
	})

	out := newInventory(180).Compute(in)
	_, ok := out.Get(TableTurnoverCategory)
	assert.False(t, ok)
	_, ok = out.Get(TableTurnoverProduct)
	assert.True(t, ok)
}

func TestStockAccuracy(t *testing.T) {
	counts := table.New(
		table.Column{Name: "warehouse_id", Kind: table.KindString},
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "count_time", Kind: table.KindTime},
		table.Column{Name: "quantity_physical", Kind: table.KindFloat},
	)
	t1, t2 := day("2025-06-01"), day("2025-07-01")
	counts.Append("W1", "P1", t2, 12.0)
	counts.Append("W1", "P1", t1, 9.0)
	counts.Append("W1", "P1", t2, 14.0)
	counts.Append("W2", "P1", t1, 5.0)
	counts.Append("W1", "P2", t1, 3.0)
	counts.Append("W3", "P9", t1, 3.0)

	in := set(map[string]*table.Table{
		models.TablePhysicalCounts: counts,
		models.TableStock: stockTable(
			[]any{"W1", "P1", 6.0, nil},
			[]any{"W1", "P1", 4.0, nil},
			[]any{"W2", "P1", 20.0, nil},
			[]any{"W1", "P2", 0.0, nil},
		),
	})

	acc := newInventory(180).Compute(in).Lookup(TableStockAccuracy)
	require.Equal(t, 4, acc.Len())

	type pair struct{ w, p string }
	got := make(map[pair]int)
	for i := range acc.Rows {
		got[pair{acc.Value(i, "warehouse_id").(string), acc.Value(i, "product_id").(string)}] = i
	}

	i := got[pair{"W1", "P1"}]
	assert.Equal(t, 14.0, acc.Value(i, "quantity_physical"), "ties on count_time go to the last row")
	assert.Equal(t, 10.0, acc.Value(i, "quantity_system"))
	assert.InDelta(t, 0.6, acc.Value(i, "accuracy_pct"), 1e-12)

	assert.InDelta(t, 0.25, acc.Value(got[pair{"W2", "P1"}], "accuracy_pct"), 1e-12)
	assertNaN(t, acc.Value(got[pair{"W1", "P2"}], "accuracy_pct"), "zero system quantity")

	i = got[pair{"W3", "P9"}]
	assert.Nil(t, acc.Value(i, "quantity_system"))
	assertNaN(t, acc.Value(i, "accuracy_pct"))
}

func TestDeadStockThresholdIsStrict(t *testing.T) {
	in := set(map[string]*table.Table{
		models.TableMovements: movementsTable(
			mv{product: "EXACT", typ: "OUT", qty: 1, at: fixedNow.AddDate(0, 0, -180)},
			mv{product: "OLDER", typ: "OUT", qty: 1, at: fixedNow.AddDate(0, 0, -181)},
			mv{product: "FRESH", typ: "IN", qty: 1, at: fixedNow.AddDate(0, 0, -400)},
			mv{product: "FRESH", typ: "IN", qty: 1, at: fixedNow.Add(-time.Hour)},
		),
	})

	dead := newInventory(180).Compute(in).Lookup(TableDeadStock)
	require.Equal(t, 1, dead.Len())
	assert.Equal(t, "OLDER", dead.Value(0, "product_id"))
	assert.Equal(t, int64(181), dead.Value(0, "days_since_last_movement"))
}

func TestDeadStockScenario(t *testing.T) {
	in := set(map[string]*table.Table{
		models.TableMovements: movementsTable(
			mv{product: "A", typ: "OUT", qty: 1, at: day("2024-01-01")},
			mv{product: "B", typ: "OUT", qty: 1, at: day("2025-07-01")},
		),
		models.TableStock: table.New(),
	})

	out := newInventory(180).Compute(in)
	dead := out.Lookup(TableDeadStock)
	assert.Equal(t, []any{"A"}, ids(dead, "product_id"))

	_, ok := out.Get(TableStockAccuracy)
	assert.False(t, ok)
}

func TestInventoryWithoutMovements(t *testing.T) {
	out := newInventory(180).Compute(set(map[string]*table.Table{
		models.TableStock: stockTable([]any{"W1", "P1", 1.0, nil}),
	}))
	assert.Equal(t, 0, out.Len())
}
