package analytics

import (
	"testing"

	"inventory-analytics/internal/models"
	"inventory-analytics/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func warehousesTable() *table.Table {
	t := table.New(
		table.Column{Name: "warehouse_id", Kind: table.KindString},
		table.Column{Name: "capacity", Kind: table.KindFloat},
		table.Column{Name: "region", Kind: table.KindString},
	)
	t.Append("W1", 100.0, "north")
	t.Append("W2", 0.0, "south")
	t.Append("W3", nil, nil)
	return t
}

func TestUtilizationAndGeoDistribution(t *testing.T) {
	in := set(map[string]*table.Table{
		models.TableWarehouses: warehousesTable(),
		models.TableStock: stockTable(
			[]any{"W1", "P1", 30.0, nil},
			[]any{"W1", "P2", 20.0, nil},
			[]any{"W2", "P1", 5.0, nil},
			[]any{"W3", "P1", 2.0, nil},
			[]any{"W9", "P1", 1.0, nil},
		),
	})
	out := NewWarehousePerformance(zap.NewNop()).Compute(in)

	util := out.Lookup(TableUtilization)
	assert.Equal(t, []any{"W1", "W2", "W3"}, ids(util, "warehouse_id"))
	assert.Equal(t, 0.5, util.Value(0, "utilization_rate"))
	assertNaN(t, util.Value(1, "utilization_rate"), "zero capacity")
	assertNaN(t, util.Value(2, "utilization_rate"), "missing capacity")
	assert.Equal(t, 2.0, util.Value(2, "total_qty"))

	geo := out.Lookup(TableGeoDistribution)
	assert.Equal(t, []any{"north", "south", nil}, ids(geo, "region"))
	assert.Equal(t, []any{50.0, 5.0, 3.0}, ids(geo, "total_qty"))
}

func TestWarehouseTablesNeedCatalogAttributes(t *testing.T) {
	bare := table.New(table.Column{Name: "warehouse_id", Kind: table.KindString})
	bare.Append("W1")
	in := set(map[string]*table.Table{
		models.TableWarehouses: bare,
		models.TableStock:      stockTable([]any{"W1", "P1", 30.0, nil}),
	})
	out := NewWarehousePerformance(zap.NewNop()).Compute(in)
	assert.Equal(t, 0, out.Len())
}

func TestInOutEfficiencyAttribution(t *testing.T) {
	in := set(map[string]*table.Table{
		models.TableMovements: movementsTable(
			mv{product: "P1", typ: "IN", qty: 10, at: day("2025-01-01"), to: "W1"},
			mv{product: "P1", typ: "IN", qty: 6, at: day("2025-01-01"), to: "W1"},
			mv{product: "P2", typ: "IN", qty: 4, at: day("2025-01-02"), to: "W1"},
			mv{product: "P1", typ: "OUT", qty: 3, at: day("2025-01-02"), from: "W1", to: "W2"},
			mv{product: "P1", typ: "TRANSFER", qty: 8, at: day("2025-01-03"), from: "W1", to: "W2"},
			mv{product: "P1", typ: "SALE", qty: 1, at: day("2025-01-03"), to: "W2"},
		),
	})
	out := NewWarehousePerformance(zap.NewNop()).Compute(in)

	eff := out.Lookup(TableInOutEfficiency)
	require.Equal(t, 3, eff.Len(), "the SALE without a source warehouse is dropped")
	assert.Equal(t, []any{"W1", "IN", 10.0}, eff.Rows[0])
	assert.Equal(t, []any{"W1", "OUT", 3.0}, eff.Rows[1])
	assert.Equal(t, []any{"W2", "TRANSFER", 8.0}, eff.Rows[2])

	transfers := out.Lookup(TableTransferPatterns)
	require.Equal(t, 1, transfers.Len())
	assert.Equal(t, []any{"W1", "W2", 8.0}, transfers.Rows[0])
}

func TestInOutEfficiencyFallsBackToWarehouseColumn(t *testing.T) {
	movements := table.New(
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "movement_type", Kind: table.KindString},
		table.Column{Name: "quantity", Kind: table.KindFloat},
		table.Column{Name: "movement_time", Kind: table.KindTime},
		table.Column{Name: "warehouse_id", Kind: table.KindString},
	)
	movements.Append("A", "OUT", 10.0, day("2025-01-01"), "W1")
	movements.Append("A", "IN", 5.0, day("2025-01-01"), "W1")
	movements.Append("B", "OUT", 7.0, day("2025-01-02"), "W2")

	out := NewWarehousePerformance(zap.NewNop()).Compute(set(map[string]*table.Table{models.TableMovements: movements}))

	eff := out.Lookup(TableInOutEfficiency)
	assert.Equal(t, 3, eff.Len())
	_, ok := out.Get(TableTransferPatterns)
	assert.False(t, ok, "no from/to columns, no transfer table")
}
