package models

import (
	"testing"
	"time"

	"inventory-analytics/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMovements(t *testing.T) {
	tbl := table.New(
		table.Column{Name: "movement_id"},
		table.Column{Name: "product_id"},
		table.Column{Name: "movement_type"},
		table.Column{Name: "quantity"},
		table.Column{Name: "movement_time"},
		table.Column{Name: "from_warehouse_id"},
	)
	tbl.Append("M1", "P1", "sale", "-4", "2025-01-01 09:00:00", "W1")
	tbl.Append("M2", nil, "IN", "3", "2025-01-01 09:00:00", nil)
	tbl.Append("M3", "P2", "IN", "3", "garbage", nil)
	tbl.Append(int64(4), float64(12), "TRANSFER_IN", nil, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), "")

	got := DecodeMovements(tbl)
	require.Len(t, got, 2)

	assert.Equal(t, "M1", got[0].ID)
	assert.Equal(t, MovementSale, got[0].Type)
	assert.Equal(t, 4.0, got[0].Quantity)
	assert.Equal(t, -4.0, got[0].Signed())
	require.NotNil(t, got[0].FromWarehouseID)
	assert.Equal(t, "W1", *got[0].FromWarehouseID)
	assert.Nil(t, got[0].ToWarehouseID)

	assert.Equal(t, "4", got[1].ID)
	assert.Equal(t, "12", got[1].ProductID)
	assert.Equal(t, 0.0, got[1].Quantity)
	assert.Nil(t, got[1].FromWarehouseID)
}

func TestMovementClassification(t *testing.T) {
	for _, typ := range []string{"OUT", "SALE", "TRANSFER_OUT", "out"} {
		assert.True(t, IsOutbound(typ), typ)
	}
	for _, typ := range []string{"IN", "TRANSFER", "TRANSFER_IN", "ADJUSTMENT"} {
		assert.False(t, IsOutbound(typ), typ)
	}
	assert.True(t, IsTransfer("transfer_out"))
	assert.False(t, IsTransfer("SALE"))
}

func TestDecodeCatalogs(t *testing.T) {
	products := table.New(table.Column{Name: "product_id"}, table.Column{Name: "unit_cost"}, table.Column{Name: "category_id"})
	products.Append("P1", "2.5", "C1")
	products.Append("P2", "n/a", nil)

	got := DecodeProducts(products)
	require.Len(t, got, 2)
	assert.Equal(t, 2.5, *got[0].UnitCost)
	assert.Nil(t, got[1].UnitCost)
	assert.Nil(t, got[1].CategoryID)

	counts := table.New(table.Column{Name: "warehouse_id"}, table.Column{Name: "product_id"}, table.Column{Name: "count_time"}, table.Column{Name: "quantity"})
	counts.Append("W1", "P1", "2025-01-05", "9")
	pc := DecodePhysicalCounts(counts)
	require.Len(t, pc, 1)
	assert.Equal(t, 9.0, *pc[0].Quantity)
}
