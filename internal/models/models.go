package models

import (
	"math"
	"strings"
	"time"

	"inventory-analytics/internal/table"
)

// Logical source table names.
const (
	TableProducts       = "products"
	TableWarehouses     = "warehouses"
	TableStock          = "stock"
	TableMovements      = "movements"
	TablePhysicalCounts = "physical_counts"
)

// Movement types
const (
	MovementIn          = "IN"
	MovementOut         = "OUT"
	MovementTransfer    = "TRANSFER"
	MovementAdjustment  = "ADJUSTMENT"
	MovementSale        = "SALE"
	MovementTransferOut = "TRANSFER_OUT"
	MovementTransferIn  = "TRANSFER_IN"
)

// IsOutbound reports whether a movement type decreases stock.
func IsOutbound(movementType string) bool {
	switch strings.ToUpper(movementType) {
	case MovementOut, MovementSale, MovementTransferOut:
		return true
	}
	return false
}

// IsTransfer reports whether a movement type moves stock between warehouses.
func IsTransfer(movementType string) bool {
	return strings.Contains(strings.ToUpper(movementType), MovementTransfer)
}

// Product is a catalog entry. Optional attributes are nil when absent.
type Product struct {
	ID           string
	CategoryID   *string
	SupplierID   *string
	UnitCost     *float64
	ReorderPoint *float64
	SafetyStock  *float64
}

// Warehouse is a warehouse catalog entry.
type Warehouse struct {
	ID       string
	Capacity *float64
	Region   *string
}

// StockRow is one (warehouse, product) stock snapshot row.
type StockRow struct {
	WarehouseID string
	ProductID   string
	Quantity    *float64
	LastUpdate  *time.Time
}

// Movement is one stock movement. Quantity is an unsigned magnitude.
type Movement struct {
	ID              string
	ProductID       string
	Type            string
	Quantity        float64
	Time            time.Time
	FromWarehouseID *string
	ToWarehouseID   *string
	WarehouseID     *string
}

// Signed returns the quantity negated for outbound types.
func (m Movement) Signed() float64 {
	if IsOutbound(m.Type) {
		return -m.Quantity
	}
	return m.Quantity
}

// Date returns the calendar date of the movement in its recorded zone,
// expressed as UTC midnight so dates compare equal across zones.
func (m Movement) Date() time.Time {
	return time.Date(m.Time.Year(), m.Time.Month(), m.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// PhysicalCount is one physical stock count.
type PhysicalCount struct {
	WarehouseID string
	ProductID   string
	CountTime   time.Time
	Quantity    *float64
}

// column reads cells of one column with lenient conversion; unconvertible
// cells read as nil.
type column struct {
	idx  int
	kind table.Kind
}

func col(t *table.Table, kind table.Kind, names ...string) column {
	for _, n := range names {
		if i := t.Index(n); i >= 0 {
			return column{idx: i, kind: kind}
		}
	}
	return column{idx: -1, kind: kind}
}

func (c column) get(row []any) any {
	if c.idx < 0 {
		return nil
	}
	v, err := table.Convert(row[c.idx], c.kind)
	if err != nil || table.IsNull(v) {
		return nil
	}
	return v
}

func (c column) str(row []any) *string {
	v := c.get(row)
	if v == nil {
		return nil
	}
	s, ok := table.AsString(v)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func (c column) float(row []any) *float64 {
	v := c.get(row)
	if v == nil {
		return nil
	}
	f, ok := table.AsFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func (c column) time(row []any) *time.Time {
	v := c.get(row)
	if v == nil {
		return nil
	}
	t, ok := table.AsTime(v)
	if !ok {
		return nil
	}
	return &t
}

// DecodeProducts reads the products catalog. Rows without product_id are skipped.
func DecodeProducts(t *table.Table) []Product {
	if t.Empty() {
		return nil
	}
	id := col(t, table.KindString, "product_id")
	category := col(t, table.KindString, "category_id")
	supplier := col(t, table.KindString, "supplier_id")
	cost := col(t, table.KindFloat, "unit_cost")
	reorder := col(t, table.KindFloat, "reorder_point")
	safety := col(t, table.KindFloat, "safety_stock")

	out := make([]Product, 0, t.Len())
	for _, r := range t.Rows {
		pid := id.str(r)
		if pid == nil {
			continue
		}
		out = append(out, Product{
			ID:           *pid,
			CategoryID:   category.str(r),
			SupplierID:   supplier.str(r),
			UnitCost:     cost.float(r),
			ReorderPoint: reorder.float(r),
			SafetyStock:  safety.float(r),
		})
	}
	return out
}

// DecodeWarehouses reads the warehouse catalog.
func DecodeWarehouses(t *table.Table) []Warehouse {
	if t.Empty() {
		return nil
	}
	id := col(t, table.KindString, "warehouse_id")
	capacity := col(t, table.KindFloat, "capacity")
	region := col(t, table.KindString, "region")

	out := make([]Warehouse, 0, t.Len())
	for _, r := range t.Rows {
		wid := id.str(r)
		if wid == nil {
			continue
		}
		out = append(out, Warehouse{ID: *wid, Capacity: capacity.float(r), Region: region.str(r)})
	}
	return out
}

// DecodeStock reads stock snapshot rows keyed by warehouse and product.
func DecodeStock(t *table.Table) []StockRow {
	if t.Empty() {
		return nil
	}
	wh := col(t, table.KindString, "warehouse_id")
	prod := col(t, table.KindString, "product_id")
	qty := col(t, table.KindFloat, "quantity")
	updated := col(t, table.KindTime, "last_update")

	out := make([]StockRow, 0, t.Len())
	for _, r := range t.Rows {
		w, p := wh.str(r), prod.str(r)
		if p == nil {
			continue
		}
		row := StockRow{ProductID: *p, Quantity: qty.float(r), LastUpdate: updated.time(r)}
		if w != nil {
			row.WarehouseID = *w
		}
		out = append(out, row)
	}
	return out
}

// DecodeMovements reads movement rows. Rows lacking a product or a parseable
// movement_time cannot be placed in time and are skipped.
func DecodeMovements(t *table.Table) []Movement {
	if t.Empty() {
		return nil
	}
	id := col(t, table.KindString, "movement_id")
	prod := col(t, table.KindString, "product_id")
	typ := col(t, table.KindString, "movement_type")
	qty := col(t, table.KindFloat, "quantity")
	ts := col(t, table.KindTime, "movement_time")
	from := col(t, table.KindString, "from_warehouse_id")
	to := col(t, table.KindString, "to_warehouse_id")
	wh := col(t, table.KindString, "warehouse_id")

	out := make([]Movement, 0, t.Len())
	for _, r := range t.Rows {
		p, when := prod.str(r), ts.time(r)
		if p == nil || when == nil {
			continue
		}
		m := Movement{
			ProductID:       *p,
			Time:            *when,
			FromWarehouseID: from.str(r),
			ToWarehouseID:   to.str(r),
			WarehouseID:     wh.str(r),
		}
		if v := id.str(r); v != nil {
			m.ID = *v
		}
		if v := typ.str(r); v != nil {
			m.Type = strings.ToUpper(*v)
		}
		if v := qty.float(r); v != nil {
			m.Quantity = math.Abs(*v)
		}
		out = append(out, m)
	}
	return out
}

// DecodePhysicalCounts reads physical counts. The counted quantity is taken
// from quantity_physical, falling back to quantity.
func DecodePhysicalCounts(t *table.Table) []PhysicalCount {
	if t.Empty() {
		return nil
	}
	wh := col(t, table.KindString, "warehouse_id")
	prod := col(t, table.KindString, "product_id")
	ts := col(t, table.KindTime, "count_time")
	qty := col(t, table.KindFloat, "quantity_physical", "quantity")

	out := make([]PhysicalCount, 0, t.Len())
	for _, r := range t.Rows {
		w, p, when := wh.str(r), prod.str(r), ts.time(r)
		if w == nil || p == nil || when == nil {
			continue
		}
		out = append(out, PhysicalCount{WarehouseID: *w, ProductID: *p, CountTime: *when, Quantity: qty.float(r)})
	}
	return out
}

// ProductIndex indexes products by id; later duplicates win.
func ProductIndex(products []Product) map[string]Product {
	idx := make(map[string]Product, len(products))
	for _, p := range products {
		idx[p.ID] = p
	}
	return idx
}
