package analytics

import (
	"sort"
	"time"

	"inventory-analytics/internal/models"
	"inventory-analytics/internal/table"

	"go.uber.org/zap"
)

// WarehousePerformance computes utilization, throughput per movement type,
// inter-warehouse transfer flows and stock by region.
type WarehousePerformance struct {
	logger *zap.Logger
}

// NewWarehousePerformance creates the warehouse module.
func NewWarehousePerformance(logger *zap.Logger) *WarehousePerformance {
	return &WarehousePerformance{logger: logger.With(zap.String("component", "warehouse_performance"))}
}

func (w *WarehousePerformance) Name() string { return "warehouse" }

// Compute builds utilization, in/out efficiency, transfer and region tables.
func (w *WarehousePerformance) Compute(in *table.Set) *table.Set {
	out := table.NewSet()

	stockTable := in.Lookup(models.TableStock)
	warehouseTable := in.Lookup(models.TableWarehouses)
	movementTable := in.Lookup(models.TableMovements)

	stock := models.DecodeStock(stockTable)
	warehouses := models.DecodeWarehouses(warehouseTable)
	movements := models.DecodeMovements(movementTable)

	if len(stock) > 0 && len(warehouses) > 0 && warehouseTable.Has("capacity") {
		out.Put(TableUtilization, utilization(stock, warehouses))
	}
	if len(movements) > 0 {
		out.Put(TableInOutEfficiency, inOutEfficiency(movements))
		if movementTable.Has("from_warehouse_id") && movementTable.Has("to_warehouse_id") {
			out.Put(TableTransferPatterns, transferPatterns(movements))
		}
	}
	if len(stock) > 0 && warehouseTable.Has("region") {
		out.Put(TableGeoDistribution, geoDistribution(stock, warehouses))
	}

	w.logger.Debug("Computed warehouse performance", zap.Strings("tables", out.Names()))
	return out
}

func stockByWarehouse(stock []models.StockRow) map[string]float64 {
	totals := make(map[string]float64)
	for _, s := range stock {
		totals[s.WarehouseID] += deref(s.Quantity, 0)
	}
	return totals
}

// utilization is reported for every catalogued warehouse in catalog order.
func utilization(stock []models.StockRow, warehouses []models.Warehouse) *table.Table {
	totals := stockByWarehouse(stock)
	t := table.New(
		table.Column{Name: "warehouse_id", Kind: table.KindString},
		table.Column{Name: "capacity", Kind: table.KindFloat},
		table.Column{Name: "total_qty", Kind: table.KindFloat},
		table.Column{Name: "utilization_rate", Kind: table.KindFloat},
	)
	for _, wh := range warehouses {
		total := totals[wh.ID]
		var capacity any
		rate := nan
		if wh.Capacity != nil {
			capacity = *wh.Capacity
			rate = ratio(total, *wh.Capacity)
		}
		t.Append(wh.ID, capacity, total, rate)
	}
	return t
}

// attributedWarehouse picks the warehouse a movement counts against: the
// source for outbound types, the destination otherwise, falling back to the
// plain warehouse_id column.
func attributedWarehouse(mv models.Movement) *string {
	directional := mv.ToWarehouseID
	if models.IsOutbound(mv.Type) {
		directional = mv.FromWarehouseID
	}
	if directional != nil {
		return directional
	}
	return mv.WarehouseID
}

// inOutEfficiency averages daily summed quantity per (warehouse, type) over
// the days on which that pair moved stock.
func inOutEfficiency(movements []models.Movement) *table.Table {
	type pair struct{ warehouseID, movementType string }
	type day struct {
		pair
		date time.Time
	}
	daily := make(map[day]float64)
	for _, mv := range movements {
		wh := attributedWarehouse(mv)
		if wh == nil {
			continue
		}
		daily[day{pair{*wh, mv.Type}, mv.Date()}] += mv.Quantity
	}

	type acc struct {
		sum  float64
		days int
	}
	pairs := make(map[pair]*acc)
	for d, qty := range daily {
		a, ok := pairs[d.pair]
		if !ok {
			a = &acc{}
			pairs[d.pair] = a
		}
		a.sum += qty
		a.days++
	}

	keys := make([]pair, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].warehouseID != keys[j].warehouseID {
			return keys[i].warehouseID < keys[j].warehouseID
		}
		return keys[i].movementType < keys[j].movementType
	})

	t := table.New(
		table.Column{Name: "warehouse_id", Kind: table.KindString},
		table.Column{Name: "movement_type", Kind: table.KindString},
		table.Column{Name: "avg_daily_qty", Kind: table.KindFloat},
	)
	for _, k := range keys {
		a := pairs[k]
		t.Append(k.warehouseID, k.movementType, a.sum/float64(a.days))
	}
	return t
}

// transferPatterns sums transferred quantity per directed warehouse pair.
// Transfers missing either end are left out.
func transferPatterns(movements []models.Movement) *table.Table {
	type edge struct{ from, to string }
	flows := make(map[edge]float64)
	for _, mv := range movements {
		if !models.IsTransfer(mv.Type) || mv.FromWarehouseID == nil || mv.ToWarehouseID == nil {
			continue
		}
		flows[edge{*mv.FromWarehouseID, *mv.ToWarehouseID}] += mv.Quantity
	}

	keys := make([]edge, 0, len(flows))
	for k := range flows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})

	t := table.New(
		table.Column{Name: "from_warehouse_id", Kind: table.KindString},
		table.Column{Name: "to_warehouse_id", Kind: table.KindString},
		table.Column{Name: "qty_transferred", Kind: table.KindFloat},
	)
	for _, k := range keys {
		t.Append(k.from, k.to, flows[k])
	}
	return t
}

// geoDistribution totals stock per region. Stock in uncatalogued warehouses or
// warehouses without a region lands in the null region.
func geoDistribution(stock []models.StockRow, warehouses []models.Warehouse) *table.Table {
	region := make(map[string]*string, len(warehouses))
	for _, wh := range warehouses {
		region[wh.ID] = wh.Region
	}
	totals := make(map[optKey]float64)
	for _, s := range stock {
		totals[keyOf(region[s.WarehouseID])] += deref(s.Quantity, 0)
	}

	keys := make([]optKey, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sortOptKeys(keys)

	t := table.New(
		table.Column{Name: "region", Kind: table.KindString},
		table.Column{Name: "total_qty", Kind: table.KindFloat},
	)
	for _, k := range keys {
		t.Append(k.cell(), totals[k])
	}
	return t
}
