package analytics

import (
	"math"
	"sort"
	"time"

	"inventory-analytics/config"
	"inventory-analytics/internal/models"
	"inventory-analytics/internal/table"

	"go.uber.org/zap"
)

const cogsWindow = 365 * 24 * time.Hour

// InventoryMetrics computes turnover, days on hand, stock accuracy and dead
// stock.
type InventoryMetrics struct {
	deadStockDays int
	now           Clock
	logger        *zap.Logger
}

// NewInventoryMetrics creates the inventory module. A nil clock uses time.Now.
func NewInventoryMetrics(rules config.BusinessConfig, now Clock, logger *zap.Logger) *InventoryMetrics {
	if now == nil {
		now = time.Now
	}
	return &InventoryMetrics{
		deadStockDays: rules.DeadStockDays,
		now:           now,
		logger:        logger.With(zap.String("component", "inventory_metrics")),
	}
}

func (m *InventoryMetrics) Name() string { return "inventory" }

// Compute builds turnover, days on hand, stock accuracy and dead stock.
func (m *InventoryMetrics) Compute(in *table.Set) *table.Set {
	out := table.NewSet()
	now := m.now()

	products := models.DecodeProducts(in.Lookup(models.TableProducts))
	stock := models.DecodeStock(in.Lookup(models.TableStock))
	movements := models.DecodeMovements(in.Lookup(models.TableMovements))
	counts := models.DecodePhysicalCounts(in.Lookup(models.TablePhysicalCounts))

	if len(movements) > 0 {
		turnover := m.turnover(now, movements, stock, products)
		out.Put(TableTurnoverProduct, turnover.productTable())
		if in.Lookup(models.TableProducts).Has("category_id") {
			out.Put(TableTurnoverCategory, turnover.categoryTable(products))
		}
		out.Put(TableDaysOnHand, turnover.daysOnHandTable())
	}

	if len(counts) > 0 && len(stock) > 0 {
		out.Put(TableStockAccuracy, stockAccuracy(counts, stock))
	}

	if len(movements) > 0 {
		out.Put(TableDeadStock, m.deadStock(now, movements))
	}

	m.logger.Debug("Computed inventory metrics", zap.Strings("tables", out.Names()))
	return out
}

type turnoverRow struct {
	productID string
	cogs      float64
	avgValue  float64
}

type turnoverResult []turnoverRow

// turnover relates outbound cost over the trailing year to the average stocked
// value. A product without unit cost counts at cost 1 on both sides.
func (m *InventoryMetrics) turnover(now time.Time, movements []models.Movement, stock []models.StockRow, products []models.Product) turnoverResult {
	catalog := models.ProductIndex(products)
	cost := func(pid string) float64 {
		if p, ok := catalog[pid]; ok && p.UnitCost != nil {
			return *p.UnitCost
		}
		return 1
	}

	cutoff := now.Add(-cogsWindow)
	cogs := make(map[string]float64)
	for _, mv := range movements {
		if mv.Time.Before(cutoff) || !models.IsOutbound(mv.Type) {
			continue
		}
		cogs[mv.ProductID] += mv.Quantity * cost(mv.ProductID)
	}

	type acc struct {
		sum float64
		n   int
	}
	qty := make(map[string]*acc)
	for _, s := range stock {
		a, ok := qty[s.ProductID]
		if !ok {
			a = &acc{}
			qty[s.ProductID] = a
		}
		if s.Quantity != nil {
			a.sum += *s.Quantity
			a.n++
		}
	}

	var res turnoverResult
	for _, pid := range sortedKeys(cogs) {
		avg := nan
		if a, ok := qty[pid]; ok && a.n > 0 {
			avg = a.sum / float64(a.n) * cost(pid)
		}
		res = append(res, turnoverRow{productID: pid, cogs: cogs[pid], avgValue: avg})
	}
	return res
}

func turnoverColumns(key string) []table.Column {
	return []table.Column{
		{Name: key, Kind: table.KindString},
		{Name: "cogs_annual", Kind: table.KindFloat},
		{Name: "avg_inventory_value", Kind: table.KindFloat},
		{Name: "stock_turnover_ratio", Kind: table.KindFloat},
	}
}

func (r turnoverResult) productTable() *table.Table {
	t := table.New(turnoverColumns("product_id")...)
	for _, row := range r {
		t.Append(row.productID, row.cogs, row.avgValue, ratio(row.cogs, row.avgValue))
	}
	return t
}

// categoryTable sums numerators and denominators per category before dividing.
// Undefined product denominators contribute nothing to the sum.
func (r turnoverResult) categoryTable(products []models.Product) *table.Table {
	catalog := models.ProductIndex(products)
	type acc struct{ cogs, value float64 }
	groups := make(map[optKey]*acc)
	for _, row := range r {
		var category *string
		if p, ok := catalog[row.productID]; ok {
			category = p.CategoryID
		}
		k := keyOf(category)
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.cogs += row.cogs
		if !math.IsNaN(row.avgValue) {
			a.value += row.avgValue
		}
	}

	keys := make([]optKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sortOptKeys(keys)

	t := table.New(turnoverColumns("category_id")...)
	for _, k := range keys {
		a := groups[k]
		t.Append(k.cell(), a.cogs, a.value, ratio(a.cogs, a.value))
	}
	return t
}

func (r turnoverResult) daysOnHandTable() *table.Table {
	t := table.New(
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "days_on_hand", Kind: table.KindFloat},
	)
	for _, row := range r {
		t.Append(row.productID, ratio(365, ratio(row.cogs, row.avgValue)))
	}
	return t
}

type pairKey struct {
	warehouseID string
	productID   string
}

// stockAccuracy compares the latest physical count of each pair with the
// summed system quantity. Among counts sharing the latest timestamp the last
// row wins.
func stockAccuracy(counts []models.PhysicalCount, stock []models.StockRow) *table.Table {
	latest := make(map[pairKey]models.PhysicalCount)
	for _, c := range counts {
		k := pairKey{c.WarehouseID, c.ProductID}
		if prev, ok := latest[k]; ok && c.CountTime.Before(prev.CountTime) {
			continue
		}
		latest[k] = c
	}

	system := make(map[pairKey]float64)
	for _, s := range stock {
		k := pairKey{s.WarehouseID, s.ProductID}
		system[k] += deref(s.Quantity, 0)
	}

	keys := make([]pairKey, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].warehouseID != keys[j].warehouseID {
			return keys[i].warehouseID < keys[j].warehouseID
		}
		return keys[i].productID < keys[j].productID
	})

	t := table.New(
		table.Column{Name: "warehouse_id", Kind: table.KindString},
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "count_time", Kind: table.KindTime},
		table.Column{Name: "quantity_physical", Kind: table.KindFloat},
		table.Column{Name: "quantity_system", Kind: table.KindFloat},
		table.Column{Name: "accuracy_pct", Kind: table.KindFloat},
	)
	for _, k := range keys {
		c := latest[k]
		physical := deref(c.Quantity, nan)
		var sysCell any
		accuracy := nan
		if sys, ok := system[k]; ok {
			sysCell = sys
			accuracy = 1 - ratio(math.Abs(physical-sys), sys)
		}
		var physCell any
		if c.Quantity != nil {
			physCell = physical
		}
		t.Append(k.warehouseID, k.productID, c.CountTime, physCell, sysCell, accuracy)
	}
	return t
}

// deadStock flags products whose last movement is strictly more than the
// threshold in whole days ago. Products without movements are not evaluated.
func (m *InventoryMetrics) deadStock(now time.Time, movements []models.Movement) *table.Table {
	last := make(map[string]time.Time)
	for _, mv := range movements {
		if prev, ok := last[mv.ProductID]; !ok || mv.Time.After(prev) {
			last[mv.ProductID] = mv.Time
		}
	}

	t := table.New(
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "last_movement", Kind: table.KindTime},
		table.Column{Name: "days_since_last_movement", Kind: table.KindInt},
	)
	for _, pid := range sortedKeys(last) {
		days := int64(math.Floor(now.Sub(last[pid]).Hours() / 24))
		if days > int64(m.deadStockDays) {
			t.Append(pid, last[pid], days)
		}
	}
	return t
}
