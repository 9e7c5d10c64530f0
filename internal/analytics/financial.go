package analytics

import (
	"math"
	"sort"
	"time"

	"inventory-analytics/config"
	"inventory-analytics/internal/models"
	"inventory-analytics/internal/table"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	classAShare   = decimal.RequireFromString("0.80")
	classBShare   = decimal.RequireFromString("0.95")
	minTotal      = decimal.RequireFromString("0.000000001")
	monthsPerYear = decimal.NewFromInt(12)
)

// FinancialMetrics values stock over time and estimates holding cost, stockout
// cost and the ABC consumption classes. Money sums accumulate in decimal.
type FinancialMetrics struct {
	holdingRate     decimal.Decimal
	stockoutPerUnit decimal.Decimal
	now             Clock
	logger          *zap.Logger
}

// NewFinancialMetrics creates the financial module. A nil clock uses time.Now.
func NewFinancialMetrics(rules config.BusinessConfig, now Clock, logger *zap.Logger) *FinancialMetrics {
	if now == nil {
		now = time.Now
	}
	return &FinancialMetrics{
		holdingRate:     decimalOr(rules.HoldingCostRateAnnual, decimal.Zero),
		stockoutPerUnit: decimalOr(rules.StockoutCostPerUnit, decimal.Zero),
		now:             now,
		logger:          logger.With(zap.String("component", "financial_metrics")),
	}
}

func (f *FinancialMetrics) Name() string { return "financial" }

// Compute builds valuation, holding cost, stockout cost and ABC tables.
func (f *FinancialMetrics) Compute(in *table.Set) *table.Set {
	out := table.NewSet()

	products := models.ProductIndex(models.DecodeProducts(in.Lookup(models.TableProducts)))
	stock := models.DecodeStock(in.Lookup(models.TableStock))
	movements := models.DecodeMovements(in.Lookup(models.TableMovements))

	if len(stock) > 0 {
		value, holding := f.valueOverTime(stock, products)
		out.Put(TableInventoryValue, value)
		out.Put(TableHoldingCost, holding)
	}
	if len(movements) > 0 && len(stock) > 0 {
		detail, byProduct := f.stockoutCost(movements, stock)
		out.Put(TableStockoutCost, detail)
		out.Put(TableStockoutByProduct, byProduct)
	}
	if len(movements) > 0 {
		out.Put(TableABC, abcAnalysis(movements, products))
	}

	f.logger.Debug("Computed financial metrics", zap.Strings("tables", out.Names()))
	return out
}

// valueOverTime sums quantity times unit cost per month of the snapshot's
// last_update. Rows without a timestamp are valued in the current month and
// products without a unit cost are valued at zero.
func (f *FinancialMetrics) valueOverTime(stock []models.StockRow, products map[string]models.Product) (*table.Table, *table.Table) {
	current := monthStart(midnight(f.now()))
	totals := make(map[time.Time]decimal.Decimal)
	for _, s := range stock {
		month := current
		if s.LastUpdate != nil {
			month = monthStart(midnight(*s.LastUpdate))
		}
		cost := decimal.Zero
		if p, ok := products[s.ProductID]; ok && p.UnitCost != nil {
			cost = decimalOr(*p.UnitCost, decimal.Zero)
		}
		qty := decimalOr(deref(s.Quantity, 0), decimal.Zero)
		totals[month] = totals[month].Add(qty.Mul(cost))
	}

	months := make([]time.Time, 0, len(totals))
	for m := range totals {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	value := table.New(
		table.Column{Name: "month", Kind: table.KindDate},
		table.Column{Name: "inventory_value_total", Kind: table.KindFloat},
	)
	holding := table.New(
		table.Column{Name: "month", Kind: table.KindDate},
		table.Column{Name: "holding_cost", Kind: table.KindFloat},
	)
	monthlyRate := f.holdingRate.Div(monthsPerYear)
	for _, m := range months {
		total := totals[m]
		value.Append(m, total.InexactFloat64())
		holding.Append(m, total.Mul(monthlyRate).InexactFloat64())
	}
	return value, holding
}

// stockoutCost prices daily outbound demand above the product's current total
// stock. The same latest snapshot is applied to every historical date.
func (f *FinancialMetrics) stockoutCost(movements []models.Movement, stock []models.StockRow) (*table.Table, *table.Table) {
	available := make(map[string]float64)
	for _, s := range stock {
		available[s.ProductID] += deref(s.Quantity, 0)
	}

	demand := make(map[string]map[time.Time]float64)
	for _, mv := range movements {
		if !models.IsOutbound(mv.Type) {
			continue
		}
		days, ok := demand[mv.ProductID]
		if !ok {
			days = make(map[time.Time]float64)
			demand[mv.ProductID] = days
		}
		days[mv.Date()] += mv.Quantity
	}

	detail := table.New(
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "date", Kind: table.KindDate},
		table.Column{Name: "demand_qty", Kind: table.KindFloat},
		table.Column{Name: "available_qty", Kind: table.KindFloat},
		table.Column{Name: "stockout_units", Kind: table.KindFloat},
		table.Column{Name: "stockout_cost", Kind: table.KindFloat},
	)
	byProduct := table.New(
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "stockout_cost", Kind: table.KindFloat},
	)

	for _, pid := range sortedKeys(demand) {
		days := make([]time.Time, 0, len(demand[pid]))
		for d := range demand[pid] {
			days = append(days, d)
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

		avail, stocked := available[pid]
		total := decimal.Zero
		for _, d := range days {
			qty := demand[pid][d]
			if !stocked {
				detail.Append(pid, d, qty, nil, nan, nan)
				continue
			}
			units := qty - avail
			if units < 0 {
				units = 0
			}
			u, ok := toDecimal(units)
			if !ok {
				detail.Append(pid, d, qty, avail, nan, nan)
				continue
			}
			cost := u.Mul(f.stockoutPerUnit)
			total = total.Add(cost)
			detail.Append(pid, d, qty, avail, units, cost.InexactFloat64())
		}
		if stocked {
			byProduct.Append(pid, total.InexactFloat64())
		} else {
			byProduct.Append(pid, nan)
		}
	}
	return detail, byProduct
}

type consumption struct {
	productID string
	value     decimal.Decimal
}

// abcAnalysis ranks products by outbound consumption value (unit cost times
// quantity, cost 1 when unknown) and classes them by cumulative share: A up to
// 0.80, B up to 0.95, C beyond. The top-ranked product is always A. Equal
// values keep first-appearance order.
func abcAnalysis(movements []models.Movement, products map[string]models.Product) *table.Table {
	idx := make(map[string]int)
	var ranked []consumption
	for _, mv := range movements {
		if !models.IsOutbound(mv.Type) {
			continue
		}
		qty, ok := toDecimal(mv.Quantity)
		if !ok {
			continue
		}
		cost := decimal.NewFromInt(1)
		if p, ok := products[mv.ProductID]; ok && p.UnitCost != nil {
			cost = decimalOr(*p.UnitCost, cost)
		}
		v := qty.Mul(cost)
		i, ok := idx[mv.ProductID]
		if !ok {
			i = len(ranked)
			idx[mv.ProductID] = i
			ranked = append(ranked, consumption{productID: mv.ProductID})
		}
		ranked[i].value = ranked[i].value.Add(v)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].value.GreaterThan(ranked[j].value)
	})

	total := decimal.Zero
	for _, c := range ranked {
		total = total.Add(c.value)
	}
	if total.LessThan(minTotal) {
		total = minTotal
	}

	t := table.New(
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "consumption_value", Kind: table.KindFloat},
		table.Column{Name: "cum_share", Kind: table.KindFloat},
		table.Column{Name: "abc_class", Kind: table.KindString},
	)
	cum := decimal.Zero
	for i, c := range ranked {
		cum = cum.Add(c.value)
		share := cum.Div(total)
		class := "C"
		switch {
		case i == 0 || share.LessThanOrEqual(classAShare):
			class = "A"
		case share.LessThanOrEqual(classBShare):
			class = "B"
		}
		t.Append(c.productID, c.value.InexactFloat64(), share.InexactFloat64(), class)
	}
	return t
}

// toDecimal converts a finite float. decimal.NewFromFloat panics on NaN and
// infinities.
func toDecimal(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(f), true
}

func decimalOr(f float64, fallback decimal.Decimal) decimal.Decimal {
	if d, ok := toDecimal(f); ok {
		return d
	}
	return fallback
}
