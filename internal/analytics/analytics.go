// Package analytics derives the metric tables from the extracted raw tables.
// Each module reads the shared table set and produces its own disjoint set of
// named tables. A table whose inputs are missing is simply not produced.
package analytics

import (
	"math"
	"sort"
	"time"

	"inventory-analytics/config"
	"inventory-analytics/internal/table"

	"go.uber.org/zap"
)

// Module is one metric module.
type Module interface {
	Name() string
	Compute(in *table.Set) *table.Set
}

// Clock returns the current time. Modules that measure age take one so tests
// can fix "today".
type Clock func() time.Time

// Modules builds the four modules in their run order.
func Modules(cfg *config.Config, now Clock, logger *zap.Logger) []Module {
	return []Module{
		NewInventoryMetrics(cfg.Business, now, logger),
		NewMovementAnalytics(cfg.Metrics.Resample, logger),
		NewWarehousePerformance(logger),
		NewFinancialMetrics(cfg.Business, now, logger),
	}
}

// Output table names.
const (
	TableTurnoverProduct   = "inventory_turnover_product"
	TableTurnoverCategory  = "inventory_turnover_category"
	TableDaysOnHand        = "doh_product"
	TableStockAccuracy     = "stock_accuracy"
	TableDeadStock         = "dead_stock_products"
	TableAvgDailyMovement  = "avg_daily_movement_product"
	TablePeakPeriods       = "peak_periods_product"
	TableTrendPrefix       = "movement_trend_"
	TableSeasonality       = "seasonality_monthly_avg"
	TableUtilization       = "warehouse_utilization"
	TableInOutEfficiency   = "warehouse_inout_efficiency"
	TableTransferPatterns  = "transfer_patterns"
	TableGeoDistribution   = "geo_distribution_summary"
	TableInventoryValue    = "inventory_value_over_time"
	TableHoldingCost       = "holding_cost_over_time"
	TableStockoutCost      = "stockout_cost_estimation"
	TableStockoutByProduct = "stockout_cost_by_product"
	TableABC               = "abc_analysis"
)

var nan = math.NaN()

// ratio divides, returning NaN for a zero or undefined denominator.
func ratio(num, den float64) float64 {
	if math.IsNaN(num) || math.IsNaN(den) || den == 0 {
		return nan
	}
	return num / den
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// optKey turns an optional dimension into a map key. Null is kept as its own
// group and sorts after every value.
type optKey struct {
	value string
	null  bool
}

func keyOf(s *string) optKey {
	if s == nil {
		return optKey{null: true}
	}
	return optKey{value: *s}
}

func (k optKey) cell() any {
	if k.null {
		return nil
	}
	return k.value
}

func sortOptKeys(keys []optKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].null != keys[j].null {
			return !keys[i].null
		}
		return keys[i].value < keys[j].value
	})
}

func deref(f *float64, fallback float64) float64 {
	if f == nil {
		return fallback
	}
	return *f
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
