package analytics

import (
	"math"
	"sort"
	"time"

	"inventory-analytics/config"
	"inventory-analytics/internal/models"
	"inventory-analytics/internal/resample"
	"inventory-analytics/internal/table"

	"go.uber.org/zap"
)

const peakDays = 5

// MovementAnalytics aggregates signed movement quantities per product, per day
// and per configured calendar granularity.
type MovementAnalytics struct {
	rules  config.ResampleRules
	logger *zap.Logger
}

// NewMovementAnalytics creates the movement module with one trend table per resample rule.
func NewMovementAnalytics(rules config.ResampleRules, logger *zap.Logger) *MovementAnalytics {
	return &MovementAnalytics{
		rules:  rules,
		logger: logger.With(zap.String("component", "movement_analytics")),
	}
}

func (m *MovementAnalytics) Name() string { return "movement" }

// Compute builds the signed-quantity aggregates, trends and seasonality.
func (m *MovementAnalytics) Compute(in *table.Set) *table.Set {
	out := table.NewSet()
	movements := models.DecodeMovements(in.Lookup(models.TableMovements))
	if len(movements) == 0 {
		return out
	}

	daily := dailySigned(movements)
	out.Put(TableAvgDailyMovement, avgDaily(daily))
	out.Put(TablePeakPeriods, peakPeriods(daily))

	points := make([]resample.Point, len(movements))
	for i, mv := range movements {
		points[i] = resample.Point{Time: mv.Time, Value: mv.Signed()}
	}
	for _, r := range m.rules {
		rule, err := resample.Parse(r.Rule)
		if err != nil {
			m.logger.Warn("Skipping resample rule", zap.String("label", r.Label), zap.Error(err))
			continue
		}
		out.Put(TableTrendPrefix+r.Label, trend(rule, r.Label, points))
	}
	out.Put(TableSeasonality, seasonality(points))

	m.logger.Debug("Computed movement analytics", zap.Strings("tables", out.Names()))
	return out
}

type productDay struct {
	productID string
	date      time.Time
	qty       float64
}

// dailySigned sums signed quantities per product and calendar date, ordered by
// product then date. Only dates with movements appear.
func dailySigned(movements []models.Movement) []productDay {
	type key struct {
		productID string
		date      time.Time
	}
	sums := make(map[key]float64)
	for _, mv := range movements {
		sums[key{mv.ProductID, mv.Date()}] += mv.Signed()
	}
	out := make([]productDay, 0, len(sums))
	for k, v := range sums {
		out = append(out, productDay{productID: k.productID, date: k.date, qty: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].productID != out[j].productID {
			return out[i].productID < out[j].productID
		}
		return out[i].date.Before(out[j].date)
	})
	return out
}

func avgDaily(daily []productDay) *table.Table {
	t := table.New(
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "avg_daily_qty", Kind: table.KindFloat},
	)
	for i := 0; i < len(daily); {
		j, sum := i, 0.0
		for ; j < len(daily) && daily[j].productID == daily[i].productID; j++ {
			sum += daily[j].qty
		}
		t.Append(daily[i].productID, sum/float64(j-i))
		i = j
	}
	return t
}

// peakPeriods keeps the peakDays largest absolute daily totals per product.
// Equal magnitudes keep date order.
func peakPeriods(daily []productDay) *table.Table {
	t := table.New(
		table.Column{Name: "product_id", Kind: table.KindString},
		table.Column{Name: "date", Kind: table.KindDate},
		table.Column{Name: "quantity_signed", Kind: table.KindFloat},
		table.Column{Name: "abs_qty", Kind: table.KindFloat},
	)
	for i := 0; i < len(daily); {
		j := i
		for j < len(daily) && daily[j].productID == daily[i].productID {
			j++
		}
		group := append([]productDay(nil), daily[i:j]...)
		sort.SliceStable(group, func(a, b int) bool {
			return math.Abs(group[a].qty) > math.Abs(group[b].qty)
		})
		if len(group) > peakDays {
			group = group[:peakDays]
		}
		for _, d := range group {
			t.Append(d.productID, d.date, d.qty, math.Abs(d.qty))
		}
		i = j
	}
	return t
}

func trend(rule resample.Rule, label string, points []resample.Point) *table.Table {
	t := table.New(
		table.Column{Name: "movement_time", Kind: table.KindDate},
		table.Column{Name: "qty_" + label, Kind: table.KindFloat},
	)
	for _, b := range rule.Sum(points) {
		t.Append(b.Label, b.Sum)
	}
	return t
}

// seasonality averages month-start totals by calendar month across years.
// Months between the first and last movement with no activity count as zero.
func seasonality(points []resample.Point) *table.Table {
	var sums [13]float64
	var n [13]int
	for _, b := range resample.MustParse("MS").Sum(points) {
		month := b.Label.Month()
		sums[month] += b.Sum
		n[month]++
	}
	t := table.New(
		table.Column{Name: "month", Kind: table.KindInt},
		table.Column{Name: "avg_qty", Kind: table.KindFloat},
	)
	for month := 1; month <= 12; month++ {
		if n[month] > 0 {
			t.Append(int64(month), sums[month]/float64(n[month]))
		}
	}
	return t
}
