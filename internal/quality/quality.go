// Package quality applies the configured normalization rules to a raw table:
// duplicate removal, required columns and missing-value imputation. Apply
// performs no I/O and never mutates its input.
package quality

import (
	"fmt"
	"sort"

	"inventory-analytics/config"
	"inventory-analytics/internal/table"
)

// ConfigError reports a fill rule that cannot be applied to the column it
// names. It wraps config.ErrConfig.
type ConfigError struct {
	Column   string
	Strategy string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("fill_na %s for column %q: %s", e.Strategy, e.Column, e.Reason)
}

func (e *ConfigError) Unwrap() error { return config.ErrConfig }

// Apply returns a normalized copy of t.
func Apply(t *table.Table, rules config.QualityRules) (*table.Table, error) {
	out := t.Clone()
	if out == nil || out.Empty() {
		return out, nil
	}

	if rules.DropDuplicates {
		out = dropDuplicates(out)
	}

	for _, name := range rules.NotNull {
		idx := out.Index(name)
		if idx < 0 {
			continue
		}
		out = out.Filter(func(row []any) bool { return !table.IsNull(row[idx]) })
	}

	cols := make([]string, 0, len(rules.FillNA))
	for name := range rules.FillNA {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	for _, name := range cols {
		if !out.Has(name) {
			continue
		}
		if err := fill(out, name, rules.FillNA[name]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func dropDuplicates(t *table.Table) *table.Table {
	seen := make(map[string]struct{}, t.Len())
	return t.Filter(func(row []any) bool {
		k := table.RowKey(row)
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
}

func fill(t *table.Table, name string, s config.FillStrategy) error {
	idx := t.Index(name)
	kind := t.Columns[idx].Kind

	var value any
	switch s.Kind {
	case config.FillMean, config.FillMedian:
		if !kind.Numeric() {
			return &ConfigError{Column: name, Strategy: s.Kind.String(), Reason: fmt.Sprintf("column is %s, not numeric", kind)}
		}
		vals := numericValues(t, idx)
		if len(vals) == 0 {
			return nil
		}
		if s.Kind == config.FillMean {
			value = mean(vals)
		} else {
			value = median(vals)
		}
		if kind == table.KindInt {
			if err := table.Coerce(t, name, table.KindFloat); err != nil {
				return err
			}
		}
	case config.FillMode:
		m, ok := mode(t, idx)
		if !ok {
			return nil
		}
		value = m
	default:
		v, err := table.Convert(s.Value, kind)
		if err != nil {
			return &ConfigError{Column: name, Strategy: s.String(), Reason: err.Error()}
		}
		value = v
	}

	for _, row := range t.Rows {
		if table.IsNull(row[idx]) {
			row[idx] = value
		}
	}
	return nil
}

func numericValues(t *table.Table, idx int) []float64 {
	var vals []float64
	for _, row := range t.Rows {
		if table.IsNull(row[idx]) {
			continue
		}
		if f, ok := table.AsFloat(row[idx]); ok {
			vals = append(vals, f)
		}
	}
	return vals
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func median(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// mode returns the most frequent non-null value; ties go to the smallest.
func mode(t *table.Table, idx int) (any, bool) {
	counts := make(map[string]int)
	values := make(map[string]any)
	for _, row := range t.Rows {
		v := row[idx]
		if table.IsNull(v) {
			continue
		}
		k := table.RowKey([]any{v})
		counts[k]++
		values[k] = v
	}
	var best any
	bestCount := 0
	for k, n := range counts {
		v := values[k]
		if n > bestCount || (n == bestCount && table.Less(v, best)) {
			best, bestCount = v, n
		}
	}
	return best, bestCount > 0
}
