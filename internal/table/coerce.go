package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// ParseTime parses the timestamp spellings found in CSV extracts and database
// text columns. Values without a zone are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseDType maps a configured dtype name onto a column kind.
func ParseDType(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case n == "float" || n == "float64" || n == "float32" || n == "double":
		return KindFloat, nil
	case n == "int" || n == "int64" || n == "int32" || n == "integer":
		return KindInt, nil
	case n == "bool" || n == "boolean":
		return KindBool, nil
	case n == "str" || n == "string" || n == "object" || n == "category":
		return KindString, nil
	case n == "date":
		return KindDate, nil
	case strings.HasPrefix(n, "datetime") || n == "timestamp":
		return KindTime, nil
	}
	return KindString, fmt.Errorf("unknown dtype %q", name)
}

// Convert converts a single cell to kind. Nil stays nil.
func Convert(v any, kind Kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && kind != KindString && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	switch kind {
	case KindString:
		s, _ := AsString(v)
		return s, nil
	case KindFloat:
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, err
			}
			return finite(f), nil
		}
		if f, ok := AsFloat(v); ok {
			return finite(f), nil
		}
	case KindInt:
		switch x := v.(type) {
		case string:
			s := strings.TrimSpace(x)
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, err
			}
			return integral(f)
		case int64:
			return x, nil
		case float64:
			return integral(x)
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case KindBool:
		switch x := v.(type) {
		case string:
			return strconv.ParseBool(strings.TrimSpace(x))
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case float64:
			return x != 0, nil
		}
	case KindTime, KindDate:
		var t time.Time
		switch x := v.(type) {
		case string:
			parsed, err := ParseTime(x)
			if err != nil {
				return nil, err
			}
			t = parsed
		case time.Time:
			t = x
		default:
			return nil, fmt.Errorf("cannot convert %T to %s", v, kind)
		}
		if kind == KindDate {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		}
		return t, nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, kind)
}

// finite maps infinities to null. NaN is kept; it already reads as null.
func finite(f float64) any {
	if math.IsInf(f, 0) {
		return nil
	}
	return f
}

func integral(f float64) (any, error) {
	if math.IsNaN(f) {
		return nil, nil
	}
	// float64(MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("%v is out of int64 range", f)
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not integral", f)
	}
	return int64(f), nil
}

// Coerce converts every cell of the named column to kind. The conversion is
// all-or-nothing: on the first failing cell the column is left untouched and
// the error is returned.
func Coerce(t *Table, col string, kind Kind) error {
	idx := t.Index(col)
	if idx < 0 {
		return fmt.Errorf("column %q not found", col)
	}
	converted := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		v, err := Convert(r[idx], kind)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		converted[i] = v
	}
	for i, r := range t.Rows {
		r[idx] = converted[i]
	}
	t.Columns[idx].Kind = kind
	return nil
}

// CoerceTime parses the named column as timestamps, nulling cells that do not
// parse. It returns how many non-null cells were nulled.
func CoerceTime(t *Table, col string) int {
	idx := t.Index(col)
	if idx < 0 {
		return 0
	}
	nulled := 0
	for _, r := range t.Rows {
		v, err := Convert(r[idx], KindTime)
		if err != nil {
			nulled++
			v = nil
		}
		r[idx] = v
	}
	t.Columns[idx].Kind = KindTime
	return nulled
}
