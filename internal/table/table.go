package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the storage type of a column. A nil cell is null in every kind.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
	KindBool
	KindTime
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFloat:
		return "float64"
	case KindInt:
		return "int64"
	case KindBool:
		return "bool"
	case KindTime:
		return "datetime"
	case KindDate:
		return "date"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Numeric reports whether mean/median style aggregations apply to the kind.
func (k Kind) Numeric() bool {
	return k == KindFloat || k == KindInt
}

// Column describes one named, typed column.
type Column struct {
	Name string
	Kind Kind
}

// Table is a rectangular, row-oriented table. Cells hold nil, string, float64,
// int64, bool or time.Time according to the column kind.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// New creates an empty table with the given columns.
func New(cols ...Column) *Table {
	return &Table{Columns: cols}
}

// Len returns the number of rows. A nil table has zero rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table carries the named column.
func (t *Table) Has(name string) bool {
	return t.Index(name) >= 0
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Append adds a row. It panics when the arity does not match the columns.
func (t *Table) Append(vals ...any) {
	if len(vals) != len(t.Columns) {
		panic(fmt.Sprintf("table: row has %d values, want %d", len(vals), len(t.Columns)))
	}
	t.Rows = append(t.Rows, vals)
}

// Value returns the cell at row i for the named column, or nil when the
// column does not exist.
func (t *Table) Value(i int, name string) any {
	idx := t.Index(name)
	if idx < 0 {
		return nil
	}
	return t.Rows[i][idx]
}

// Clone returns a deep copy of the row slices. Cell values are immutable.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Columns: append([]Column(nil), t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]any(nil), r...)
	}
	return out
}

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(row []any) bool) *Table {
	out := &Table{Columns: append([]Column(nil), t.Columns...)}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Concat appends the rows of other, matching columns by name. Columns missing
// from other are filled with nil. A table without columns adopts other's.
func (t *Table) Concat(other *Table) {
	if other == nil {
		return
	}
	if len(t.Columns) == 0 {
		t.Columns = append([]Column(nil), other.Columns...)
	}
	mapping := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		mapping[i] = other.Index(c.Name)
	}
	for _, r := range other.Rows {
		row := make([]any, len(t.Columns))
		for i, j := range mapping {
			if j >= 0 {
				row[i] = r[j]
			}
		}
		t.Rows = append(t.Rows, row)
	}
}

// Set is an insertion-ordered collection of named tables.
type Set struct {
	order  []string
	tables map[string]*Table
}

// NewSet creates an empty table set.
func NewSet() *Set {
	return &Set{tables: make(map[string]*Table)}
}

// Put stores a table under name, keeping the original position on overwrite.
func (s *Set) Put(name string, t *Table) {
	if _, ok := s.tables[name]; !ok {
		s.order = append(s.order, name)
	}
	s.tables[name] = t
}

// Get returns the named table and whether it is present.
func (s *Set) Get(name string) (*Table, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tables[name]
	return t, ok
}

// Lookup returns the named table or an empty table when absent.
func (s *Set) Lookup(name string) *Table {
	if t, ok := s.Get(name); ok && t != nil {
		return t
	}
	return New()
}

// Names returns table names in insertion order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Len returns the number of tables.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Merge copies every table of other into s.
func (s *Set) Merge(other *Set) {
	for _, name := range other.Names() {
		t, _ := other.Get(name)
		s.Put(name, t)
	}
}

// Counts returns the row count per table.
func (s *Set) Counts() map[string]int {
	out := make(map[string]int, s.Len())
	for _, name := range s.Names() {
		t, _ := s.Get(name)
		out[name] = t.Len()
	}
	return out
}

// AsFloat converts numeric cells to float64. Strings are not parsed.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsString renders identifier-like cells as strings. Integral floats are
// printed without a fraction so 7.0 and 7 name the same key.
func AsString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		if math.IsNaN(x) {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case time.Time:
		return x.Format(time.RFC3339Nano), true
	}
	return fmt.Sprint(v), true
}

// AsTime returns time cells.
func AsTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

// IsNull reports whether a cell is null. NaN floats count as null.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return true
	}
	return false
}

// Format renders a cell for text outputs. Nulls render empty, NaN as "NaN".
func Format(v any, k Kind) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(x) {
			return "NaN"
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if k == KindDate {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	case string:
		return x
	}
	return fmt.Sprint(v)
}

// RowKey builds a comparable key over every cell of a row.
func RowKey(row []any) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		fmt.Fprintf(&b, "%T:", v)
		if t, ok := v.(time.Time); ok {
			b.WriteString(t.UTC().Format(time.RFC3339Nano))
			continue
		}
		b.WriteString(Format(v, KindString))
	}
	return b.String()
}

// Less orders two non-null cells of the same kind.
func Less(a, b any) bool {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		return x < y
	case time.Time:
		y, _ := b.(time.Time)
		return x.Before(y)
	case bool:
		y, _ := b.(bool)
		return !x && y
	}
	fa, _ := AsFloat(a)
	fb, _ := AsFloat(b)
	return fa < fb
}
