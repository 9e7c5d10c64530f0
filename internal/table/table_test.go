package table

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceAllOrNothing(t *testing.T) {
	tbl := New(Column{Name: "qty"}, Column{Name: "note"})
	tbl.Append("10", "a")
	tbl.Append("x", "b")

	err := Coerce(tbl, "qty", KindFloat)
	require.Error(t, err)
	assert.Equal(t, KindString, tbl.Columns[0].Kind)
	assert.Equal(t, "10", tbl.Rows[0][0])

	tbl.Rows[1][0] = ""
	require.NoError(t, Coerce(tbl, "qty", KindInt))
	assert.Equal(t, int64(10), tbl.Rows[0][0])
	assert.Nil(t, tbl.Rows[1][0])
	assert.Equal(t, KindInt, tbl.Columns[0].Kind)
}

func TestCoerceRejectsOutOfRangeIntegers(t *testing.T) {
	tbl := New(Column{Name: "quantity"})
	tbl.Append("40")
	tbl.Append("1e20")
	tbl.Append("inf")

	require.Error(t, Coerce(tbl, "quantity", KindInt))
	assert.Equal(t, KindString, tbl.Columns[0].Kind)

	require.NoError(t, Coerce(tbl, "quantity", KindFloat))
	assert.Equal(t, 40.0, tbl.Rows[0][0])
	assert.Equal(t, 1e20, tbl.Rows[1][0])
	assert.Nil(t, tbl.Rows[2][0], "infinity is read as null")
}

func TestConvertNonFinite(t *testing.T) {
	for _, s := range []string{"inf", "-Infinity", "+Inf"} {
		v, err := Convert(s, KindFloat)
		require.NoError(t, err, s)
		assert.Nil(t, v, s)
	}
	v, err := Convert(math.Inf(1), KindFloat)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = Convert(math.Inf(-1), KindInt)
	assert.Error(t, err)
	_, err = Convert(9.3e18, KindInt)
	assert.Error(t, err)
	v, err = Convert(-9.2e18, KindInt)
	require.NoError(t, err)
	assert.Equal(t, int64(-9200000000000000000), v)
}

func TestCoerceTimeNullsBadCells(t *testing.T) {
	tbl := New(Column{Name: "movement_time"})
	tbl.Append("2025-01-01 10:00:00")
	tbl.Append("not a date")
	tbl.Append("2025-01-02T08:30:00Z")

	nulled := CoerceTime(tbl, "movement_time")
	assert.Equal(t, 1, nulled)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), tbl.Rows[0][0])
	assert.Nil(t, tbl.Rows[1][0])
	assert.Equal(t, KindTime, tbl.Columns[0].Kind)
}

func TestParseDType(t *testing.T) {
	cases := map[string]Kind{
		"float64":        KindFloat,
		"Int64":          KindInt,
		"category":       KindString,
		"datetime64[ns]": KindTime,
		"bool":           KindBool,
		"date":           KindDate,
	}
	for in, want := range cases {
		got, err := ParseDType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDType("complex128")
	assert.Error(t, err)
}

func TestConcatMatchesColumnsByName(t *testing.T) {
	a := New(Column{Name: "id"}, Column{Name: "qty"})
	a.Append("P1", "1")
	b := New(Column{Name: "qty"}, Column{Name: "extra"})
	b.Append("2", "z")

	a.Concat(b)
	require.Equal(t, 2, a.Len())
	assert.Equal(t, []any{nil, "2"}, a.Rows[1])

	empty := New()
	empty.Concat(b)
	assert.Equal(t, []string{"qty", "extra"}, empty.Names())
}

func TestSetKeepsInsertionOrder(t *testing.T) {
	s := NewSet()
	s.Put("b", New())
	s.Put("a", New())
	s.Put("b", New(Column{Name: "x"}))

	assert.Equal(t, []string{"b", "a"}, s.Names())
	assert.True(t, s.Lookup("b").Has("x"))
	assert.True(t, s.Lookup("missing").Empty())
}

func TestFormatAndAsString(t *testing.T) {
	assert.Equal(t, "NaN", Format(math.NaN(), KindFloat))
	assert.Equal(t, "", Format(nil, KindFloat))
	assert.Equal(t, "2025-03-01", Format(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), KindDate))

	s, ok := AsString(float64(7))
	assert.True(t, ok)
	assert.Equal(t, "7", s)
	_, ok = AsString(math.NaN())
	assert.False(t, ok)
	assert.True(t, IsNull(math.NaN()))
}

func TestRowKeyDistinguishesTypes(t *testing.T) {
	assert.NotEqual(t, RowKey([]any{"1"}), RowKey([]any{int64(1)}))
	assert.Equal(t, RowKey([]any{"a", nil}), RowKey([]any{"a", nil}))
}
