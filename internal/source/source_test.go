package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inventory-analytics/internal/table"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const movementsCSV = `movement_id,product_id,movement_type,quantity,movement_time
M1,P1,OUT,10,2025-01-01 08:00:00
M2,P1,IN,5,2025-01-02 09:30:00
M3,P2,OUT,,2025-01-03 10:00:00
M4,P3,SALE,2,not-a-date
M5,P2,IN,4,2025-01-04 00:00:00
`

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFileAdapterFullLoad(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "movements.csv", movementsCSV)

	a := NewFileAdapter(dir, map[string]string{"movements": "movements.csv"}, 2, zap.NewNop())
	out, err := a.Read(context.Background(), ReadRequest{Table: "movements", TimestampColumn: "movement_time"})
	require.NoError(t, err)

	assert.Equal(t, []string{"movement_id", "product_id", "movement_type", "quantity", "movement_time"}, out.Names())
	assert.Equal(t, 5, out.Len(), "a full load keeps rows with unparseable timestamps")
	assert.Equal(t, table.KindTime, out.Columns[out.Index("movement_time")].Kind)
	assert.Equal(t, time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC), out.Value(0, "movement_time"))
	assert.Nil(t, out.Value(2, "quantity"), "empty cells are null")
	assert.Nil(t, out.Value(3, "movement_time"))
	assert.Equal(t, "10", out.Value(0, "quantity"))
}

func TestFileAdapterIncrementalIsStrict(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "movements.csv", movementsCSV)
	a := NewFileAdapter(dir, map[string]string{"movements": "movements.csv"}, 1, zap.NewNop())

	since := time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)
	out, err := a.Read(context.Background(), ReadRequest{Table: "movements", TimestampColumn: "movement_time", Since: &since})
	require.NoError(t, err)

	require.Equal(t, 2, out.Len())
	assert.Equal(t, "M3", out.Value(0, "movement_id"))
	assert.Equal(t, "M5", out.Value(1, "movement_id"))
}

func TestFileAdapterEverythingFilteredKeepsShape(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "movements.csv", movementsCSV)
	a := NewFileAdapter(dir, map[string]string{"movements": "movements.csv"}, 10, zap.NewNop())

	since := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	out, err := a.Read(context.Background(), ReadRequest{Table: "movements", TimestampColumn: "movement_time", Since: &since})
	require.NoError(t, err)
	assert.True(t, out.Empty())
	assert.Equal(t, table.KindTime, out.Columns[out.Index("movement_time")].Kind)
}

func TestFileAdapterMissingFile(t *testing.T) {
	a := NewFileAdapter(t.TempDir(), map[string]string{"stock": "stock.csv"}, 10, zap.NewNop())

	_, err := a.Read(context.Background(), ReadRequest{Table: "stock"})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = a.Read(context.Background(), ReadRequest{Table: "unconfigured"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileAdapterHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "warehouses.csv", "\ufeffwarehouse_id,capacity\n")
	a := NewFileAdapter(dir, map[string]string{"warehouses": "warehouses.csv"}, 10, zap.NewNop())

	out, err := a.Read(context.Background(), ReadRequest{Table: "warehouses"})
	require.NoError(t, err)
	assert.Equal(t, []string{"warehouse_id", "capacity"}, out.Names())
	assert.True(t, out.Empty())
}

func openSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE inv_movements (
		movement_id TEXT, product_id TEXT, movement_type TEXT, quantity REAL, movement_time TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO inv_movements VALUES
		('M1','P1','OUT',10,'2025-01-01 08:00:00'),
		('M2','P1','IN',5,'2025-01-02 09:30:00'),
		('M3','P2','OUT',7,'2025-01-02 09:30:00.5'),
		('M4','P2','IN',NULL,'2025-01-04 00:00:00')`)
	require.NoError(t, err)
	return db
}

func TestDatabaseAdapterFullLoad(t *testing.T) {
	db := openSQLite(t)
	a := NewDatabaseAdapter(db, map[string]string{"movements": "inv_movements"}, "2006-01-02 15:04:05", zap.NewNop())

	out, err := a.Read(context.Background(), ReadRequest{Table: "movements", TimestampColumn: "movement_time"})
	require.NoError(t, err)

	require.Equal(t, 4, out.Len())
	assert.Equal(t, table.KindFloat, out.Columns[out.Index("quantity")].Kind)
	assert.Equal(t, 10.0, out.Value(0, "quantity"))
	assert.Nil(t, out.Value(3, "quantity"))
	assert.Equal(t, table.KindTime, out.Columns[out.Index("movement_time")].Kind)
}

func TestDatabaseAdapterIncremental(t *testing.T) {
	db := openSQLite(t)
	a := NewDatabaseAdapter(db, map[string]string{"movements": "inv_movements"}, "2006-01-02 15:04:05", zap.NewNop())

	since := time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)
	out, err := a.Read(context.Background(), ReadRequest{Table: "movements", TimestampColumn: "movement_time", Since: &since})
	require.NoError(t, err)

	require.Equal(t, 2, out.Len())
	assert.Equal(t, "M3", out.Value(0, "movement_id"))
	assert.Equal(t, "M4", out.Value(1, "movement_id"))
}

func TestDatabaseAdapterQuery(t *testing.T) {
	a := NewDatabaseAdapter(nil, map[string]string{"stock": "public.stock", "bad": "stock; DROP TABLE x"}, "", zap.NewNop())

	q, args, err := a.Query(ReadRequest{Table: "stock", TimestampColumn: "last_update"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM public.stock", q)
	assert.Nil(t, args)

	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args, err = a.Query(ReadRequest{Table: "stock", TimestampColumn: "last_update", Since: &since})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM public.stock WHERE last_update > :watermark", q)
	assert.Equal(t, since, args["watermark"])

	_, _, err = a.Query(ReadRequest{Table: "bad"})
	assert.Error(t, err)

	_, _, err = a.Query(ReadRequest{Table: "missing"})
	assert.True(t, errors.Is(err, ErrNotFound))
}
