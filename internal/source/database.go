package source

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"inventory-analytics/internal/table"
	"inventory-analytics/internal/util"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// OpenDB connects to a relational source and verifies the connection.
func OpenDB(driver, url string, maxOpenConns int, connMaxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	if connMaxLifetime > 0 {
		db.SetConnMaxLifetime(connMaxLifetime)
	}
	return db, nil
}

// DatabaseAdapter reads logical tables from a relational database. Each
// logical name maps onto a physical table name.
type DatabaseAdapter struct {
	db          *sqlx.DB
	tables      map[string]string
	paramLayout string
	logger      *zap.Logger
}

// NewDatabaseAdapter creates an adapter over an open connection. paramLayout,
// when set, formats the watermark bound as text, for engines that keep
// timestamps as strings.
func NewDatabaseAdapter(db *sqlx.DB, tables map[string]string, paramLayout string, logger *zap.Logger) *DatabaseAdapter {
	return &DatabaseAdapter{
		db:          db,
		tables:      tables,
		paramLayout: paramLayout,
		logger:      logger.With(zap.String("component", "database_adapter")),
	}
}

func (a *DatabaseAdapter) Name() string { return "database" }

// Query builds the SELECT for a request and its named arguments.
func (a *DatabaseAdapter) Query(req ReadRequest) (string, map[string]any, error) {
	physical, ok := a.tables[req.Table]
	if !ok || physical == "" {
		return "", nil, fmt.Errorf("%w: no database table configured for %s", ErrNotFound, req.Table)
	}
	if !identPattern.MatchString(physical) {
		return "", nil, fmt.Errorf("invalid table name %q", physical)
	}
	query := "SELECT * FROM " + physical
	if !req.Incremental() {
		return query, nil, nil
	}
	if !identPattern.MatchString(req.TimestampColumn) {
		return "", nil, fmt.Errorf("invalid timestamp column %q", req.TimestampColumn)
	}
	var bound any = req.Since.UTC()
	if a.paramLayout != "" {
		bound = req.Since.UTC().Format(a.paramLayout)
	}
	query += " WHERE " + req.TimestampColumn + " > :watermark"
	return query, map[string]any{"watermark": bound}, nil
}

// Read runs the table's SELECT. The watermark predicate is evaluated again
// after parsing, so engines that compare timestamps as text cannot let older
// rows through.
func (a *DatabaseAdapter) Read(ctx context.Context, req ReadRequest) (*table.Table, error) {
	query, args, err := a.Query(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		util.SourceReadDuration.WithLabelValues(a.Name(), req.Table).Observe(time.Since(start).Seconds())
	}()

	var rows *sqlx.Rows
	if args != nil {
		rows, err = a.db.NamedQueryContext(ctx, query, args)
	} else {
		rows, err = a.db.QueryxContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", req.Table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", req.Table, err)
	}

	var data [][]any
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", req.Table, err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		data = append(data, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", req.Table, err)
	}

	out := &table.Table{Columns: inferColumns(names, data), Rows: data}
	for i, c := range out.Columns {
		normalizeColumn(out, i, c.Kind)
	}
	out = restrict(out, req, a.logger)

	a.logger.Debug("Read database table",
		zap.String("table", req.Table),
		zap.Bool("incremental", req.Incremental()),
		zap.Int("rows", out.Len()))
	return out, nil
}

// inferColumns derives each column kind from its first non-null value.
func inferColumns(names []string, data [][]any) []table.Column {
	cols := make([]table.Column, len(names))
	for i, name := range names {
		cols[i] = table.Column{Name: name, Kind: table.KindString}
		for _, r := range data {
			if r[i] == nil {
				continue
			}
			cols[i].Kind = kindOf(r[i])
			break
		}
	}
	return cols
}

func kindOf(v any) table.Kind {
	switch v.(type) {
	case int64, int32, int:
		return table.KindInt
	case float64, float32:
		return table.KindFloat
	case bool:
		return table.KindBool
	case time.Time:
		return table.KindTime
	}
	return table.KindString
}

// normalizeColumn widens driver-specific cell types to the table cell types.
// Cells that disagree with the inferred kind are rendered as strings, and the
// column becomes a string column.
func normalizeColumn(t *table.Table, idx int, kind table.Kind) {
	mixed := false
	for _, r := range t.Rows {
		switch x := r[idx].(type) {
		case int32:
			r[idx] = int64(x)
		case int:
			r[idx] = int64(x)
		case float32:
			r[idx] = float64(x)
		}
		if r[idx] != nil && kindOf(r[idx]) != kind {
			mixed = true
		}
	}
	if !mixed {
		return
	}
	for _, r := range t.Rows {
		if r[idx] != nil {
			r[idx] = table.Format(r[idx], table.KindTime)
		}
	}
	t.Columns[idx].Kind = table.KindString
}
