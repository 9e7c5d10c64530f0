package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"inventory-analytics/internal/table"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// materializedViews are created over loaded metric tables on postgres.
var materializedViews = []struct{ name, source string }{
	{"mv_inventory_turnover", "inventory_turnover_product"},
	{"mv_movement_trend_monthly", "movement_trend_monthly"},
}

// Store loads metric tables into a results database. Each load replaces the
// table wholesale.
type Store struct {
	db                *sqlx.DB
	driver            string
	materializedViews bool
	logger            *zap.Logger
}

// NewStore connects to the results database.
func NewStore(driver, databaseURL string, materializedViews bool, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewStoreFromDB(db, driver, materializedViews, logger), nil
}

// NewStoreFromDB wraps an open connection.
func NewStoreFromDB(db *sqlx.DB, driver string, materializedViews bool, logger *zap.Logger) *Store {
	return &Store{
		db:                db,
		driver:            driver,
		materializedViews: materializedViews,
		logger:            logger.With(zap.String("component", "results_store")),
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

func (s *Store) Name() string { return "database" }

func (s *Store) postgres() bool {
	return s.driver == "postgres"
}

// Write replaces every non-empty metric table, then refreshes the
// materialized views when enabled.
func (s *Store) Write(ctx context.Context, tables *table.Set) error {
	loaded := 0
	for _, name := range tables.Names() {
		t, _ := tables.Get(name)
		if t.Empty() {
			continue
		}
		if err := s.ReplaceTable(ctx, name, t); err != nil {
			if errors.Is(err, ErrInvalidIdentifier) {
				s.logger.Warn("Skipping metric table", zap.String("table", name), zap.Error(err))
				continue
			}
			return err
		}
		loaded++
	}
	s.logger.Info("Loaded metric tables", zap.Int("tables", loaded))

	if s.materializedViews && s.postgres() {
		s.CreateMaterializedViews(ctx)
	}
	return nil
}

// ErrInvalidIdentifier is returned for table or column names that cannot be
// used unquoted in SQL.
var ErrInvalidIdentifier = errors.New("invalid identifier")

func checkIdentifiers(name string, t *table.Table) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: table name %q", ErrInvalidIdentifier, name)
	}
	for _, c := range t.Columns {
		if !identPattern.MatchString(c.Name) {
			return fmt.Errorf("%w: column name %q in %s", ErrInvalidIdentifier, c.Name, name)
		}
	}
	return nil
}

// ReplaceTable drops, recreates and fills name in one transaction.
func (s *Store) ReplaceTable(ctx context.Context, name string, t *table.Table) error {
	if err := checkIdentifiers(name, t); err != nil {
		return err
	}
	defs := make([]string, len(t.Columns))
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quote(c.Name)
		defs[i] = quote(c.Name) + " " + s.sqlType(c.Kind)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	drop := "DROP TABLE IF EXISTS " + quote(name)
	if s.postgres() {
		// dependent materialized views are recreated after the load
		drop += " CASCADE"
	}
	if _, err := tx.ExecContext(ctx, drop); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quote(name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	insert := tx.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(name), strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")))
	stmt, err := tx.PreparexContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for _, r := range t.Rows {
		for i, v := range r {
			args[i] = sqlValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	s.logger.Debug("Replaced table", zap.String("table", name), zap.Int("rows", t.Len()))
	return nil
}

// CreateMaterializedViews creates the summary views over loaded tables.
// Failures are logged and skipped.
func (s *Store) CreateMaterializedViews(ctx context.Context) {
	for _, mv := range materializedViews {
		stmt := fmt.Sprintf("CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS SELECT * FROM %s", quote(mv.name), quote(mv.source))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Warn("Materialized view creation failed", zap.String("view", mv.name), zap.Error(err))
			continue
		}
		if _, err := s.db.ExecContext(ctx, "REFRESH MATERIALIZED VIEW "+quote(mv.name)); err != nil {
			s.logger.Warn("Materialized view refresh failed", zap.String("view", mv.name), zap.Error(err))
		}
	}
}

func (s *Store) sqlType(k table.Kind) string {
	switch k {
	case table.KindFloat:
		if s.postgres() {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case table.KindInt:
		return "BIGINT"
	case table.KindBool:
		return "BOOLEAN"
	case table.KindTime:
		return "TIMESTAMP"
	case table.KindDate:
		return "DATE"
	}
	return "TEXT"
}

func quote(ident string) string {
	return `"` + ident + `"`
}

// sqlValue maps NaN to NULL.
func sqlValue(v any) any {
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return nil
	}
	return v
}
