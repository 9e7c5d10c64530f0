// Package source reads logical tables from their physical location. Both
// adapters return the same shape: every column named as in the source, the
// timestamp column parsed into time values and, when a watermark is given,
// only rows strictly newer than it.
package source

import (
	"context"
	"errors"
	"time"

	"inventory-analytics/internal/table"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a configured table has no physical source.
var ErrNotFound = errors.New("source not found")

// ReadRequest names the table to read and how to bound it.
type ReadRequest struct {
	Table string
	// TimestampColumn is empty for tables that are always loaded in full.
	TimestampColumn string
	// Since is the stored watermark; nil means a full load.
	Since *time.Time
}

// Incremental reports whether the read is bounded by a watermark.
func (r ReadRequest) Incremental() bool {
	return r.TimestampColumn != "" && r.Since != nil
}

// Adapter reads one logical table per call.
type Adapter interface {
	Name() string
	Read(ctx context.Context, req ReadRequest) (*table.Table, error)
}

// restrict parses the timestamp column and keeps rows newer than the
// watermark. Rows whose timestamp does not parse never pass an incremental
// bound.
func restrict(t *table.Table, req ReadRequest, logger *zap.Logger) *table.Table {
	if req.TimestampColumn == "" || !t.Has(req.TimestampColumn) {
		return t
	}
	if n := table.CoerceTime(t, req.TimestampColumn); n > 0 {
		logger.Warn("Unparseable timestamps set to null",
			zap.String("table", req.Table),
			zap.String("column", req.TimestampColumn),
			zap.Int("cells", n))
	}
	if req.Since == nil {
		return t
	}
	idx := t.Index(req.TimestampColumn)
	since := *req.Since
	return t.Filter(func(row []any) bool {
		ts, ok := row[idx].(time.Time)
		return ok && ts.After(since)
	})
}
