// Package extract produces the run's raw table set: it reads every configured
// table through one source adapter, normalizes column types, applies the
// data-quality rules and advances the per-table watermarks.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"inventory-analytics/config"
	"inventory-analytics/internal/quality"
	"inventory-analytics/internal/source"
	"inventory-analytics/internal/table"
	"inventory-analytics/internal/util"
	"inventory-analytics/internal/watermark"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Options selects what the extractor reads and how it treats the results.
type Options struct {
	Tables           []string
	TimestampColumns map[string]string
	Quality          config.DataQualityConfig
	Policy           string
}

// OptionsFromConfig derives extractor options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Tables:           cfg.SourceTables(),
		TimestampColumns: cfg.TimestampColumns,
		Quality:          cfg.DataQuality,
		Policy:           cfg.Run.WatermarkPolicy,
	}
}

// Result is the outcome of one extraction pass.
type Result struct {
	Tables *table.Set
	// Watermarks is the state after this pass, whether or not it was persisted.
	Watermarks watermark.State
	Persisted  bool
	// Missing lists tables without a physical source; Failed lists tables whose
	// read errored.
	Missing []string
	Failed  []string
}

// Rows returns the extracted row count per table.
func (r *Result) Rows() map[string]int {
	return r.Tables.Counts()
}

type Extractor struct {
	adapter source.Adapter
	store   watermark.Store
	opts    Options
	logger  *zap.Logger
}

// New creates an extractor. The adapter is fixed for the extractor's lifetime.
func New(adapter source.Adapter, store watermark.Store, opts Options, logger *zap.Logger) *Extractor {
	if opts.Policy == "" {
		opts.Policy = config.WatermarkPolicyAtomic
	}
	return &Extractor{
		adapter: adapter,
		store:   store,
		opts:    opts,
		logger:  logger.With(zap.String("component", "extractor"), zap.String("adapter", adapter.Name())),
	}
}

// Run extracts every configured table. Recoverable source problems drop the
// table from the result. A data-quality configuration error aborts the run
// before any watermark is written.
func (e *Extractor) Run(ctx context.Context) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "extract")
	defer span.End()

	stored := e.store.Load(ctx)
	res := &Result{
		Tables:     table.NewSet(),
		Watermarks: stored.Clone(),
	}

	for _, name := range e.opts.Tables {
		t, err := e.extractTable(ctx, name, stored)
		switch {
		case err == nil:
		case errors.Is(err, source.ErrNotFound):
			e.logger.Warn("Source not found; table skipped", zap.String("table", name), zap.Error(err))
			util.TablesSkippedTotal.WithLabelValues(name, "missing").Inc()
			res.Missing = append(res.Missing, name)
			continue
		case errors.Is(err, config.ErrConfig):
			span.RecordError(err)
			span.SetStatus(codes.Error, "configuration error")
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			e.logger.Warn("Failed to read table; table skipped", zap.String("table", name), zap.Error(err))
			util.TablesSkippedTotal.WithLabelValues(name, "error").Inc()
			res.Failed = append(res.Failed, name)
			continue
		}

		if col := e.opts.TimestampColumns[name]; col != "" {
			if latest, ok := maxTime(t, col); ok {
				res.Watermarks.Advance(name, latest)
			}
		}
		res.Tables.Put(name, t)
		util.RowsExtractedTotal.WithLabelValues(name).Add(float64(t.Len()))
		e.logger.Info("Loaded table", zap.String("table", name), zap.Int("rows", t.Len()))
	}

	if len(res.Failed) > 0 && e.opts.Policy == config.WatermarkPolicyAtomic {
		e.logger.Warn("Watermarks not persisted because tables failed",
			zap.Strings("failed", res.Failed))
		return res, nil
	}
	if err := e.store.Save(ctx, res.Watermarks); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to persist watermarks: %w", err)
	}
	res.Persisted = true
	return res, nil
}

func (e *Extractor) extractTable(ctx context.Context, name string, stored watermark.State) (*table.Table, error) {
	ctx, span := util.StartSpan(ctx, "extract.table")
	defer span.End()
	span.SetAttributes(attribute.String("table", name))

	req := source.ReadRequest{Table: name, TimestampColumn: e.opts.TimestampColumns[name]}
	if req.TimestampColumn != "" {
		if since, ok := stored.Since(name); ok {
			req.Since = &since
			span.SetAttributes(attribute.String("watermark", watermark.Format(since)))
		}
	}

	t, err := e.adapter.Read(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	inferNumeric(t)
	e.applyDtypes(name, t)

	out, err := quality.Apply(t, e.opts.Quality.RulesFor(name))
	if err != nil {
		return nil, fmt.Errorf("data quality for %s: %w", name, err)
	}
	span.SetAttributes(attribute.Int("rows", out.Len()))
	return out, nil
}

// inferNumeric converts text columns whose every value is numeric, the way a
// CSV reader would type them. Identifier columns (suffix _id) stay text so
// keys compare equal across tables.
func inferNumeric(t *table.Table) {
	for _, c := range t.Columns {
		if c.Kind != table.KindString || strings.HasSuffix(strings.ToLower(c.Name), "_id") {
			continue
		}
		if !hasValue(t, c.Name) {
			continue
		}
		if table.Coerce(t, c.Name, table.KindInt) == nil {
			continue
		}
		_ = table.Coerce(t, c.Name, table.KindFloat)
	}
}

func hasValue(t *table.Table, col string) bool {
	idx := t.Index(col)
	for _, r := range t.Rows {
		if r[idx] != nil {
			return true
		}
	}
	return false
}

// applyDtypes casts the declared column types. Timestamps are parsed leniently;
// any other failed cast leaves the column as it was.
func (e *Extractor) applyDtypes(name string, t *table.Table) {
	declared := e.opts.Quality.Dtypes[name]
	cols := make([]string, 0, len(declared))
	for col := range declared {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		if !t.Has(col) {
			continue
		}
		kind, err := table.ParseDType(declared[col])
		if err != nil {
			continue
		}
		if kind == table.KindTime {
			if nulled := table.CoerceTime(t, col); nulled > 0 {
				e.logger.Warn("Unparseable timestamps set to null",
					zap.String("table", name),
					zap.String("column", col),
					zap.Int("cells", nulled))
				util.CoercionFailuresTotal.WithLabelValues(name, col).Inc()
			}
			continue
		}
		if err := table.Coerce(t, col, kind); err != nil {
			e.logger.Warn("Dtype cast failed; column left unconverted",
				zap.String("table", name),
				zap.String("column", col),
				zap.String("dtype", declared[col]),
				zap.Error(err))
			util.CoercionFailuresTotal.WithLabelValues(name, col).Inc()
		}
	}
}

func maxTime(t *table.Table, col string) (time.Time, bool) {
	idx := t.Index(col)
	if idx < 0 {
		return time.Time{}, false
	}
	var latest time.Time
	found := false
	for _, r := range t.Rows {
		ts, ok := r[idx].(time.Time)
		if !ok {
			continue
		}
		if !found || ts.After(latest) {
			latest, found = ts, true
		}
	}
	return latest, found
}
