// Package pipeline runs one end-to-end pass: extraction, the metric modules in
// sequence, then delivery of the merged metric tables to the configured sinks.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"inventory-analytics/internal/analytics"
	"inventory-analytics/internal/extract"
	"inventory-analytics/internal/models"
	"inventory-analytics/internal/table"
	"inventory-analytics/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Extractor produces the run's raw tables.
type Extractor interface {
	Run(ctx context.Context) (*extract.Result, error)
}

// Sink receives the metric tables of a finished run. A failing sink does not
// fail the run.
type Sink interface {
	Name() string
	Write(ctx context.Context, tables *table.Set) error
}

// Publisher announces finished runs.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, event *models.RunCompletedEvent) error
}

// Result is everything one run produced.
type Result struct {
	RunID      string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	Extract    *extract.Result
	Metrics    *table.Set
	// SinkErrors maps sink name to the delivery error, if any.
	SinkErrors map[string]string
}

func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summaries describes the metric tables in output order.
func (r *Result) Summaries() []models.TableSummary {
	out := make([]models.TableSummary, 0, r.Metrics.Len())
	for _, name := range r.Metrics.Names() {
		t, _ := r.Metrics.Get(name)
		out = append(out, models.TableSummary{Name: name, Rows: t.Len(), Columns: t.Names()})
	}
	return out
}

type Orchestrator struct {
	extractor Extractor
	modules   []analytics.Module
	sinks     []Sink
	publisher Publisher
	mode      string
	logger    *zap.Logger
}

// New creates an orchestrator. publisher may be nil when events are disabled.
func New(extractor Extractor, modules []analytics.Module, sinks []Sink, publisher Publisher, mode string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		extractor: extractor,
		modules:   modules,
		sinks:     sinks,
		publisher: publisher,
		mode:      mode,
		logger:    logger.With(zap.String("component", "orchestrator")),
	}
}

// Run executes one pass. Only an extraction error fails the run.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:      uuid.New().String(),
		Mode:       o.mode,
		StartedAt:  time.Now().UTC(),
		Metrics:    table.NewSet(),
		SinkErrors: make(map[string]string),
	}
	logger := o.logger.With(zap.String("run_id", res.RunID))

	ctx, span := util.StartSpan(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", res.RunID), attribute.String("mode", o.mode))

	logger.Info("Pipeline run started")

	var err error
	timeStage("extract", func() {
		res.Extract, err = o.extractor.Run(ctx)
	})
	if err != nil {
		util.PipelineRunsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		logger.Error("Extraction failed", zap.Error(err))
		return nil, fmt.Errorf("extract: %w", err)
	}

	for _, m := range o.modules {
		_, mspan := util.StartSpan(ctx, "metrics."+m.Name())
		var out *table.Set
		timeStage("metrics."+m.Name(), func() {
			out = m.Compute(res.Extract.Tables)
		})
		mspan.SetAttributes(attribute.Int("tables", out.Len()))
		mspan.End()
		res.Metrics.Merge(out)
	}
	for name, rows := range res.Metrics.Counts() {
		util.MetricTableRows.WithLabelValues(name).Set(float64(rows))
	}
	logger.Info("Metrics computed", zap.Int("tables", res.Metrics.Len()))

	for _, s := range o.sinks {
		var serr error
		timeStage("sink."+s.Name(), func() {
			serr = s.Write(ctx, res.Metrics)
		})
		if serr != nil {
			res.SinkErrors[s.Name()] = serr.Error()
			util.SinkFailuresTotal.WithLabelValues(s.Name()).Inc()
			logger.Warn("Sink failed", zap.String("sink", s.Name()), zap.Error(serr))
		}
	}

	res.FinishedAt = time.Now().UTC()
	o.publish(ctx, res, logger)

	util.PipelineRunsTotal.WithLabelValues("success").Inc()
	util.PipelineLastSuccess.SetToCurrentTime()
	logger.Info("Pipeline run finished",
		zap.Duration("duration", res.Duration()),
		zap.Int("metric_tables", res.Metrics.Len()),
		zap.Bool("watermarks_persisted", res.Extract.Persisted))
	return res, nil
}

func (o *Orchestrator) publish(ctx context.Context, res *Result, logger *zap.Logger) {
	if o.publisher == nil {
		return
	}
	event := &models.RunCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRunCompleted,
			Timestamp: res.FinishedAt,
		},
		RunID:               res.RunID,
		Mode:                res.Mode,
		DurationMillis:      res.Duration().Milliseconds(),
		ExtractedRows:       res.Extract.Rows(),
		FailedTables:        res.Extract.Failed,
		WatermarksPersisted: res.Extract.Persisted,
		MetricTables:        res.Summaries(),
	}
	if err := o.publisher.PublishRunCompleted(ctx, event); err != nil {
		res.SinkErrors["events"] = err.Error()
		util.SinkFailuresTotal.WithLabelValues("events").Inc()
		logger.Warn("Failed to publish run event", zap.Error(err))
	}
}

func timeStage(stage string, fn func()) {
	start := time.Now()
	fn()
	util.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
