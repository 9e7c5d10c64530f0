package util

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_runs_total",
		Help: "Total number of pipeline runs by outcome",
	}, []string{"status"})

	PipelineLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_last_success_timestamp_seconds",
		Help: "Unix time of the last successful pipeline run",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	RowsExtractedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_rows_total",
		Help: "Total number of rows extracted after quality rules",
	}, []string{"table"})

	TablesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_tables_skipped_total",
		Help: "Total number of configured tables skipped during extraction",
	}, []string{"table", "reason"})

	CoercionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extract_coercion_failures_total",
		Help: "Total number of declared dtype casts that failed",
	}, []string{"table", "column"})

	SourceReadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "source_read_duration_seconds",
		Help:    "Latency of reading one table from its source",
		Buckets: prometheus.DefBuckets,
	}, []string{"adapter", "table"})

	MetricTableRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "metric_table_rows",
		Help: "Row count of each metric table produced by the last run",
	}, []string{"table"})

	SinkFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sink_failures_total",
		Help: "Total number of failed output deliveries",
	}, []string{"sink"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// PushMetrics sends the default registry to a Prometheus Pushgateway. Batch
// runs exit before a scrape could see them.
func PushMetrics(url, job string) error {
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
