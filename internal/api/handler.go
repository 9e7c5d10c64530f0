package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"inventory-analytics/internal/pipeline"
	"inventory-analytics/internal/table"
	"inventory-analytics/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultLimit = 100
	maxLimit     = 10000
)

// Runner is the pipeline surface the API needs.
type Runner interface {
	TryRun(ctx context.Context) (*pipeline.Result, error)
	Latest() *pipeline.Result
}

// Handler contains HTTP handlers
type Handler struct {
	runner Runner
}

// NewHandler creates a new HTTP handler
func NewHandler(runner Runner) *Handler {
	return &Handler{
		runner: runner,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/tables", h.listTables)
		v1.GET("/tables/:name", h.getTable)
		v1.POST("/runs", h.triggerRun)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once a run has produced metric tables
func (h *Handler) readinessCheck(c *gin.Context) {
	latest := h.runner.Latest()
	if latest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "waiting for first run",
			"time":   time.Now().Unix(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"run_id": latest.RunID,
		"time":   time.Now().Unix(),
	})
}

// listTables lists the metric tables of the latest run
func (h *Handler) listTables(c *gin.Context) {
	latest := h.runner.Latest()
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No completed run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":      latest.RunID,
		"finished_at": latest.FinishedAt,
		"tables":      latest.Summaries(),
	})
}

// getTable returns one page of a metric table
func (h *Handler) getTable(c *gin.Context) {
	latest := h.runner.Latest()
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No completed run"})
		return
	}
	name := c.Param("name")
	t, ok := latest.Metrics.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Table not found", "table": name})
		return
	}

	limit, err := queryInt(c, "limit", defaultLimit)
	if err != nil || limit < 0 || limit > maxLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}

	start := min(offset, t.Len())
	end := min(start+limit, t.Len())
	rows := make([][]any, 0, end-start)
	for _, r := range t.Rows[start:end] {
		rows = append(rows, jsonRow(t, r))
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":  latest.RunID,
		"table":   name,
		"columns": columnView(t),
		"total":   t.Len(),
		"offset":  start,
		"rows":    rows,
	})
}

// triggerRun runs the pipeline synchronously
func (h *Handler) triggerRun(c *gin.Context) {
	res, err := h.runner.TryRun(c.Request.Context())
	if errors.Is(err, pipeline.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "Run already in progress"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Pipeline run failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"run_id":               res.RunID,
		"duration_ms":          res.Duration().Milliseconds(),
		"extracted_rows":       res.Extract.Rows(),
		"failed_tables":        res.Extract.Failed,
		"watermarks_persisted": res.Extract.Persisted,
		"sink_errors":          res.SinkErrors,
		"tables":               res.Summaries(),
	})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func columnView(t *table.Table) []gin.H {
	out := make([]gin.H, len(t.Columns))
	for i, col := range t.Columns {
		out[i] = gin.H{"name": col.Name, "kind": col.Kind.String()}
	}
	return out
}

// jsonRow renders cells JSON can carry: NaN becomes null, times become text.
func jsonRow(t *table.Table, r []any) []any {
	out := make([]any, len(r))
	for i, v := range r {
		switch {
		case table.IsNull(v):
			out[i] = nil
		case t.Columns[i].Kind == table.KindTime || t.Columns[i].Kind == table.KindDate:
			out[i] = table.Format(v, t.Columns[i].Kind)
		default:
			out[i] = v
		}
	}
	return out
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
