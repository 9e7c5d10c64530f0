package models

import "time"

// Event types
const (
	EventTypeRunCompleted = "PIPELINE_RUN_COMPLETED"
	EventTypeRunRequested = "PIPELINE_RUN_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// RunCompletedEvent published after a pipeline run produced its metric tables
type RunCompletedEvent struct {
	BaseEvent
	RunID               string         `json:"run_id"`
	Mode                string         `json:"mode"`
	DurationMillis      int64          `json:"duration_ms"`
	ExtractedRows       map[string]int `json:"extracted_rows"`
	FailedTables        []string       `json:"failed_tables,omitempty"`
	WatermarksPersisted bool           `json:"watermarks_persisted"`
	MetricTables        []TableSummary `json:"metric_tables"`
}

// RunRequestedEvent asks a serving instance to run the pipeline
type RunRequestedEvent struct {
	BaseEvent
	RequestedBy string `json:"requested_by,omitempty"`
}

// TableSummary describes one metric table in events and API listings
type TableSummary struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
}
