// Package report renders the metric tables of a run as one static HTML page.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"inventory-analytics/internal/table"

	"go.uber.org/zap"
)

const (
	FileName = "analytics_report.html"

	maxTables = 15
	maxRows   = 200
)

type tableView struct {
	Name      string
	Columns   []string
	Rows      [][]string
	TotalRows int
	Truncated bool
}

var reportTmpl = template.Must(template.New("report").Parse(`<!doctype html>
<html><head><meta charset="utf-8">
<title>Inventory Analytics Report</title>
<style>
body{font-family:system-ui,sans-serif;margin:2rem;color:#222}
h1{font-size:1.5rem}
h2{font-size:1.1rem;margin-top:2rem}
table{border-collapse:collapse;font-size:.85rem}
th,td{border:1px solid #ddd;padding:4px 8px;text-align:right}
th{background:#f3f3f3}
.meta{color:#666;font-size:.85rem}
</style></head><body>
<h1>Inventory Analytics Report</h1>
<p class="meta">Generated at {{.GeneratedAt}}</p>
{{- range .Tables}}
<h2>{{.Name}}</h2>
<table><thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead><tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody></table>
{{- if .Truncated}}
<p class="meta">Showing {{len .Rows}} of {{.TotalRows}} rows</p>
{{- end}}
{{- end}}
</body></html>
`))

type Reporter struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// New creates a reporter writing into dir. now may be nil.
func New(dir string, now func() time.Time, logger *zap.Logger) *Reporter {
	if now == nil {
		now = time.Now
	}
	return &Reporter{dir: dir, now: now, logger: logger.With(zap.String("component", "reporter"))}
}

func (r *Reporter) Name() string { return "report" }

// Path is the report file location.
func (r *Reporter) Path() string {
	return filepath.Join(r.dir, FileName)
}

// Write renders the first tables of the set, in output order, to Path.
func (r *Reporter) Write(ctx context.Context, tables *table.Set) error {
	var buf bytes.Buffer
	if err := Render(&buf, tables, r.now()); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(r.Path(), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	r.logger.Info("Wrote HTML report", zap.String("path", r.Path()))
	return nil
}

// Render writes the report page for tables.
func Render(w io.Writer, tables *table.Set, generatedAt time.Time) error {
	names := tables.Names()
	if len(names) > maxTables {
		names = names[:maxTables]
	}
	views := make([]tableView, 0, len(names))
	for _, name := range names {
		t, _ := tables.Get(name)
		views = append(views, view(name, t))
	}
	err := reportTmpl.Execute(w, struct {
		GeneratedAt string
		Tables      []tableView
	}{
		GeneratedAt: generatedAt.Format("2006-01-02 15:04:05"),
		Tables:      views,
	})
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func view(name string, t *table.Table) tableView {
	v := tableView{Name: name, Columns: t.Names(), TotalRows: t.Len()}
	rows := t.Rows
	if len(rows) > maxRows {
		rows = rows[:maxRows]
		v.Truncated = true
	}
	v.Rows = make([][]string, len(rows))
	for i, r := range rows {
		cells := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = table.Format(r[j], c.Kind)
		}
		v.Rows[i] = cells
	}
	return v
}
