package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"inventory-analytics/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var generated = time.Date(2025, 9, 1, 12, 30, 0, 0, time.UTC)

func TestReportLimitsTablesAndRows(t *testing.T) {
	s := table.NewSet()
	for i := 0; i < 20; i++ {
		tbl := table.New(table.Column{Name: "n", Kind: table.KindInt})
		rows := 1
		if i == 0 {
			rows = 250
		}
		for j := 0; j < rows; j++ {
			tbl.Append(int64(j))
		}
		s.Put(fmt.Sprintf("metric_%02d", i), tbl)
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, s, generated))
	html := buf.String()

	assert.Contains(t, html, "Generated at 2025-09-01 12:30:00")
	assert.Contains(t, html, "<h2>metric_14</h2>")
	assert.NotContains(t, html, "metric_15")
	assert.Contains(t, html, "<td>199</td>")
	assert.NotContains(t, html, "<td>200</td>")
	assert.Contains(t, html, "Showing 200 of 250 rows")
	assert.Equal(t, 15, strings.Count(html, "<table>"))
}

func TestReportEscapesCells(t *testing.T) {
	s := table.NewSet()
	tbl := table.New(table.Column{Name: "region", Kind: table.KindString})
	tbl.Append("<b>north</b>")
	s.Put("geo_distribution_summary", tbl)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, s, generated))
	assert.NotContains(t, buf.String(), "<b>north</b>")
	assert.Contains(t, buf.String(), "&lt;b&gt;north&lt;/b&gt;")
}

func TestReporterWritesFile(t *testing.T) {
	dir := t.TempDir() + "/reports"
	r := New(dir, func() time.Time { return generated }, zap.NewNop())

	require.NoError(t, r.Write(context.Background(), table.NewSet()))
	data, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(r.Path(), FileName))
	assert.Contains(t, string(data), "Inventory Analytics Report")
}
