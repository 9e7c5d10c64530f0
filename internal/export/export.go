// Package export writes metric tables to files, one file per table and format.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inventory-analytics/internal/table"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Supported formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// xlsx sheet names are limited to 31 characters.
const maxSheetName = 31

type Exporter struct {
	dir     string
	formats []string
	logger  *zap.Logger
}

// New creates an exporter writing into dir. Formats are matched case-insensitively.
func New(dir string, formats []string, logger *zap.Logger) *Exporter {
	norm := make([]string, 0, len(formats))
	for _, f := range formats {
		norm = append(norm, strings.ToLower(f))
	}
	return &Exporter{dir: dir, formats: norm, logger: logger.With(zap.String("component", "exporter"))}
}

func (e *Exporter) Name() string { return "export" }

// Write exports every non-empty table. It stops at the first failed file.
func (e *Exporter) Write(ctx context.Context, tables *table.Set) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	written := 0
	for _, name := range tables.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, _ := tables.Get(name)
		if t.Empty() {
			continue
		}
		for _, format := range e.formats {
			path := filepath.Join(e.dir, name+"."+format)
			var err error
			switch format {
			case FormatCSV:
				err = WriteCSV(path, t)
			case FormatXLSX:
				err = WriteXLSX(path, name, t)
			default:
				err = fmt.Errorf("unsupported format %q", format)
			}
			if err != nil {
				return fmt.Errorf("export %s: %w", name, err)
			}
			written++
		}
	}
	e.logger.Info("Exported metric tables", zap.String("dir", e.dir), zap.Int("files", written))
	return nil
}

// WriteCSV writes t with a header row.
func WriteCSV(path string, t *table.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.Names()); err != nil {
		f.Close()
		return err
	}
	record := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			record[i] = table.Format(r[i], c.Kind)
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteXLSX writes t to a single-sheet workbook. Numbers stay numeric; NaN
// and nulls are left blank.
func WriteXLSX(path, sheet string, t *table.Table) error {
	if len(sheet) > maxSheetName {
		sheet = sheet[:maxSheetName]
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Name
	}
	if err := sw.SetRow("A1", header, excelize.RowOpts{StyleID: headerStyle}); err != nil {
		return err
	}
	for n, r := range t.Rows {
		row := make([]interface{}, len(t.Columns))
		for i, c := range t.Columns {
			row[i] = xlsxCell(r[i], c.Kind)
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func xlsxCell(v any, kind table.Kind) interface{} {
	if table.IsNull(v) {
		return nil
	}
	switch x := v.(type) {
	case float64, int64, bool:
		return x
	}
	return table.Format(v, kind)
}
