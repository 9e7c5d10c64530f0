package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"inventory-analytics/internal/table"
	"inventory-analytics/internal/util"

	"go.uber.org/zap"
)

// FileAdapter reads CSV extracts, one file per logical table. Files are
// streamed in chunks so the watermark filter runs before rows accumulate.
type FileAdapter struct {
	basePath  string
	files     map[string]string
	chunkSize int
	logger    *zap.Logger
}

// NewFileAdapter creates a CSV adapter. Relative file names resolve against
// basePath.
func NewFileAdapter(basePath string, files map[string]string, chunkSize int, logger *zap.Logger) *FileAdapter {
	if chunkSize <= 0 {
		chunkSize = 50000
	}
	return &FileAdapter{
		basePath:  basePath,
		files:     files,
		chunkSize: chunkSize,
		logger:    logger.With(zap.String("component", "file_adapter")),
	}
}

func (a *FileAdapter) Name() string { return "csv" }

// Path returns the file backing a logical table.
func (a *FileAdapter) Path(tableName string) (string, bool) {
	name, ok := a.files[tableName]
	if !ok || name == "" {
		return "", false
	}
	if filepath.IsAbs(name) {
		return name, true
	}
	return filepath.Join(a.basePath, name), true
}

// Read loads a table. A table without a configured file, or whose file does
// not exist, yields ErrNotFound.
func (a *FileAdapter) Read(ctx context.Context, req ReadRequest) (*table.Table, error) {
	path, ok := a.Path(req.Table)
	if !ok {
		return nil, fmt.Errorf("%w: no file configured for %s", ErrNotFound, req.Table)
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	start := time.Now()
	defer func() {
		util.SourceReadDuration.WithLabelValues(a.Name(), req.Table).Observe(time.Since(start).Seconds())
	}()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return table.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	cols := make([]table.Column, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		cols[i] = table.Column{Name: name, Kind: table.KindString}
	}

	out := table.New(cols...)
	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, done, err := a.readChunk(r, cols)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if chunk.Len() > 0 {
			chunks++
			out.Concat(restrict(chunk, req, a.logger))
		}
		if done {
			break
		}
	}
	if req.TimestampColumn != "" && out.Has(req.TimestampColumn) {
		// keeps the column kind when every chunk was filtered away
		table.CoerceTime(out, req.TimestampColumn)
	}

	a.logger.Debug("Read CSV",
		zap.String("table", req.Table),
		zap.String("path", path),
		zap.Int("chunks", chunks),
		zap.Int("rows", out.Len()))
	return out, nil
}

// readChunk reads up to chunkSize records. Empty cells become nulls and short
// records are padded.
func (a *FileAdapter) readChunk(r *csv.Reader, cols []table.Column) (*table.Table, bool, error) {
	chunk := table.New(cols...)
	for chunk.Len() < a.chunkSize {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return chunk, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		row := make([]any, len(cols))
		for i := range cols {
			if i < len(rec) && rec[i] != "" {
				row[i] = rec[i]
			}
		}
		chunk.Append(row...)
	}
	return chunk, false, nil
}
