package watermark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileStore keeps the mapping in a human-readable JSON file.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.With(zap.String("component", "watermark_file")),
	}
}

// Path returns the state file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) State {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}
	}
	if err != nil {
		s.logger.Warn("Failed to read watermark state; starting fresh",
			zap.String("path", s.path), zap.Error(err))
		return State{}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil || state == nil {
		s.logger.Warn("Corrupt watermark state; starting fresh",
			zap.String("path", s.path), zap.Error(err))
		return State{}
	}
	return state
}

// Save writes to a temporary file in the same directory and renames it over
// the state file, so readers see either the old or the new mapping.
func (s *FileStore) Save(ctx context.Context, state State) error {
	if state == nil {
		state = State{}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode watermarks: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".watermarks-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write watermarks: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync watermarks: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close watermarks: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace watermark state: %w", err)
	}

	s.logger.Info("Saved watermark state", zap.String("path", s.path), zap.Int("tables", len(state)))
	return nil
}
