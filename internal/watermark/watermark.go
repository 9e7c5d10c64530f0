// Package watermark persists, per logical table, the highest timestamp already
// extracted. Loading fails open: unreadable state is reported and treated as
// empty, which turns the next run into a full load.
package watermark

import (
	"context"
	"time"

	"inventory-analytics/internal/table"
)

// Layout is the serialized watermark form. It is fixed width and always UTC,
// so lexicographic order of stored strings matches chronological order.
const Layout = "2006-01-02T15:04:05.000000000Z07:00"

// State maps a logical table name to its serialized watermark.
type State map[string]string

// Store loads and saves the whole watermark mapping. Implementations assume a
// single writer.
type Store interface {
	// Load never fails the caller; problems yield an empty State.
	Load(ctx context.Context) State
	// Save replaces the stored mapping as a whole.
	Save(ctx context.Context, s State) error
}

// Format serializes a watermark timestamp.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse reads a serialized watermark. Older spellings such as
// "2025-01-01 10:00:00" are accepted too.
func Parse(s string) (time.Time, error) {
	return table.ParseTime(s)
}

// Clone returns an independent copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Since returns the parsed watermark for a table. ok is false when none is
// stored or the stored value does not parse.
func (s State) Since(tableName string) (t time.Time, ok bool) {
	raw, found := s[tableName]
	if !found || raw == "" {
		return time.Time{}, false
	}
	t, err := Parse(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Advance moves a table's watermark forward to t. It never moves backwards and
// reports whether the stored value changed.
func (s State) Advance(tableName string, t time.Time) bool {
	if cur, ok := s.Since(tableName); ok && !t.After(cur) {
		return false
	}
	s[tableName] = Format(t)
	return true
}

// Reset removes the named tables, or every table when none are named, and
// saves the result.
func Reset(ctx context.Context, store Store, tables ...string) (State, error) {
	state := store.Load(ctx)
	if len(tables) == 0 {
		state = State{}
	}
	for _, name := range tables {
		delete(state, name)
	}
	if err := store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}
