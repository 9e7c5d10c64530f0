package watermark

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"inventory-analytics/internal/redisclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFormatIsLexicographicallyOrdered(t *testing.T) {
	early := time.Date(2025, 1, 1, 9, 59, 59, 999, time.UTC)
	late := time.Date(2025, 1, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600)).Add(time.Hour)

	a, b := Format(early), Format(late)
	assert.Len(t, a, len(b))
	assert.Less(t, a, b)

	parsed, err := Parse(b)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(late))
}

func TestAdvanceIsMonotonic(t *testing.T) {
	s := State{}
	t1 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, s.Advance("movements", t1))
	assert.False(t, s.Advance("movements", t1), "equal value is not an advance")
	assert.False(t, s.Advance("movements", t1.Add(-time.Second)))
	assert.True(t, s.Advance("movements", t1.Add(time.Nanosecond)))

	got, ok := s.Since("movements")
	require.True(t, ok)
	assert.True(t, got.Equal(t1.Add(time.Nanosecond)))
}

func TestSinceIgnoresUnparseableValues(t *testing.T) {
	s := State{"stock": "not a time", "empty": ""}

	_, ok := s.Since("stock")
	assert.False(t, ok)
	_, ok = s.Since("empty")
	assert.False(t, ok)
	_, ok = s.Since("missing")
	assert.False(t, ok)

	assert.True(t, s.Advance("stock", time.Now()))
}

func TestCloneIsIndependent(t *testing.T) {
	s := State{"a": "x"}
	c := s.Clone()
	c["a"] = "y"
	assert.Equal(t, "x", s["a"])
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "watermarks.json")
	store := NewFileStore(path, zap.NewNop())

	assert.Empty(t, store.Load(ctx), "missing file loads as empty")

	want := State{"movements": Format(time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC))}
	require.NoError(t, store.Save(ctx, want))
	assert.Equal(t, want, store.Load(ctx))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStoreCorruptStateLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "watermarks.json")

	for _, content := range []string{"{not json", "null", "[1,2]"} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		state := NewFileStore(path, zap.NewNop()).Load(ctx)
		assert.NotNil(t, state, content)
		assert.Empty(t, state, content)
	}
}

func TestResetSelectedAndAll(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "wm.json"), zap.NewNop())
	require.NoError(t, store.Save(ctx, State{"a": "1", "b": "2", "c": "3"}))

	state, err := Reset(ctx, store, "a", "unknown")
	require.NoError(t, err)
	assert.Equal(t, State{"b": "2", "c": "3"}, state)
	assert.Equal(t, state, store.Load(ctx))

	state, err = Reset(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, state)
	assert.Empty(t, store.Load(ctx))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test - requires redis")
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))

	client, err := redisclient.NewClient(addr, os.Getenv("REDIS_PASSWORD"), db)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	key := "inventory-analytics:test:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	store := NewRedisStore(client, key, zap.NewNop())
	defer client.GetClient().Del(ctx, key)

	want := State{"movements": Format(time.Now())}
	require.NoError(t, store.Save(ctx, want))
	assert.Equal(t, want, store.Load(ctx))

	require.NoError(t, store.Save(ctx, State{}))
	assert.Empty(t, store.Load(ctx))
}
