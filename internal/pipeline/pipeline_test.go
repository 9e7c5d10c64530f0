package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inventory-analytics/internal/analytics"
	"inventory-analytics/internal/extract"
	"inventory-analytics/internal/models"
	"inventory-analytics/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeExtractor struct {
	res *extract.Result
	err error
}

func (f *fakeExtractor) Run(ctx context.Context) (*extract.Result, error) {
	return f.res, f.err
}

type fakeModule struct {
	name   string
	tables map[string]int
	seen   *table.Set
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Compute(in *table.Set) *table.Set {
	m.seen = in
	out := table.NewSet()
	for name, rows := range m.tables {
		t := table.New(table.Column{Name: "v", Kind: table.KindInt})
		for i := 0; i < rows; i++ {
			t.Append(int64(i))
		}
		out.Put(name, t)
	}
	return out
}

type recordingSink struct {
	name  string
	err   error
	calls int
	got   *table.Set
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(ctx context.Context, tables *table.Set) error {
	s.calls++
	s.got = tables
	return s.err
}

type recordingPublisher struct {
	events []*models.RunCompletedEvent
	err    error
}

func (p *recordingPublisher) PublishRunCompleted(ctx context.Context, event *models.RunCompletedEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func extracted() *extract.Result {
	raw := table.NewSet()
	mv := table.New(table.Column{Name: "movement_id", Kind: table.KindString})
	mv.Append("m1")
	mv.Append("m2")
	raw.Put(models.TableMovements, mv)
	return &extract.Result{Tables: raw, Persisted: true, Failed: []string{"stock"}}
}

func TestRunMergesModulesAndFeedsSinks(t *testing.T) {
	raw := extracted()
	first := &fakeModule{name: "one", tables: map[string]int{"a": 2}}
	second := &fakeModule{name: "two", tables: map[string]int{"b": 0}}
	good := &recordingSink{name: "export"}
	bad := &recordingSink{name: "database", err: errors.New("connection refused")}
	pub := &recordingPublisher{}

	o := New(&fakeExtractor{res: raw}, []analytics.Module{first, second}, []Sink{bad, good}, pub, "csv", zap.NewNop())
	res, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Same(t, raw.Tables, first.seen, "modules read the extracted set")
	assert.Same(t, raw.Tables, second.seen)
	assert.Equal(t, []string{"a", "b"}, res.Metrics.Names())
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "csv", res.Mode)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))

	assert.Equal(t, 1, good.calls, "a failing sink does not stop the next one")
	assert.Same(t, res.Metrics, good.got)
	assert.Equal(t, "connection refused", res.SinkErrors["database"])

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, models.EventTypeRunCompleted, ev.EventType)
	assert.Equal(t, res.RunID, ev.RunID)
	assert.Equal(t, map[string]int{models.TableMovements: 2}, ev.ExtractedRows)
	assert.Equal(t, []string{"stock"}, ev.FailedTables)
	assert.True(t, ev.WatermarksPersisted)
	assert.Equal(t, []models.TableSummary{
		{Name: "a", Rows: 2, Columns: []string{"v"}},
		{Name: "b", Rows: 0, Columns: []string{"v"}},
	}, ev.MetricTables)
}

func TestRunFailsOnExtractionError(t *testing.T) {
	sink := &recordingSink{name: "export"}
	pub := &recordingPublisher{}
	o := New(&fakeExtractor{err: errors.New("bad config")}, nil, []Sink{sink}, pub, "csv", zap.NewNop())

	res, err := o.Run(context.Background())
	assert.Error(t, err)
	assert.Nil(t, res)
	assert.Zero(t, sink.calls)
	assert.Empty(t, pub.events)
}

func TestPublishFailureIsRecorded(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	o := New(&fakeExtractor{res: extracted()}, nil, nil, pub, "csv", zap.NewNop())

	res, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "broker down", res.SinkErrors["events"])
}

type blockingPass struct {
	started chan struct{}
	release chan struct{}
	runs    int
	mu      sync.Mutex
}

func (b *blockingPass) Run(ctx context.Context) (*Result, error) {
	b.mu.Lock()
	b.runs++
	b.mu.Unlock()
	b.started <- struct{}{}
	<-b.release
	return &Result{RunID: "r", Metrics: table.NewSet()}, nil
}

func TestRunnerRejectsConcurrentTryRun(t *testing.T) {
	pass := &blockingPass{started: make(chan struct{}, 1), release: make(chan struct{})}
	r := NewRunner(pass, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()
	<-pass.started

	_, err := r.TryRun(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Nil(t, r.Latest())

	close(pass.release)
	require.NoError(t, <-done)
	require.NotNil(t, r.Latest())
	assert.Equal(t, "r", r.Latest().RunID)
	assert.Equal(t, 1, pass.runs)
}

type fakeLock struct {
	free     bool
	acquired int
	released int
}

func (l *fakeLock) Acquire(ctx context.Context) (bool, error) {
	if !l.free {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.released++
	return nil
}

type instantPass struct{ runs int }

func (p *instantPass) Run(ctx context.Context) (*Result, error) {
	p.runs++
	return &Result{RunID: "x", StartedAt: time.Now(), Metrics: table.NewSet()}, nil
}

func TestRunnerHonoursDistributedLock(t *testing.T) {
	pass := &instantPass{}
	lock := &fakeLock{}
	r := NewRunner(pass, lock, zap.NewNop())

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Zero(t, pass.runs)

	lock.free = true
	_, err = r.TryRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pass.runs)
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
}
