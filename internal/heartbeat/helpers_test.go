package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-pulse/internal/clock"
	"github.com/rcliao/agent-pulse/internal/config"
	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
	"github.com/rcliao/agent-pulse/internal/tasks"
)

var testEpoch = time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)

// recordingDelivery captures notifications instead of sending them.
type recordingDelivery struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (d *recordingDelivery) Enqueue(ctx context.Context, n model.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *recordingDelivery) last() model.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[len(d.sent)-1]
}

type staticProvider struct {
	name  string
	items []model.Item
	err   error
}

func (p staticProvider) Name() string { return p.name }

func (p staticProvider) Items(ctx context.Context) ([]model.Item, error) {
	return p.items, p.err
}

type fixture struct {
	engine   *Engine
	store    store.Store
	tasks    *tasks.Tracker
	clock    *clock.FakeClock
	delivery *recordingDelivery
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clk := clock.Fake(testEpoch)
	s, err := store.Open(store.BackendSQLite, t.TempDir(), store.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tr := tasks.New(s, clk, time.UTC)
	d := &recordingDelivery{}
	base := []Option{
		WithClock(clk),
		WithLocation(time.UTC),
		WithSettings(config.Default().Heartbeat),
	}
	e := New(s, tr, d, append(base, opts...)...)
	return &fixture{engine: e, store: s, tasks: tr, clock: clk, delivery: d}
}

var errBridgeDown = errors.New("bridge down")

// slowDelivery holds every enqueue long enough for a second caller to
// overlap with it.
type slowDelivery struct {
	*recordingDelivery
	delay time.Duration
}

func (d slowDelivery) Enqueue(ctx context.Context, n model.Notification) error {
	time.Sleep(d.delay)
	return d.recordingDelivery.Enqueue(ctx, n)
}
