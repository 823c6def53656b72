package integration

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-pulse/internal/config"
	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(store.BackendSQLite, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCommandProviderItems(t *testing.T) {
	p, err := NewCommandProvider(config.ProviderConfig{
		Name:    "reminders",
		Urgency: "normal",
		Command: []string{"sh", "-c", `echo '[
			{"id": "r1", "text": "Take out trash"},
			{"id": "r2", "text": "Dentist", "urgency": "high", "due": "2025-01-02T15:00:00Z"},
			{"text": "  "},
			{"text": "No id"}
		]'`},
	})
	require.NoError(t, err)

	items, err := p.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, model.Item{Source: "reminders", ID: "r1", Text: "Take out trash", Urgency: model.UrgencyNormal}, items[0])
	assert.Equal(t, model.UrgencyHigh, items[1].Urgency)
	require.NotNil(t, items[1].Due)
	assert.Equal(t, "No id", items[2].ID, "text doubles as identity when no id is given")
	assert.Equal(t, "reminders:r1", items[0].Ref())
}

func TestCommandProviderErrors(t *testing.T) {
	bad, _ := NewCommandProvider(config.ProviderConfig{Name: "mail", Command: []string{"sh", "-c", "echo nope"}})
	_, err := bad.Items(context.Background())
	assert.ErrorContains(t, err, "decode output")

	failing, _ := NewCommandProvider(config.ProviderConfig{Name: "cal", Command: []string{"sh", "-c", "exit 2"}})
	_, err = failing.Items(context.Background())
	assert.Error(t, err)

	empty, _ := NewCommandProvider(config.ProviderConfig{Name: "quiet", Command: []string{"true"}})
	items, err := empty.Items(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = NewCommandProvider(config.ProviderConfig{Name: "x", Command: []string{"true"}, Urgency: "panic"})
	assert.Error(t, err)
}

type staticProvider struct {
	name  string
	items []model.Item
	err   error
}

func (p staticProvider) Name() string { return p.name }
func (p staticProvider) Items(context.Context) ([]model.Item, error) {
	return p.items, p.err
}

func TestGatherSkipsFailures(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))

	items := Gather(context.Background(), log,
		staticProvider{name: "a", items: []model.Item{{Source: "a", ID: "1", Text: "one"}}},
		staticProvider{name: "b", err: errors.New("token expired")},
		staticProvider{name: "c", items: []model.Item{{Source: "c", ID: "2", Text: "two"}}},
	)
	require.Len(t, items, 2)
	assert.Equal(t, "one", items[0].Text)
	assert.Equal(t, "two", items[1].Text)
	assert.Contains(t, logs.String(), "token expired")
}

func TestOutboxSplitsAndAcks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	o := NewOutbox(s, 40)

	msg := "First paragraph of the heartbeat.\n\nSecond paragraph of the heartbeat."
	require.NoError(t, o.Enqueue(ctx, model.Notification{ID: "n1", Message: msg}))

	pending, err := o.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "First paragraph of the heartbeat.", pending[0].Text)
	assert.Equal(t, 1, pending[0].Part)
	assert.Equal(t, 2, pending[1].Parts)
	assert.Equal(t, "n1", pending[1].NotificationID)

	require.NoError(t, o.Ack(ctx, pending[0].ID, "unknown"))
	pending, err = o.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	err = o.Enqueue(ctx, model.Notification{ID: "n2", Message: "   "})
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestCommandDelivery(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sent.txt")
	d := NewCommandDelivery([]string{"sh", "-c", "cat > " + out}, time.Second*5)

	require.NoError(t, d.Enqueue(context.Background(), model.Notification{Message: "hello there"}))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(got))

	failing := NewCommandDelivery([]string{"sh", "-c", "echo channel down >&2; exit 1"}, time.Second*5)
	err = failing.Enqueue(context.Background(), model.Notification{Message: "x"})
	assert.ErrorIs(t, err, ErrDelivery)
	assert.True(t, strings.Contains(err.Error(), "channel down"))
}

func TestNewDelivery(t *testing.T) {
	s := newTestStore(t)
	assert.IsType(t, &Outbox{}, NewDelivery(config.DeliveryConfig{}, s))
	assert.IsType(t, &CommandDelivery{}, NewDelivery(config.DeliveryConfig{Command: []string{"notify-send"}}, s))
}
