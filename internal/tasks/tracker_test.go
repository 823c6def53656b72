package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-pulse/internal/clock"
	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

type fakeExtractor struct {
	candidates []model.Candidate
	err        error
	calls      int
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) ([]model.Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

func newTestTracker(t *testing.T, start time.Time, opts ...Option) (*Tracker, store.Store, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(start)
	s, err := store.Open(store.BackendSQLite, t.TempDir(), store.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, clk, time.UTC, opts...), s, clk
}

func TestAddAndList(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTestTracker(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))

	a, err := tr.Add(ctx, "  Pay invoice ", "2025-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, "Pay invoice", a.Text)
	assert.Equal(t, model.TaskPending, a.Status)
	require.NotNil(t, a.Due)
	assert.True(t, a.AllDay)

	b, err := tr.Add(ctx, "Call mom", "", "conversation")
	require.NoError(t, err)
	assert.Nil(t, b.Due)
	assert.Equal(t, "conversation", b.Source)

	all, err := tr.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)
}

func TestAddValidation(t *testing.T) {
	ctx := context.Background()
	tr, s, _ := newTestTracker(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))

	_, err := tr.Add(ctx, "   ", "", "")
	assert.ErrorIs(t, err, store.ErrInvalid)

	_, err = tr.Add(ctx, "Something", "whenever", "")
	assert.ErrorIs(t, err, store.ErrInvalid)

	entries, err := s.List(ctx, Collection)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected input must not be written")

	_, err = tr.List(ctx, "later")
	assert.ErrorIs(t, err, store.ErrInvalid)
}

func TestOverdueLifecycle(t *testing.T) {
	ctx := context.Background()
	tr, _, clk := newTestTracker(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))

	task, err := tr.Add(ctx, "Pay invoice", "2025-01-01", "")
	require.NoError(t, err)

	overdue, err := tr.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue, "all-day task is not overdue on its own day")

	clk.Set(time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC))
	overdue, err = tr.Check(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, task.ID, overdue[0].ID)
	assert.True(t, overdue[0].Overdue)

	pending, err := tr.List(ctx, model.TaskPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "overdue tasks are still pending")

	done, err := tr.Complete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskDone, done.Status)
	require.NotNil(t, done.CompletedAt)

	clk.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	overdue, err = tr.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	doneList, err := tr.List(ctx, model.TaskDone)
	require.NoError(t, err)
	assert.Len(t, doneList, 1)
}

func TestTimedDue(t *testing.T) {
	ctx := context.Background()
	tr, _, clk := newTestTracker(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))

	_, err := tr.Add(ctx, "Standup", "2025-01-01 10:00", "")
	require.NoError(t, err)

	clk.Advance(59 * time.Minute)
	overdue, _ := tr.Check(ctx)
	assert.Empty(t, overdue)

	clk.Advance(2 * time.Minute)
	overdue, _ = tr.Check(ctx)
	assert.Len(t, overdue, 1)
}

func TestCompleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tr, _, clk := newTestTracker(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))

	task, _ := tr.Add(ctx, "Water plants", "", "")
	first, err := tr.Complete(ctx, task.ID)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	second, err := tr.Complete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskDone, second.Status)
	assert.True(t, second.CompletedAt.Equal(*first.CompletedAt), "completed_at must not move")
	assert.True(t, second.Updated.Equal(first.Updated))
}

func TestCompleteAndRemoveUnknown(t *testing.T) {
	ctx := context.Background()
	tr, s, _ := newTestTracker(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))

	_, err := tr.Complete(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	entries, _ := s.List(ctx, Collection)
	assert.Empty(t, entries, "completing an unknown id must not create it")

	assert.ErrorIs(t, tr.Remove(ctx, "nope"), store.ErrNotFound)

	task, _ := tr.Add(ctx, "Temp", "", "")
	require.NoError(t, tr.Remove(ctx, task.ID))
	_, err = tr.Get(ctx, task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReport(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTestTracker(t, time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC))

	tr.Add(ctx, "late", "2025-05-09", "")
	tr.Add(ctx, "now", "today", "")
	tr.Add(ctx, "soon", "tomorrow", "")
	tr.Add(ctx, "later", "in 5 days", "")
	tr.Add(ctx, "whenever", "", "")
	done, _ := tr.Add(ctx, "finished", "2025-05-01", "")
	tr.Complete(ctx, done.ID)

	r, err := tr.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, r.PendingCount)
	require.Len(t, r.Overdue, 1)
	assert.Equal(t, "late", r.Overdue[0].Text)
	require.Len(t, r.DueToday, 1)
	assert.Equal(t, "now", r.DueToday[0].Text)
	require.Len(t, r.DueTomorrow, 1)
	assert.Equal(t, "soon", r.DueTomorrow[0].Text)
}

func TestMalformedTaskIsSkipped(t *testing.T) {
	ctx := context.Background()
	tr, s, _ := newTestTracker(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))

	tr.Add(ctx, "good", "", "")
	s.Set(ctx, Collection, map[string]any{"note": "no text here"})
	s.Set(ctx, Collection, map[string]any{"text": "weird", "status": "archived"})
	s.Set(ctx, Collection, map[string]any{"content": "legacy shape"})

	all, err := tr.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "good", all[0].Text)
	assert.Equal(t, "legacy shape", all[1].Text)
	assert.Equal(t, model.TaskPending, all[1].Status)
}

func TestExtract(t *testing.T) {
	ctx := context.Background()
	fx := &fakeExtractor{candidates: []model.Candidate{
		{Text: "reply to Mark's email", Due: "today"},
		{Text: "  "},
		{Text: "book dentist", Due: "sometime soon"},
	}}
	tr, _, _ := newTestTracker(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), WithExtractor(fx))

	created, err := tr.Extract(ctx, "I'll reply to Mark today and book the dentist", "")
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "reply to Mark's email", created[0].Text)
	assert.NotNil(t, created[0].Due)
	assert.Equal(t, SourceExtracted, created[0].Source)
	assert.Nil(t, created[1].Due, "unparseable due leaves the task undated")

	all, _ := tr.List(ctx, "")
	assert.Len(t, all, 2)
}

func TestExtractFailureYieldsNothing(t *testing.T) {
	ctx := context.Background()
	fx := &fakeExtractor{err: errors.New("model timed out")}
	tr, _, _ := newTestTracker(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), WithExtractor(fx))

	created, err := tr.Extract(ctx, "I will do the thing", "")
	require.NoError(t, err)
	assert.Empty(t, created)

	created, err = tr.Extract(ctx, "   ", "")
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Equal(t, 1, fx.calls, "blank text never reaches the extractor")
}

func TestExtractWithoutExtractor(t *testing.T) {
	tr, _, _ := newTestTracker(t, time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))
	_, err := tr.Extract(context.Background(), "text", "")
	assert.ErrorIs(t, err, ErrNoExtractor)
}
