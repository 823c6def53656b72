package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-pulse/internal/config"
	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

func TestCheckNothingToReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.engine.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Zero(t, res.Candidates)
	assert.Zero(t, f.delivery.count())

	log, err := f.store.List(ctx, store.ActivityCollection)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, ActionCheck, log[0].String("action"))
}

func TestCheckNotifiesOverdueTaskOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.tasks.Add(ctx, "Pay invoice", "2025-01-01", "")
	require.NoError(t, err)
	_, err = f.tasks.Add(ctx, "Renew passport", "2025-02-01", "")
	require.NoError(t, err)

	res, err := f.engine.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotify, res.Outcome)
	assert.True(t, res.Delivered)
	require.Len(t, res.Items, 1)
	assert.Equal(t, model.SourceTask, res.Items[0].Source)
	assert.Equal(t, model.UrgencyHigh, res.Items[0].Urgency)

	require.Equal(t, 1, f.delivery.count())
	assert.Contains(t, f.delivery.last().Message, "Overdue: Pay invoice (due Jan 1)")
	assert.NotContains(t, f.delivery.last().Message, "Renew passport")

	sup, err := f.engine.Suppressions(ctx)
	require.NoError(t, err)
	require.Len(t, sup, 1)
	assert.Equal(t, res.Items[0].Ref(), sup[0].Ref)
	assert.True(t, sup[0].Until.Equal(testEpoch.Add(24*time.Hour)))

	// Inside the window the same item is suppressed.
	f.clock.Advance(23 * time.Hour)
	res, err = f.engine.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, 1, res.Suppressed)
	assert.Equal(t, 1, f.delivery.count())

	// Once it lapses the item is eligible again and the stale record is pruned.
	f.clock.Advance(time.Hour)
	res, err = f.engine.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotify, res.Outcome)
	assert.Equal(t, 2, f.delivery.count())

	entries, err := f.store.List(ctx, store.SuppressionCollection)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCheckCombinesItemsByUrgency(t *testing.T) {
	ctx := context.Background()
	cal := staticProvider{name: "calendar", items: []model.Item{
		{Source: "calendar", ID: "standup", Text: "Standup", Urgency: model.UrgencyNormal},
	}}
	f := newFixture(t, WithProviders(cal))

	_, err := f.engine.RecordCompletion(ctx, "backup", "3 files", "")
	require.NoError(t, err)
	_, err = f.engine.Add(ctx, "Call the bank")
	require.NoError(t, err)
	_, err = f.tasks.Add(ctx, "Pay invoice", "2025-01-01", "")
	require.NoError(t, err)

	signal := model.Item{Source: "mail", ID: "m1", Text: "Reply to Ana", Urgency: model.UrgencyHigh}
	res, err := f.engine.Check(ctx, signal)
	require.NoError(t, err)
	require.Equal(t, OutcomeNotify, res.Outcome)

	var refs []string
	for _, it := range res.Items {
		refs = append(refs, it.Ref())
	}
	assert.Equal(t, []string{
		res.Items[0].Ref(),
		"mail:m1",
		"manual:" + ManualID("Call the bank"),
		"calendar:standup",
		"background:backup",
	}, refs)
	assert.Equal(t, model.SourceTask, res.Items[0].Source)
	assert.Equal(t, 1, f.delivery.count(), "one combined notification")

	// Included manual items are one-shot and completions are relayed.
	manual, err := f.engine.ManualItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, manual)
	pending, err := f.engine.PendingCompletions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	sup, err := f.engine.Suppressions(ctx)
	require.NoError(t, err)
	assert.Len(t, sup, 5)
}

func TestCheckDeduplicatesIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := model.Item{Source: "mail", ID: "m1", Text: "first"}
	b := model.Item{Source: "mail", ID: "m1", Text: "second"}
	res, err := f.engine.Check(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "first", res.Items[0].Text)
}

func TestCheckDeliveryFailureStillSuppresses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.delivery.err = errBridgeDown

	_, err := f.tasks.Add(ctx, "Pay invoice", "2025-01-01", "")
	require.NoError(t, err)

	res, err := f.engine.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotify, res.Outcome)
	assert.False(t, res.Delivered)
	assert.Contains(t, res.DeliveryError, "bridge down")

	st, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.LastNotify)
	assert.Contains(t, st.LastDeliveryError, "bridge down")
	assert.Len(t, st.PendingSuppressions, 1)

	f.delivery.err = nil
	res, err = f.engine.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
}

func TestCheckOmittedItemsStayEligible(t *testing.T) {
	ctx := context.Background()
	settings := config.Default().Heartbeat
	settings.MessageBudget = 60
	f := newFixture(t, WithSettings(settings))

	first := model.Item{Source: "mail", ID: "a", Text: "A reasonably long reminder text", Urgency: model.UrgencyHigh}
	second := model.Item{Source: "mail", ID: "b", Text: "Another long reminder that cannot fit", Urgency: model.UrgencyNormal}

	res, err := f.engine.Check(ctx, first, second)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Len(t, res.Omitted, 1)
	assert.Equal(t, "mail:b", res.Omitted[0].Ref())
	assert.LessOrEqual(t, len([]rune(res.Message)), 60)

	res, err = f.engine.Check(ctx, first, second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Suppressed)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "mail:b", res.Items[0].Ref())
}

func TestCheckSkipsFailingProvider(t *testing.T) {
	ctx := context.Background()
	broken := staticProvider{name: "calendar", err: errBridgeDown}
	f := newFixture(t, WithProviders(broken))

	res, err := f.engine.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
}

func TestPayInvoiceScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	task, err := f.tasks.Add(ctx, "Pay invoice", "2025-01-01", "")
	require.NoError(t, err)

	res, err := f.engine.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotify, res.Outcome)

	res, err = f.engine.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)

	_, err = f.tasks.Complete(ctx, task.ID)
	require.NoError(t, err)
	f.clock.Set(time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC))

	res, err = f.engine.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Zero(t, res.Candidates)
	assert.Equal(t, 1, f.delivery.count())

	st, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Checks)
	assert.Equal(t, "ok", st.LastOutcome)
	require.NotNil(t, st.LastNotify)
	assert.True(t, st.LastNotify.Equal(testEpoch))
	assert.Empty(t, st.PendingSuppressions)
}

func TestInActiveHours(t *testing.T) {
	f := newFixture(t)
	day := func(h int) time.Time { return time.Date(2025, 1, 2, h, 30, 0, 0, time.UTC) }

	assert.False(t, f.engine.InActiveHours(day(7)))
	assert.True(t, f.engine.InActiveHours(day(8)))
	assert.True(t, f.engine.InActiveHours(day(22)))
	assert.False(t, f.engine.InActiveHours(day(23)))
}
