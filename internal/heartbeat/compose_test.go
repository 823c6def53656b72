package heartbeat

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/rcliao/agent-pulse/internal/config"
	"github.com/rcliao/agent-pulse/internal/model"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestComposeMixedGolden(t *testing.T) {
	items := []model.Item{
		{Source: model.SourceTask, ID: "t1", Text: "Pay invoice", Urgency: model.UrgencyHigh,
			Due: timePtr(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))},
		{Source: model.SourceManual, ID: "m1", Text: "Call the bank about the card", Urgency: model.UrgencyNormal},
		{Source: model.SourceBackground, ID: "backup", Text: "backup finished: 3 files"},
		{Source: "calendar", ID: "standup", Text: "Standup", Urgency: model.UrgencyNormal,
			Due: timePtr(time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC))},
	}

	msg, included, omitted := Compose(items, 1500, testEpoch, time.UTC)
	assert.Len(t, included, 4)
	assert.Empty(t, omitted)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "compose_mixed", []byte(msg))
}

func TestComposeBudget(t *testing.T) {
	items := []model.Item{
		{Source: "mail", ID: "a", Text: "short"},
		{Source: "mail", ID: "b", Text: "this one is much too long to fit"},
		{Source: "mail", ID: "c", Text: "tiny"},
	}

	msg, included, omitted := Compose(items, 45, testEpoch, time.UTC)
	assert.LessOrEqual(t, utf8.RuneCountInString(msg), 45)
	assert.Len(t, included, 1)
	// Packing stops at the first item that does not fit.
	assert.Len(t, omitted, 2)
	assert.Equal(t, "b", omitted[0].ID)
}

func TestComposeTruncatesFirstItem(t *testing.T) {
	items := []model.Item{
		{Source: model.SourceManual, ID: "a", Text: "an extremely long reminder that goes well past the budget"},
		{Source: model.SourceManual, ID: "b", Text: "next"},
	}

	msg, included, omitted := Compose(items, 50, testEpoch, time.UTC)
	assert.Len(t, included, 1)
	assert.Len(t, omitted, 1)
	assert.LessOrEqual(t, utf8.RuneCountInString(msg), 50)
	assert.Contains(t, msg, "...")

	// Under a budget too small for the header the first line keeps a
	// readable minimum.
	msg, included, _ = Compose(items, 10, testEpoch, time.UTC)
	assert.Len(t, included, 1)
	assert.Contains(t, msg, "\n- an extremely lo...")
}

func TestComposeFitsMinimumBudget(t *testing.T) {
	items := []model.Item{
		{Source: model.SourceManual, ID: "a", Text: "an extremely long reminder that goes well past the budget"},
	}
	// Longest header: two-digit day.
	at := time.Date(2025, 9, 24, 15, 4, 0, 0, time.UTC)

	msg, included, _ := Compose(items, config.MinMessageBudget, at, time.UTC)
	assert.Len(t, included, 1)
	assert.Equal(t, config.MinMessageBudget, utf8.RuneCountInString(msg))
	assert.Contains(t, msg, "Heartbeat Wed Sep 24 15:04\n- an extremely lo...")
}

func TestComposeUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	items := []model.Item{{Source: "calendar", ID: "x", Text: "Review",
		Due: timePtr(time.Date(2025, 1, 2, 18, 30, 0, 0, time.UTC))}}

	msg, _, _ := Compose(items, 1500, testEpoch, loc)
	assert.Equal(t, "Heartbeat Thu Jan 2 01:00\n- calendar: Review (due Jan 2 10:30)", msg)
}
