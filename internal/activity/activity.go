// Package activity reads and writes the append-only activity log kept in
// the store's reserved _activity collection.
package activity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rcliao/agent-pulse/internal/clock"
	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

// Record is one logged event.
type Record struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

// Summary groups a window of records by action.
type Summary struct {
	Since    time.Time                 `json:"since"`
	Total    int                       `json:"total"`
	ByAction map[string]*ActionSummary `json:"by_action"`
}

// ActionSummary lists the descriptions logged under one action.
type ActionSummary struct {
	Count int      `json:"count"`
	Items []string `json:"items"`
}

// Log is the activity log. Records are never updated after creation.
type Log struct {
	store store.Store
	clock clock.Clock
	loc   *time.Location
}

// New returns a Log. loc decides what "today" means.
func New(s store.Store, clk clock.Clock, loc *time.Location) *Log {
	if loc == nil {
		loc = time.Local
	}
	return &Log{store: s, clock: clk, loc: loc}
}

// Log appends a record.
func (l *Log) Log(ctx context.Context, action string, details map[string]any) (*Record, error) {
	if action == "" {
		return nil, fmt.Errorf("%w: action is required", store.ErrInvalid)
	}
	e, err := l.store.Log(ctx, action, details)
	if err != nil {
		return nil, err
	}
	r := fromEntry(*e)
	return &r, nil
}

// All returns every record, oldest first.
func (l *Log) All(ctx context.Context) ([]Record, error) {
	entries, err := l.store.List(ctx, store.ActivityCollection)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, fromEntry(e))
	}
	return records, nil
}

// Since returns records strictly after t.
func (l *Log) Since(ctx context.Context, t time.Time) ([]Record, error) {
	all, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	out := []Record{}
	for _, r := range all {
		if r.Timestamp.After(t) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Recent returns records from the trailing window.
func (l *Log) Recent(ctx context.Context, window time.Duration) ([]Record, error) {
	return l.Since(ctx, l.clock.Now().Add(-window))
}

// Today returns records from the current calendar day.
func (l *Log) Today(ctx context.Context) ([]Record, error) {
	now := l.clock.Now().In(l.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, l.loc)
	return l.Since(ctx, midnight.Add(-time.Nanosecond))
}

// Summary groups the trailing window's records by action.
func (l *Log) Summary(ctx context.Context, window time.Duration) (*Summary, error) {
	since := l.clock.Now().Add(-window)
	records, err := l.Since(ctx, since)
	if err != nil {
		return nil, err
	}
	s := &Summary{Since: since.UTC(), Total: len(records), ByAction: map[string]*ActionSummary{}}
	for _, r := range records {
		a, ok := s.ByAction[r.Action]
		if !ok {
			a = &ActionSummary{Items: []string{}}
			s.ByAction[r.Action] = a
		}
		a.Count++
		a.Items = append(a.Items, Describe(r))
	}
	return s, nil
}

// Trim deletes the oldest records so at most keep remain.
func (l *Log) Trim(ctx context.Context, keep int) (int, error) {
	entries, err := l.store.List(ctx, store.ActivityCollection)
	if err != nil {
		return 0, err
	}
	excess := len(entries) - keep
	for i := 0; i < excess; i++ {
		if err := l.store.Delete(ctx, store.ActivityCollection, entries[i].ID); err != nil {
			return i, err
		}
	}
	if excess < 0 {
		excess = 0
	}
	return excess, nil
}

// Describe renders a record as one line: the description, text or message
// detail when present, otherwise the details themselves.
func Describe(r Record) string {
	for _, key := range []string{"description", "text", "message"} {
		if s, ok := r.Details[key].(string); ok && s != "" {
			return s
		}
	}
	if len(r.Details) == 0 {
		return r.Action
	}
	keys := make([]string, 0, len(r.Details))
	for k := range r.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += k + "=" + model.Stringify(r.Details[k])
	}
	return out
}

func fromEntry(e model.Entry) Record {
	r := Record{
		ID:        e.ID,
		Action:    e.String("action"),
		Timestamp: e.Created,
		Details:   map[string]any{},
	}
	if ts, ok := e.Time("timestamp"); ok {
		r.Timestamp = ts
	}
	if d, ok := e.Fields["details"].(map[string]any); ok {
		r.Details = d
	}
	return r
}
