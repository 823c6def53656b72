// Package tasks tracks commitments with optional due dates on top of the
// store. Overdue is derived on every read and never persisted.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rcliao/agent-pulse/internal/clock"
	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

// Collection holds one entry per task.
const Collection = "tasks"

// SourceExtracted marks tasks created by Extract without an explicit source.
const SourceExtracted = "extracted"

// ErrNoExtractor is returned by Extract when no collaborator is configured.
var ErrNoExtractor = errors.New("no commitment extractor configured")

// Extractor proposes commitments found in free text.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]model.Candidate, error)
}

// Report is the due-date overview printed by "tasks check".
type Report struct {
	Overdue      []model.Task `json:"overdue"`
	DueToday     []model.Task `json:"due_today"`
	DueTomorrow  []model.Task `json:"due_tomorrow"`
	PendingCount int          `json:"pending_count"`
}

// Tracker is the task tracker.
type Tracker struct {
	store     store.Store
	clock     clock.Clock
	loc       *time.Location
	extractor Extractor
	log       *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithExtractor sets the collaborator used by Extract.
func WithExtractor(x Extractor) Option {
	return func(t *Tracker) { t.extractor = x }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// New returns a Tracker. loc defines calendar days for all-day dues.
func New(s store.Store, clk clock.Clock, loc *time.Location, opts ...Option) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	t := &Tracker{
		store: s,
		clock: clk,
		loc:   loc,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range opts {
		fn(t)
	}
	return t
}

// Add creates a pending task. due may be empty.
func (t *Tracker) Add(ctx context.Context, text, due, source string) (*model.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: task text is required", store.ErrInvalid)
	}

	fields := map[string]any{
		"text":   text,
		"status": string(model.TaskPending),
	}
	if strings.TrimSpace(due) != "" {
		d, allDay, err := ParseDue(due, t.clock.Now(), t.loc)
		if err != nil {
			return nil, err
		}
		fields["due"] = formatDue(d, allDay)
	}
	if source != "" {
		fields["source"] = source
	}

	e, err := t.store.Set(ctx, Collection, fields)
	if err != nil {
		return nil, err
	}
	task, err := t.fromEntry(*e)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns tasks in creation order. An empty status returns all tasks;
// pending includes pending tasks that are overdue.
func (t *Tracker) List(ctx context.Context, status model.TaskStatus) ([]model.Task, error) {
	if status != "" && !model.ValidTaskFilters[status] {
		return nil, fmt.Errorf("%w: unknown status %q (use pending, done or overdue)", store.ErrInvalid, status)
	}
	all, err := t.all(ctx)
	if err != nil {
		return nil, err
	}

	out := []model.Task{}
	for _, task := range all {
		switch status {
		case "":
		case model.TaskOverdue:
			if !task.Overdue {
				continue
			}
		default:
			if task.Status != status {
				continue
			}
		}
		out = append(out, task)
	}
	return out, nil
}

// Get returns one task.
func (t *Tracker) Get(ctx context.Context, id string) (*model.Task, error) {
	e, err := t.store.Get(ctx, Collection, id)
	if err != nil {
		return nil, err
	}
	task, err := t.fromEntry(*e)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Complete marks a task done. Completing a done task changes nothing.
func (t *Tracker) Complete(ctx context.Context, id string) (*model.Task, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: task id is required", store.ErrInvalid)
	}
	e, err := t.store.Mutate(ctx, Collection, id, func(cur *model.Entry) (map[string]any, error) {
		if cur == nil {
			return nil, fmt.Errorf("%w: task %s", store.ErrNotFound, id)
		}
		if model.TaskStatus(cur.String("status")) == model.TaskDone {
			return nil, nil
		}
		fields := make(map[string]any, len(cur.Fields)+2)
		for k, v := range cur.Fields {
			fields[k] = v
		}
		fields["status"] = string(model.TaskDone)
		fields["completed_at"] = model.FormatTime(t.clock.Now())
		return fields, nil
	})
	if err != nil {
		return nil, err
	}
	task, err := t.fromEntry(*e)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Remove deletes a task. Unknown ids are reported as not found so typos
// surface; the underlying delete is still idempotent.
func (t *Tracker) Remove(ctx context.Context, id string) error {
	if _, err := t.store.Get(ctx, Collection, id); err != nil {
		return err
	}
	return t.store.Delete(ctx, Collection, id)
}

// Check returns every overdue task. It never writes.
func (t *Tracker) Check(ctx context.Context) ([]model.Task, error) {
	return t.List(ctx, model.TaskOverdue)
}

// Report buckets pending tasks by due day.
func (t *Tracker) Report(ctx context.Context) (*Report, error) {
	pending, err := t.List(ctx, model.TaskPending)
	if err != nil {
		return nil, err
	}

	now := t.clock.Now().In(t.loc)
	today := now.Format(dateLayout)
	tomorrow := now.AddDate(0, 0, 1).Format(dateLayout)

	r := &Report{
		Overdue:      []model.Task{},
		DueToday:     []model.Task{},
		DueTomorrow:  []model.Task{},
		PendingCount: len(pending),
	}
	for _, task := range pending {
		if task.Due == nil {
			continue
		}
		switch day := task.Due.In(t.loc).Format(dateLayout); {
		case task.Overdue:
			r.Overdue = append(r.Overdue, task)
		case day == today:
			r.DueToday = append(r.DueToday, task)
		case day == tomorrow:
			r.DueTomorrow = append(r.DueTomorrow, task)
		}
	}
	return r, nil
}

// Candidates runs the extractor without persisting anything. Extraction
// failures are logged and yield no candidates.
func (t *Tracker) Candidates(ctx context.Context, text string) ([]model.Candidate, error) {
	if t.extractor == nil {
		return nil, ErrNoExtractor
	}
	out := []model.Candidate{}
	if strings.TrimSpace(text) == "" {
		return out, nil
	}
	found, err := t.extractor.Extract(ctx, text)
	if err != nil {
		t.log.Warn("commitment extraction failed", "error", err)
		return out, nil
	}
	for _, c := range found {
		c.Text = strings.TrimSpace(c.Text)
		if c.Text == "" {
			continue
		}
		c.Due = strings.TrimSpace(c.Due)
		out = append(out, c)
	}
	return out, nil
}

// Extract turns every accepted candidate into exactly one task. A
// candidate due that cannot be parsed leaves the task undated.
func (t *Tracker) Extract(ctx context.Context, text, source string) ([]model.Task, error) {
	candidates, err := t.Candidates(ctx, text)
	if err != nil {
		return nil, err
	}
	if source == "" {
		source = SourceExtracted
	}

	out := []model.Task{}
	for _, c := range candidates {
		due := c.Due
		if due != "" {
			if _, _, err := ParseDue(due, t.clock.Now(), t.loc); err != nil {
				t.log.Debug("dropping unparseable candidate due", "due", due, "text", c.Text)
				due = ""
			}
		}
		task, err := t.Add(ctx, c.Text, due, source)
		if err != nil {
			return out, err
		}
		out = append(out, *task)
	}
	return out, nil
}

func (t *Tracker) all(ctx context.Context) ([]model.Task, error) {
	entries, err := t.store.List(ctx, Collection)
	if err != nil {
		return nil, err
	}
	out := make([]model.Task, 0, len(entries))
	for _, e := range entries {
		task, err := t.fromEntry(e)
		if err != nil {
			// The collection is writable through the generic store
			// commands, so a malformed entry is skipped rather than
			// failing every task query.
			t.log.Warn("skipping malformed task", "id", e.ID, "error", err)
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

func (t *Tracker) fromEntry(e model.Entry) (model.Task, error) {
	task := model.Task{
		ID:      e.ID,
		Text:    e.String("text"),
		Status:  model.TaskStatus(e.String("status")),
		Source:  e.String("source"),
		Created: e.Created,
		Updated: e.Updated,
	}
	if task.Text == "" {
		task.Text = e.String("content")
	}
	if task.Text == "" {
		return task, errors.New("task has no text")
	}
	switch task.Status {
	case "":
		task.Status = model.TaskPending
	case model.TaskPending, model.TaskDone:
	default:
		return task, fmt.Errorf("stored status %q", task.Status)
	}
	if raw := e.String("due"); raw != "" {
		due, allDay, err := readDue(raw, t.loc)
		if err != nil {
			return task, fmt.Errorf("due %q: %w", raw, err)
		}
		task.Due, task.AllDay = &due, allDay
	}
	if at, ok := e.Time("completed_at"); ok {
		task.CompletedAt = &at
	}
	task.Overdue = task.OverdueAt(t.clock.Now())
	return task, nil
}
