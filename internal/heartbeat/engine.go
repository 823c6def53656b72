// Package heartbeat decides, on a schedule or on demand, whether anything
// deserves interrupting the user. Each check gathers checklist candidates,
// drops those still inside a suppression window, composes one combined
// notification from the rest and hands it to a delivery collaborator.
package heartbeat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/agent-pulse/internal/clock"
	"github.com/rcliao/agent-pulse/internal/config"
	"github.com/rcliao/agent-pulse/internal/integration"
	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
	"github.com/rcliao/agent-pulse/internal/tasks"
)

// Entry ids inside the _heartbeat collection.
const (
	stateID = "state"
	wakeID  = "wake"
)

// ActionCheck is the activity action written once per check.
const ActionCheck = "heartbeat.check"

// Outcome is the result of one check.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeNotify Outcome = "notify"
)

// Result describes one completed check.
type Result struct {
	Outcome       Outcome      `json:"outcome"`
	CheckedAt     time.Time    `json:"checked_at"`
	Trigger       string       `json:"trigger"`
	Coalesced     bool         `json:"coalesced,omitempty"`
	Candidates    int          `json:"candidates"`
	Suppressed    int          `json:"suppressed"`
	Notification  string       `json:"notification_id,omitempty"`
	Message       string       `json:"message,omitempty"`
	Items         []model.Item `json:"items,omitempty"`
	Omitted       []model.Item `json:"omitted,omitempty"`
	Delivered     bool         `json:"delivered"`
	DeliveryError string       `json:"delivery_error,omitempty"`
}

// Engine is the heartbeat engine. It holds no state between calls; all of
// it lives in the store so separate processes observe the same windows.
type Engine struct {
	store     store.Store
	tasks     *tasks.Tracker
	delivery  integration.Delivery
	providers []integration.Provider
	clock     clock.Clock
	log       *slog.Logger
	settings  config.HeartbeatConfig
	loc       *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithProviders registers signal providers polled on every check.
func WithProviders(p ...integration.Provider) Option {
	return func(e *Engine) { e.providers = append(e.providers, p...) }
}

// WithSettings overrides the default windows and limits.
func WithSettings(s config.HeartbeatConfig) Option {
	return func(e *Engine) { e.settings = s }
}

// WithLocation sets the zone used for active hours and message dates.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// New returns an Engine reading overdue tasks from tr and delivering to d.
func New(s store.Store, tr *tasks.Tracker, d integration.Delivery, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		tasks:    tr,
		delivery: d,
		clock:    clock.Real(),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		settings: config.Default().Heartbeat,
		loc:      time.Local,
	}
	for _, fn := range opts {
		fn(e)
	}
	return e
}

// Check runs one full cycle. signals are pre-fetched collaborator items
// considered after the engine's own sources. A delivery failure is
// reported in the result, not as an error.
//
// Check shares the lease used by Wake. While another check or wake is
// running, it returns OutcomeOK with Coalesced set and notifies nothing.
// Unlike a wake, it is not absorbed by the coalescing window alone.
func (e *Engine) Check(ctx context.Context, signals ...model.Item) (*Result, error) {
	acquired, _, err := e.acquire(ctx, "check", false)
	if err != nil {
		return nil, err
	}
	if !acquired {
		e.log.Info("heartbeat check coalesced with a running check")
		return &Result{
			Outcome:   OutcomeOK,
			CheckedAt: e.clock.Now().UTC(),
			Trigger:   "check",
			Coalesced: true,
		}, nil
	}
	return e.leased(ctx, "check", signals)
}

func (e *Engine) check(ctx context.Context, trigger string, signals []model.Item) (*Result, error) {
	now := e.clock.Now()
	e.log.Debug("heartbeat check starting", "trigger", trigger)

	candidates, err := e.gather(ctx, signals)
	if err != nil {
		return nil, err
	}
	active, err := e.activeSuppressions(ctx, now, true)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Outcome:    OutcomeOK,
		CheckedAt:  now.UTC(),
		Trigger:    trigger,
		Candidates: len(candidates),
	}

	var eligible []model.Item
	for _, it := range candidates {
		if _, ok := active[SuppressionKey(it)]; ok {
			res.Suppressed++
			continue
		}
		eligible = append(eligible, it)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Urgency > eligible[j].Urgency
	})

	if len(eligible) > 0 {
		if err := e.notify(ctx, now, eligible, res); err != nil {
			return nil, err
		}
	}

	if err := e.recordCheck(ctx, now, res); err != nil {
		return nil, err
	}
	e.log.Info("heartbeat check finished",
		"trigger", trigger,
		"outcome", res.Outcome,
		"candidates", res.Candidates,
		"suppressed", res.Suppressed,
		"items", len(res.Items),
		"omitted", len(res.Omitted))
	return res, nil
}

// gather collects candidates in source order: overdue tasks, manual
// items, unrelayed background completions, providers, explicit signals.
// Duplicate identities keep their first occurrence.
func (e *Engine) gather(ctx context.Context, signals []model.Item) ([]model.Item, error) {
	var items []model.Item

	if e.tasks != nil {
		overdue, err := e.tasks.Check(ctx)
		if err != nil {
			return nil, fmt.Errorf("overdue tasks: %w", err)
		}
		for _, t := range overdue {
			items = append(items, model.Item{
				Source:  model.SourceTask,
				ID:      t.ID,
				Text:    t.Text,
				Urgency: model.UrgencyHigh,
				Due:     t.Due,
			})
		}
	}

	manual, err := e.ManualItems(ctx)
	if err != nil {
		return nil, err
	}
	items = append(items, manual...)

	completions, err := e.PendingCompletions(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range completions {
		items = append(items, completionItem(c))
	}

	items = append(items, integration.Gather(ctx, e.log, e.providers...)...)
	items = append(items, signals...)

	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		key := SuppressionKey(it)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out, nil
}

func (e *Engine) notify(ctx context.Context, now time.Time, eligible []model.Item, res *Result) error {
	msg, included, omitted := Compose(eligible, e.settings.MessageBudget, now, e.loc)
	n := model.Notification{
		ID:      ulid.Make().String(),
		Message: msg,
		Items:   included,
		Created: now.UTC(),
	}

	res.Outcome = OutcomeNotify
	res.Notification = n.ID
	res.Message = msg
	res.Items = included
	res.Omitted = omitted

	if err := e.delivery.Enqueue(ctx, n); err != nil {
		// Suppressions are still written below: repeating the same
		// message on every retry is worse than missing one.
		res.DeliveryError = err.Error()
		e.log.Warn("heartbeat delivery failed", "notification", n.ID, "error", err)
	} else {
		res.Delivered = true
	}

	until := now.Add(e.settings.SuppressionWindow)
	var relayed []string
	for _, it := range included {
		if err := e.writeSuppression(ctx, it, now, until, reasonNotified); err != nil {
			return err
		}
		switch it.Source {
		case model.SourceManual:
			if err := e.store.Delete(ctx, store.ChecklistCollection, it.ID); err != nil {
				return err
			}
		case model.SourceBackground:
			relayed = append(relayed, it.ID)
		}
	}
	if len(relayed) > 0 {
		if _, err := e.MarkRelayed(ctx, relayed...); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) recordCheck(ctx context.Context, now time.Time, res *Result) error {
	_, err := e.store.Mutate(ctx, store.HeartbeatCollection, stateID, func(cur *model.Entry) (map[string]any, error) {
		fields := map[string]any{}
		if cur != nil {
			for k, v := range cur.Fields {
				fields[k] = v
			}
		}
		fields["last_check"] = model.FormatTime(now)
		fields["last_outcome"] = string(res.Outcome)
		fields["checks"] = intField(fields["checks"]) + 1
		if res.Outcome == OutcomeNotify {
			fields["last_delivery_error"] = res.DeliveryError
			if res.Delivered {
				fields["last_notify"] = model.FormatTime(now)
			}
		}
		return fields, nil
	})
	if err != nil {
		return fmt.Errorf("record heartbeat state: %w", err)
	}

	details := map[string]any{
		"trigger":    res.Trigger,
		"outcome":    string(res.Outcome),
		"candidates": res.Candidates,
		"suppressed": res.Suppressed,
	}
	if res.Outcome == OutcomeNotify {
		details["notification_id"] = res.Notification
		details["items"] = len(res.Items)
		details["omitted"] = len(res.Omitted)
		details["delivered"] = res.Delivered
	}
	if _, err := e.store.Log(ctx, ActionCheck, details); err != nil {
		return fmt.Errorf("log heartbeat check: %w", err)
	}
	return nil
}

// InActiveHours reports whether t falls inside the configured window.
func (e *Engine) InActiveHours(t time.Time) bool {
	h := t.In(e.loc).Hour()
	return h >= e.settings.ActiveStart && h < e.settings.ActiveEnd
}

func intField(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
