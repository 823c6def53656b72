package heartbeat

import (
	"context"
	"time"

	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

// WakeStatus says whether a wake ran a check or was absorbed.
type WakeStatus string

const (
	WakeExecuted  WakeStatus = "executed"
	WakeCoalesced WakeStatus = "coalesced"
)

// WakeResult is returned by Wake.
type WakeResult struct {
	Status   WakeStatus `json:"status"`
	Reason   string     `json:"reason"`
	Absorbed int        `json:"absorbed,omitempty"`
	Check    *Result    `json:"check,omitempty"`
}

// WakeLease is the persisted coalescing state.
type WakeLease struct {
	Running   bool       `json:"running"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Absorbed  int        `json:"absorbed"`
}

// Wake requests an immediate check. The lease is taken atomically in the
// store, so wakes from any process inside the coalescing window, or while
// a check is still running, return at once without a second check.
func (e *Engine) Wake(ctx context.Context, reason string) (*WakeResult, error) {
	if reason == "" {
		reason = "manual"
	}

	acquired, absorbed, err := e.acquire(ctx, reason, true)
	if err != nil {
		return nil, err
	}
	if !acquired {
		e.log.Info("wake coalesced", "reason", reason, "absorbed", absorbed)
		return &WakeResult{Status: WakeCoalesced, Reason: reason, Absorbed: absorbed}, nil
	}

	e.log.Info("wake triggered", "reason", reason)
	res, err := e.leased(ctx, "wake:"+reason, nil)
	if err != nil {
		return nil, err
	}
	return &WakeResult{Status: WakeExecuted, Reason: reason, Check: res}, nil
}

// acquire takes the lease in one store transaction. A running check that
// is not stale always holds it; with window set, so does a lease still
// inside its coalescing window. A caller that does not get the lease is
// counted as absorbed.
func (e *Engine) acquire(ctx context.Context, reason string, window bool) (bool, int, error) {
	now := e.clock.Now()
	var acquired bool
	var absorbed int
	_, err := e.store.Mutate(ctx, store.HeartbeatCollection, wakeID, func(cur *model.Entry) (map[string]any, error) {
		held := cur != nil && e.running(cur, now)
		if cur != nil && window && !held {
			held = e.leaseHeld(cur, now)
		}
		if held {
			acquired = false
			absorbed = cur.Int("absorbed") + 1
			fields := copyFields(cur)
			fields["absorbed"] = absorbed
			fields["reason"] = reason
			return fields, nil
		}
		acquired = true
		return map[string]any{
			"running":    true,
			"started_at": model.FormatTime(now),
			"until":      model.FormatTime(now.Add(e.settings.CoalesceWindow)),
			"reason":     reason,
			"absorbed":   0,
		}, nil
	})
	if err != nil {
		return false, 0, err
	}
	return acquired, absorbed, nil
}

// leased runs a check while holding the lease and releases it afterwards,
// whether or not the check succeeded.
func (e *Engine) leased(ctx context.Context, trigger string, signals []model.Item) (*Result, error) {
	res, checkErr := e.check(ctx, trigger, signals)

	_, err := e.store.Mutate(ctx, store.HeartbeatCollection, wakeID, func(cur *model.Entry) (map[string]any, error) {
		fields := copyFields(cur)
		fields["running"] = false
		fields["finished_at"] = model.FormatTime(e.clock.Now())
		return fields, nil
	})
	if checkErr != nil {
		return nil, checkErr
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// leaseHeld is true inside the coalescing window or while a check that
// is not yet stale is running.
func (e *Engine) leaseHeld(lease *model.Entry, now time.Time) bool {
	if until, ok := lease.Time("until"); ok && now.Before(until) {
		return true
	}
	return e.running(lease, now)
}

// running is true while a check holds the lease and has not gone stale.
func (e *Engine) running(lease *model.Entry, now time.Time) bool {
	if !lease.Bool("running") {
		return false
	}
	started, ok := lease.Time("started_at")
	return ok && now.Sub(started) < e.settings.WakeStaleAfter
}

func wakeLease(en *model.Entry) *WakeLease {
	l := &WakeLease{
		Running:  en.Bool("running"),
		Reason:   en.String("reason"),
		Absorbed: en.Int("absorbed"),
	}
	if t, ok := en.Time("started_at"); ok {
		l.StartedAt = &t
	}
	if t, ok := en.Time("until"); ok {
		l.Until = &t
	}
	return l
}

func copyFields(en *model.Entry) map[string]any {
	fields := map[string]any{}
	if en != nil {
		for k, v := range en.Fields {
			fields[k] = v
		}
	}
	return fields
}
