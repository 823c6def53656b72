package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

// Status is a read-only snapshot of the engine's persisted state.
type Status struct {
	LastCheck           *time.Time          `json:"last_check"`
	LastNotify          *time.Time          `json:"last_notify"`
	LastOutcome         string              `json:"last_outcome,omitempty"`
	LastDeliveryError   string              `json:"last_delivery_error,omitempty"`
	Checks              int                 `json:"checks"`
	PendingSuppressions []model.Suppression `json:"pending_suppressions"`
	ManualItems         []model.Item        `json:"manual_items"`
	PendingCompletions  []model.Completion  `json:"pending_completions"`
	Wake                *WakeLease          `json:"wake,omitempty"`
	Timezone            string              `json:"timezone"`
	ActiveHours         string              `json:"active_hours"`
	Active              bool                `json:"active"`
}

// Status reports the last check, last notification, active suppressions
// and queued items. It never writes.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	now := e.clock.Now()
	st := &Status{
		Timezone:    e.loc.String(),
		ActiveHours: fmt.Sprintf("%02d:00-%02d:00", e.settings.ActiveStart, e.settings.ActiveEnd),
		Active:      e.InActiveHours(now),
	}

	state, err := e.store.Get(ctx, store.HeartbeatCollection, stateID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if t, ok := state.Time("last_check"); ok {
			st.LastCheck = &t
		}
		if t, ok := state.Time("last_notify"); ok {
			st.LastNotify = &t
		}
		st.LastOutcome = state.String("last_outcome")
		st.LastDeliveryError = state.String("last_delivery_error")
		st.Checks = state.Int("checks")
	}

	lease, err := e.store.Get(ctx, store.HeartbeatCollection, wakeID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		st.Wake = wakeLease(lease)
	}

	if st.PendingSuppressions, err = e.Suppressions(ctx); err != nil {
		return nil, err
	}
	if st.ManualItems, err = e.ManualItems(ctx); err != nil {
		return nil, err
	}
	if st.PendingCompletions, err = e.PendingCompletions(ctx); err != nil {
		return nil, err
	}
	return st, nil
}
