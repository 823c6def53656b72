package heartbeat

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/text/cases"

	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

// ManualID derives a manual item's id from its text, ignoring case and
// whitespace differences, so re-adding the same item is a no-op.
func ManualID(text string) string {
	norm := cases.Fold().String(strings.Join(strings.Fields(text), " "))
	sum := blake3.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:8])
}

// Added is the result of Add. SuppressedUntil is set when a suppression
// the user asked for still holds the item back.
type Added struct {
	model.Item
	SuppressedUntil *time.Time `json:"suppressed_until,omitempty"`
}

// Add queues a manual checklist item for the next check. Items are
// one-shot: they leave the checklist once included in a notification.
// Re-adding an item that was already notified clears that notification's
// suppression; a suppression set with Suppress is kept and reported.
func (e *Engine) Add(ctx context.Context, text string) (*Added, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: item text is required", store.ErrInvalid)
	}
	en, err := e.store.Set(ctx, store.ChecklistCollection, map[string]any{
		"id":   ManualID(text),
		"text": text,
	})
	if err != nil {
		return nil, err
	}
	out := &Added{Item: manualItem(*en)}

	key := SuppressionKey(out.Item)
	sup, err := e.store.Get(ctx, store.SuppressionCollection, key)
	if errors.Is(err, store.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	s, ok := suppressionFromEntry(*sup)
	if !ok || !s.Active(e.clock.Now()) {
		return out, nil
	}
	if s.Reason == reasonNotified {
		if err := e.store.Delete(ctx, store.SuppressionCollection, key); err != nil {
			return nil, err
		}
		e.log.Info("re-added item released from suppression", "ref", out.Ref())
		return out, nil
	}
	until := s.Until
	out.SuppressedUntil = &until
	return out, nil
}

// ManualItems lists queued manual items in the order they were added.
func (e *Engine) ManualItems(ctx context.Context) ([]model.Item, error) {
	entries, err := e.store.List(ctx, store.ChecklistCollection)
	if err != nil {
		return nil, err
	}
	items := []model.Item{}
	for _, en := range entries {
		if en.String("text") == "" {
			continue
		}
		items = append(items, manualItem(en))
	}
	return items, nil
}

func manualItem(en model.Entry) model.Item {
	return model.Item{
		Source:  model.SourceManual,
		ID:      en.ID,
		Text:    en.String("text"),
		Urgency: model.UrgencyNormal,
	}
}
