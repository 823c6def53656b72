package heartbeat

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

// Suppression reasons.
const (
	reasonNotified = "notified"
	reasonManual   = "manual"
)

// SuppressionKey is the stable identity of an item: a hash of its source
// and id. Text is deliberately excluded so a reworded reminder with the
// same id stays suppressed.
func SuppressionKey(it model.Item) string {
	sum := blake3.Sum256([]byte(it.Source + "\x00" + it.ID))
	return hex.EncodeToString(sum[:16])
}

// Suppress pre-creates a suppression for ref, skipping that item for the
// given number of days (0 means the suppression window). ref is either
// "source:id" for a known source or free text naming a manual item.
func (e *Engine) Suppress(ctx context.Context, ref string, days int) (*model.Suppression, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: days must not be negative", store.ErrInvalid)
	}
	it, err := e.resolveRef(ref)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	window := e.settings.SuppressionWindow
	if days > 0 {
		window = time.Duration(days) * 24 * time.Hour
	}
	if err := e.writeSuppression(ctx, it, now, now.Add(window), reasonManual); err != nil {
		return nil, err
	}
	e.log.Info("item suppressed", "ref", it.Ref(), "until", now.Add(window))
	return &model.Suppression{
		Key:    SuppressionKey(it),
		Ref:    it.Ref(),
		Text:   it.Text,
		At:     now.UTC(),
		Until:  now.Add(window).UTC(),
		Reason: reasonManual,
	}, nil
}

// ClearSuppressions deletes every suppression record.
func (e *Engine) ClearSuppressions(ctx context.Context) (int, error) {
	entries, err := e.store.List(ctx, store.SuppressionCollection)
	if err != nil {
		return 0, err
	}
	for i, en := range entries {
		if err := e.store.Delete(ctx, store.SuppressionCollection, en.ID); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

// Suppressions lists the records still active at now, without pruning.
func (e *Engine) Suppressions(ctx context.Context) ([]model.Suppression, error) {
	active, err := e.activeSuppressions(ctx, e.clock.Now(), false)
	if err != nil {
		return nil, err
	}
	entries, err := e.store.List(ctx, store.SuppressionCollection)
	if err != nil {
		return nil, err
	}
	out := []model.Suppression{}
	for _, en := range entries {
		if s, ok := active[en.ID]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// activeSuppressions maps key to record for every unexpired suppression.
// With prune set, expired and unreadable records are deleted.
func (e *Engine) activeSuppressions(ctx context.Context, now time.Time, prune bool) (map[string]model.Suppression, error) {
	entries, err := e.store.List(ctx, store.SuppressionCollection)
	if err != nil {
		return nil, err
	}
	active := make(map[string]model.Suppression, len(entries))
	for _, en := range entries {
		s, ok := suppressionFromEntry(en)
		if ok && s.Active(now) {
			active[s.Key] = s
			continue
		}
		if prune {
			if err := e.store.Delete(ctx, store.SuppressionCollection, en.ID); err != nil {
				return nil, err
			}
		}
	}
	return active, nil
}

func (e *Engine) writeSuppression(ctx context.Context, it model.Item, at, until time.Time, reason string) error {
	_, err := e.store.Set(ctx, store.SuppressionCollection, map[string]any{
		"id":     SuppressionKey(it),
		"ref":    it.Ref(),
		"text":   it.Text,
		"at":     model.FormatTime(at),
		"until":  model.FormatTime(until),
		"reason": reason,
	})
	if err != nil {
		return fmt.Errorf("write suppression for %s: %w", it.Ref(), err)
	}
	return nil
}

func suppressionFromEntry(en model.Entry) (model.Suppression, bool) {
	until, ok := en.Time("until")
	if !ok {
		return model.Suppression{}, false
	}
	at, _ := en.Time("at")
	return model.Suppression{
		Key:    en.ID,
		Ref:    en.String("ref"),
		Text:   en.String("text"),
		At:     at,
		Until:  until,
		Reason: en.String("reason"),
	}, true
}

// resolveRef turns a user-supplied reference into an item identity.
func (e *Engine) resolveRef(ref string) (model.Item, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.Item{}, fmt.Errorf("%w: item is required", store.ErrInvalid)
	}
	if source, id, ok := strings.Cut(ref, ":"); ok && id != "" && e.knownSource(source) {
		return model.Item{Source: source, ID: id}, nil
	}
	return model.Item{Source: model.SourceManual, ID: ManualID(ref), Text: ref}, nil
}

func (e *Engine) knownSource(source string) bool {
	switch source {
	case model.SourceTask, model.SourceManual, model.SourceBackground:
		return true
	}
	for _, p := range e.providers {
		if p.Name() == source {
			return true
		}
	}
	return false
}
