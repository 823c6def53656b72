package heartbeat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

// MaxResultLen bounds a stored completion result, in characters.
const MaxResultLen = 500

// DefaultCompletionType labels completions recorded without a type.
const DefaultCompletionType = "background"

// RecordCompletion stores the outcome of a background job so the next
// check can relay it. Recording the same id again replaces the earlier
// result. Only the newest completions are kept.
func (e *Engine) RecordCompletion(ctx context.Context, id, result, typ string) (*model.Completion, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: completion id is required", store.ErrInvalid)
	}
	if typ == "" {
		typ = DefaultCompletionType
	}
	result = truncate(strings.TrimSpace(result), MaxResultLen)

	now := e.clock.Now()
	en, err := e.store.Mutate(ctx, store.CompletionCollection, id, func(*model.Entry) (map[string]any, error) {
		return map[string]any{
			"type":         typ,
			"result":       result,
			"completed_at": model.FormatTime(now),
			"relayed":      false,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if err := e.trimCompletions(ctx); err != nil {
		return nil, err
	}
	c := completionFromEntry(*en)
	return &c, nil
}

// MarkRelayed flags completions as delivered. Unknown ids are ignored; the
// number actually marked is returned.
func (e *Engine) MarkRelayed(ctx context.Context, ids ...string) (int, error) {
	marked := 0
	for _, id := range ids {
		_, err := e.store.Mutate(ctx, store.CompletionCollection, id, func(cur *model.Entry) (map[string]any, error) {
			if cur == nil || cur.Bool("relayed") {
				return nil, nil
			}
			fields := make(map[string]any, len(cur.Fields))
			for k, v := range cur.Fields {
				fields[k] = v
			}
			fields["relayed"] = true
			marked++
			return fields, nil
		})
		if err != nil {
			return marked, err
		}
	}
	return marked, nil
}

// Completions lists every retained completion, oldest first.
func (e *Engine) Completions(ctx context.Context) ([]model.Completion, error) {
	entries, err := e.store.List(ctx, store.CompletionCollection)
	if err != nil {
		return nil, err
	}
	out := make([]model.Completion, 0, len(entries))
	for _, en := range entries {
		out = append(out, completionFromEntry(en))
	}
	return out, nil
}

// PendingCompletions lists completions not yet relayed.
func (e *Engine) PendingCompletions(ctx context.Context) ([]model.Completion, error) {
	all, err := e.Completions(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.Completion{}
	for _, c := range all {
		if !c.Relayed {
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *Engine) trimCompletions(ctx context.Context) error {
	entries, err := e.store.List(ctx, store.CompletionCollection)
	if err != nil {
		return err
	}
	for i := 0; i < len(entries)-e.settings.CompletionLimit; i++ {
		if err := e.store.Delete(ctx, store.CompletionCollection, entries[i].ID); err != nil {
			return err
		}
	}
	return nil
}

func completionFromEntry(en model.Entry) model.Completion {
	c := model.Completion{
		ID:      en.ID,
		Type:    en.String("type"),
		Result:  en.String("result"),
		Relayed: en.Bool("relayed"),
	}
	if at, ok := en.Time("completed_at"); ok {
		c.CompletedAt = at
	}
	return c
}

func completionItem(c model.Completion) model.Item {
	text := c.ID + " finished"
	if c.Type != "" && c.Type != DefaultCompletionType {
		text = c.Type + " " + text
	}
	if c.Result != "" {
		text += ": " + c.Result
	}
	return model.Item{
		Source:  model.SourceBackground,
		ID:      c.ID,
		Text:    text,
		Urgency: model.UrgencyInfo,
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
