package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rcliao/agent-pulse/internal/chunker"
	"github.com/rcliao/agent-pulse/internal/config"
	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

// ErrDelivery marks a failure to hand a notification to its destination.
var ErrDelivery = errors.New("notification delivery failed")

// Delivery accepts composed notifications.
type Delivery interface {
	Enqueue(ctx context.Context, n model.Notification) error
}

// OutboxMessage is one queued part of a notification.
type OutboxMessage struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notification_id"`
	Part           int       `json:"part"`
	Parts          int       `json:"parts"`
	Text           string    `json:"text"`
	Created        time.Time `json:"created"`
}

// Outbox queues notifications in the store for a messaging bridge to
// drain. Long messages are split into parts that fit the channel limit.
type Outbox struct {
	store store.Store
	limit int
}

// NewOutbox returns an Outbox splitting at limit characters.
func NewOutbox(s store.Store, limit int) *Outbox {
	if limit <= 0 {
		limit = chunker.DefaultLimit
	}
	return &Outbox{store: s, limit: limit}
}

func (o *Outbox) Enqueue(ctx context.Context, n model.Notification) error {
	parts := chunker.Split(n.Message, o.limit)
	if len(parts) == 0 {
		return fmt.Errorf("%w: empty message", ErrDelivery)
	}
	for i, text := range parts {
		_, err := o.store.Set(ctx, store.OutboxCollection, map[string]any{
			"notification_id": n.ID,
			"part":            i + 1,
			"parts":           len(parts),
			"text":            text,
		})
		if err != nil {
			return fmt.Errorf("%w: queue part %d/%d: %v", ErrDelivery, i+1, len(parts), err)
		}
	}
	return nil
}

// Pending lists queued parts, oldest first.
func (o *Outbox) Pending(ctx context.Context) ([]OutboxMessage, error) {
	entries, err := o.store.List(ctx, store.OutboxCollection)
	if err != nil {
		return nil, err
	}
	out := make([]OutboxMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, OutboxMessage{
			ID:             e.ID,
			NotificationID: e.String("notification_id"),
			Part:           e.Int("part"),
			Parts:          e.Int("parts"),
			Text:           e.String("text"),
			Created:        e.Created,
		})
	}
	return out, nil
}

// Ack removes delivered parts. Unknown ids are ignored.
func (o *Outbox) Ack(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if err := o.store.Delete(ctx, store.OutboxCollection, id); err != nil {
			return err
		}
	}
	return nil
}

// CommandDelivery pipes each notification to an external command's
// standard input.
type CommandDelivery struct {
	argv    []string
	timeout time.Duration
}

// NewCommandDelivery returns a delivery for argv.
func NewCommandDelivery(argv []string, timeout time.Duration) *CommandDelivery {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommandDelivery{argv: argv, timeout: timeout}
}

func (d *CommandDelivery) Enqueue(ctx context.Context, n model.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.argv[0], d.argv[1:]...)
	cmd.Stdin = strings.NewReader(n.Message)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrDelivery, d.argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// NewDelivery picks the command delivery when one is configured and the
// store outbox otherwise.
func NewDelivery(cfg config.DeliveryConfig, s store.Store) Delivery {
	if len(cfg.Command) > 0 {
		return NewCommandDelivery(cfg.Command, 0)
	}
	return NewOutbox(s, cfg.MaxMessage)
}
