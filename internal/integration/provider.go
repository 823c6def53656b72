// Package integration holds the collaborators the heartbeat engine talks
// to: signal providers that supply checklist items, and delivery targets
// that accept composed notifications.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rcliao/agent-pulse/internal/config"
	"github.com/rcliao/agent-pulse/internal/model"
)

// Provider is a read-only source of checklist candidates.
type Provider interface {
	Name() string
	Items(ctx context.Context) ([]model.Item, error)
}

// providerItem is the JSON shape a provider command prints.
type providerItem struct {
	ID      string         `json:"id"`
	Text    string         `json:"text"`
	Urgency *model.Urgency `json:"urgency"`
	Due     string         `json:"due"`
}

// CommandProvider runs an external command that prints a JSON array of
// items on standard output.
type CommandProvider struct {
	name    string
	argv    []string
	timeout time.Duration
	urgency model.Urgency
}

// NewCommandProvider builds a provider from its configuration.
func NewCommandProvider(cfg config.ProviderConfig) (*CommandProvider, error) {
	if cfg.Name == "" || len(cfg.Command) == 0 {
		return nil, fmt.Errorf("provider needs a name and a command")
	}
	urgency, err := model.ParseUrgency(cfg.Urgency)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommandProvider{name: cfg.Name, argv: cfg.Command, timeout: timeout, urgency: urgency}, nil
}

// Providers builds every configured provider.
func Providers(cfgs []config.ProviderConfig) ([]Provider, error) {
	out := make([]Provider, 0, len(cfgs))
	for _, c := range cfgs {
		p, err := NewCommandProvider(c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (p *CommandProvider) Name() string { return p.name }

func (p *CommandProvider) Items(ctx context.Context) ([]model.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("provider %s: %w: %s", p.name, err, strings.TrimSpace(stderr.String()))
	}
	return p.decode(stdout.Bytes())
}

func (p *CommandProvider) decode(out []byte) ([]model.Item, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return []model.Item{}, nil
	}
	var raw []providerItem
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("provider %s: decode output: %w", p.name, err)
	}

	items := make([]model.Item, 0, len(raw))
	for _, r := range raw {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		item := model.Item{Source: p.name, ID: r.ID, Text: text, Urgency: p.urgency}
		if item.ID == "" {
			item.ID = text
		}
		if r.Urgency != nil {
			item.Urgency = *r.Urgency
		}
		if due, err := time.Parse(time.RFC3339, r.Due); err == nil {
			item.Due = &due
		}
		items = append(items, item)
	}
	return items, nil
}

// Gather collects items from every provider in order. A failing provider
// is logged and skipped so one broken integration never blocks a check.
func Gather(ctx context.Context, log *slog.Logger, providers ...Provider) []model.Item {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	items := []model.Item{}
	for _, p := range providers {
		got, err := p.Items(ctx)
		if err != nil {
			log.Warn("signal provider failed", "provider", p.Name(), "error", err)
			continue
		}
		log.Debug("signal provider", "provider", p.Name(), "items", len(got))
		items = append(items, got...)
	}
	return items
}
