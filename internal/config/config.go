// Package config loads agent-pulse configuration.
//
// Values are layered: Default, then an optional YAML file, then
// AGENT_PULSE_* environment variables, then command-line flags applied by
// the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/agent-pulse/internal/model"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENT_PULSE_"

// Config is the full agent-pulse configuration.
type Config struct {
	// Home is the state directory holding the database and config.yaml.
	Home string `yaml:"home" env:"HOME"`

	// Backend selects the store implementation: sqlite or bolt.
	Backend string `yaml:"backend" env:"BACKEND"`

	// Timezone is an IANA zone name used for calendar-day semantics.
	Timezone string `yaml:"timezone" env:"TIMEZONE"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	Heartbeat HeartbeatConfig `yaml:"heartbeat" envPrefix:"HEARTBEAT_"`
	Extract   ExtractConfig   `yaml:"extract" envPrefix:"EXTRACT_"`
	Delivery  DeliveryConfig  `yaml:"delivery" envPrefix:"DELIVERY_"`

	// Providers are external signal sources polled on every check. YAML only.
	Providers []ProviderConfig `yaml:"providers"`
}

// HeartbeatConfig tunes the heartbeat engine and its runner.
type HeartbeatConfig struct {
	Interval          time.Duration `yaml:"interval" env:"INTERVAL"`
	SuppressionWindow time.Duration `yaml:"suppression_window" env:"SUPPRESSION_WINDOW"`
	CoalesceWindow    time.Duration `yaml:"coalesce_window" env:"COALESCE_WINDOW"`
	WakeStaleAfter    time.Duration `yaml:"wake_stale_after" env:"WAKE_STALE_AFTER"`

	// ActiveStart and ActiveEnd bound the hours (local to Timezone) during
	// which the runner performs scheduled checks: [start, end).
	ActiveStart int `yaml:"active_start" env:"ACTIVE_START"`
	ActiveEnd   int `yaml:"active_end" env:"ACTIVE_END"`

	// MessageBudget caps the composed notification length in characters.
	// It must be at least MinMessageBudget.
	MessageBudget int `yaml:"message_budget" env:"MESSAGE_BUDGET"`

	// CompletionLimit is how many background completions are retained.
	CompletionLimit int `yaml:"completion_limit" env:"COMPLETION_LIMIT"`
}

// ExtractConfig selects the commitment-extraction collaborator.
type ExtractConfig struct {
	// Provider is command, ollama, openai, or empty to disable extraction.
	Provider string        `yaml:"provider" env:"PROVIDER"`
	Command  []string      `yaml:"command" env:"COMMAND" envSeparator:" "`
	Model    string        `yaml:"model" env:"MODEL"`
	URL      string        `yaml:"url" env:"URL"`
	APIKey   string        `yaml:"api_key" env:"API_KEY"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DeliveryConfig selects where notifications go. With no command they are
// queued in the store's outbox collection.
type DeliveryConfig struct {
	Command    []string `yaml:"command" env:"COMMAND" envSeparator:" "`
	MaxMessage int      `yaml:"max_message" env:"MAX_MESSAGE"`
}

// ProviderConfig describes one external signal source.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
	Urgency string        `yaml:"urgency"`
}

// Default returns the built-in configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Home:      filepath.Join(homeDir, ".agent-pulse"),
		Backend:   "sqlite",
		Timezone:  "Local",
		LogLevel:  "warn",
		LogFormat: "text",
		Heartbeat: HeartbeatConfig{
			Interval:          2 * time.Hour,
			SuppressionWindow: 24 * time.Hour,
			CoalesceWindow:    30 * time.Second,
			WakeStaleAfter:    10 * time.Minute,
			ActiveStart:       8,
			ActiveEnd:         23,
			MessageBudget:     1500,
			CompletionLimit:   20,
		},
		Extract: ExtractConfig{
			Timeout: 60 * time.Second,
		},
		Delivery: DeliveryConfig{
			MaxMessage: 2000,
		},
	}
}

// LoadOptions carries the command-line inputs that affect loading.
type LoadOptions struct {
	// Path is an explicit config file. It must exist when set.
	Path string
	// Home overrides the state directory after all other layers.
	Home string
}

// Load builds the configuration. The file is taken from opts.Path, then
// $AGENT_PULSE_CONFIG, then <home>/config.yaml when that file exists.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	path, required := opts.Path, opts.Path != ""
	if path == "" {
		path, required = os.Getenv(EnvPrefix+"CONFIG"), os.Getenv(EnvPrefix+"CONFIG") != ""
	}
	if path == "" {
		home := opts.Home
		if home == "" {
			home = os.Getenv(EnvPrefix + "HOME")
		}
		if home == "" {
			home = cfg.Home
		}
		path = filepath.Join(expandHome(home), "config.yaml")
	}

	if err := cfg.loadFile(path); err != nil {
		if required || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if opts.Home != "" {
		cfg.Home = opts.Home
	}
	cfg.Home = expandHome(cfg.Home)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnv overlays AGENT_PULSE_* variables. Unset variables leave the
// current value alone.
func (c *Config) applyEnv() error {
	providers := c.Providers
	c.Providers = nil
	defer func() { c.Providers = providers }()

	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// MinMessageBudget fits the longest heartbeat header, a newline and a
// first item truncated to 20 characters.
const MinMessageBudget = 47

// Validate rejects values the rest of the program cannot act on.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case "sqlite", "bolt":
	default:
		errs = append(errs, fmt.Errorf("backend %q: use sqlite or bolt", c.Backend))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: use text or json", c.LogFormat))
	}

	hb := c.Heartbeat
	if hb.Interval <= 0 || hb.SuppressionWindow <= 0 || hb.CoalesceWindow <= 0 || hb.WakeStaleAfter <= 0 {
		errs = append(errs, errors.New("heartbeat durations must be positive"))
	}
	if hb.ActiveStart < 0 || hb.ActiveEnd > 24 || hb.ActiveStart >= hb.ActiveEnd {
		errs = append(errs, fmt.Errorf("heartbeat active hours %d-%d: need 0 <= start < end <= 24", hb.ActiveStart, hb.ActiveEnd))
	}
	if hb.MessageBudget < MinMessageBudget {
		errs = append(errs, fmt.Errorf("heartbeat.message_budget %d: must be at least %d", hb.MessageBudget, MinMessageBudget))
	}
	if hb.CompletionLimit <= 0 {
		errs = append(errs, errors.New("heartbeat.completion_limit must be positive"))
	}

	switch c.Extract.Provider {
	case "":
	case "command":
		if len(c.Extract.Command) == 0 {
			errs = append(errs, errors.New("extract.command is required for the command provider"))
		}
	case "ollama", "openai":
		if c.Extract.Model == "" {
			errs = append(errs, fmt.Errorf("extract.model is required for the %s provider", c.Extract.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("extract.provider %q: use command, ollama or openai", c.Extract.Provider))
	}
	if c.Delivery.MaxMessage <= 0 {
		errs = append(errs, errors.New("delivery.max_message must be positive"))
	}

	seen := map[string]bool{}
	for i, p := range c.Providers {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("providers[%d]: name is required", i))
		case p.Name == model.SourceTask || p.Name == model.SourceManual || p.Name == model.SourceBackground:
			errs = append(errs, fmt.Errorf("providers[%d]: name %q is reserved", i, p.Name))
		case strings.Contains(p.Name, ":"):
			errs = append(errs, fmt.Errorf("providers[%d]: name %q must not contain ':'", i, p.Name))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
		if len(p.Command) == 0 {
			errs = append(errs, fmt.Errorf("providers[%d]: command is required", i))
		}
		if _, err := model.ParseUrgency(p.Urgency); err != nil {
			errs = append(errs, fmt.Errorf("providers[%d]: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Logger builds the structured logger described by LogLevel and LogFormat.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: use debug, info, warn or error", s)
	}
	return level, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
