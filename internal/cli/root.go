// Package cli implements the agent-pulse CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-pulse/internal/clock"
	"github.com/rcliao/agent-pulse/internal/config"
	"github.com/rcliao/agent-pulse/internal/extract"
	"github.com/rcliao/agent-pulse/internal/heartbeat"
	"github.com/rcliao/agent-pulse/internal/integration"
	"github.com/rcliao/agent-pulse/internal/store"
	"github.com/rcliao/agent-pulse/internal/tasks"
)

var (
	homeFlag   string
	configFlag string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "agent-pulse",
	Short: "Persistent state and heartbeat checks for a personal agent",
	Long: "A small CLI for an agent's persistent state: a document store, an activity log, " +
		"a task tracker and a heartbeat that decides when to interrupt you. JSON in, JSON out.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&homeFlag, "home", "d", "", "State directory (default: $AGENT_PULSE_HOME or ~/.agent-pulse)")
	RootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Config file (default: $AGENT_PULSE_CONFIG or <home>/config.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

// app carries what every command needs after config is loaded.
type app struct {
	cfg *config.Config
	log *slog.Logger
	loc *time.Location
}

func loadApp() *app {
	cfg, err := config.Load(config.LoadOptions{Path: configFlag, Home: homeFlag})
	if err != nil {
		exitErr("config", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		exitErr("config", err)
	}
	return &app{cfg: cfg, log: cfg.Logger(os.Stderr), loc: loc}
}

func (a *app) openStore() (store.Store, error) {
	return store.Open(a.cfg.Backend, a.cfg.Home)
}

// mustOpen loads config and opens the store, exiting on failure.
func mustOpen() (*app, store.Store) {
	a := loadApp()
	s, err := a.openStore()
	if err != nil {
		exitErr("open store", err)
	}
	return a, s
}

func (a *app) tracker(s store.Store) *tasks.Tracker {
	opts := []tasks.Option{tasks.WithLogger(a.log)}
	x, err := extract.New(a.cfg.Extract)
	if err != nil {
		exitErr("extractor", err)
	}
	if x != nil {
		opts = append(opts, tasks.WithExtractor(x))
	}
	return tasks.New(s, clock.Real(), a.loc, opts...)
}

func (a *app) engine(s store.Store) (*heartbeat.Engine, error) {
	providers, err := integration.Providers(a.cfg.Providers)
	if err != nil {
		return nil, err
	}
	return heartbeat.New(s, a.tracker(s), integration.NewDelivery(a.cfg.Delivery, s),
		heartbeat.WithClock(clock.Real()),
		heartbeat.WithLogger(a.log),
		heartbeat.WithSettings(a.cfg.Heartbeat),
		heartbeat.WithLocation(a.loc),
		heartbeat.WithProviders(providers...),
	), nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// output prints v as indented JSON, or through text when --format text
// is selected and the command has a text rendering.
func output(v any, text func(w io.Writer)) {
	if formatFlag == "text" && text != nil {
		text(os.Stdout)
		return
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitErr("encode output", err)
	}
	fmt.Println(string(b))
}

// readInput joins positional args, falling back to piped stdin.
func readInput(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if stat != nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}
