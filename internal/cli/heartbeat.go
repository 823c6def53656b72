package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-pulse/internal/heartbeat"
	"github.com/rcliao/agent-pulse/internal/integration"
	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Decide whether anything deserves a notification",
}

func init() {
	check := &cobra.Command{
		Use:   "check",
		Short: "Run one heartbeat check now",
		Long: "Run one heartbeat check. Exits 0 whether or not a notification was sent; " +
			"delivery failures are reported in the result.",
		Args: cobra.NoArgs,
		Run:  runHeartbeatCheck,
	}
	check.Flags().String("signals", "", "JSON array of extra items to consider (file path, or - for stdin)")

	complete := &cobra.Command{
		Use:   "complete <id> <result>",
		Short: "Record the outcome of a background item",
		Args:  cobra.MinimumNArgs(2),
		Run:   runHeartbeatComplete,
	}
	complete.Flags().String("type", heartbeat.DefaultCompletionType, "Completion type label")

	outbox := &cobra.Command{
		Use:   "outbox",
		Short: "List queued notification parts",
		Args:  cobra.NoArgs,
		Run:   runOutbox,
	}
	outbox.AddCommand(&cobra.Command{
		Use:   "ack <id...>",
		Short: "Remove delivered parts from the outbox",
		Args:  cobra.MinimumNArgs(1),
		Run:   runOutboxAck,
	})

	heartbeatCmd.AddCommand(
		check,
		&cobra.Command{
			Use:   "status",
			Short: "Show last check, last notification and active suppressions",
			Args:  cobra.NoArgs,
			Run:   runHeartbeatStatus,
		},
		&cobra.Command{
			Use:   "add <item>",
			Short: "Queue a one-shot checklist item for the next check",
			Args:  cobra.MinimumNArgs(1),
			Run:   runHeartbeatAdd,
		},
		&cobra.Command{
			Use:   "suppress <item> [days]",
			Short: "Skip an item for N days (default: the suppression window)",
			Long:  "Skip an item. item is source:id (task:<id>, manual:<id>, background:<id>, <provider>:<id>) or the text of a manual item.",
			Args:  cobra.RangeArgs(1, 2),
			Run:   runHeartbeatSuppress,
		},
		&cobra.Command{
			Use:   "clear-suppress",
			Short: "Delete every suppression record",
			Args:  cobra.NoArgs,
			Run:   runHeartbeatClear,
		},
		&cobra.Command{
			Use:   "wake [reason]",
			Short: "Request an immediate check; rapid wakes coalesce",
			Args:  cobra.MaximumNArgs(1),
			Run:   runHeartbeatWake,
		},
		complete,
		&cobra.Command{
			Use:   "completions",
			Short: "List recorded background completions",
			Args:  cobra.NoArgs,
			Run:   runHeartbeatCompletions,
		},
		&cobra.Command{
			Use:   "mark-relayed <id...>",
			Short: "Mark background completions as relayed",
			Args:  cobra.MinimumNArgs(1),
			Run:   runHeartbeatMarkRelayed,
		},
		outbox,
	)

	RootCmd.AddCommand(heartbeatCmd)
}

// mustEngine opens the store and builds the engine, exiting on failure.
func mustEngine() (*app, store.Store, *heartbeat.Engine) {
	a, s := mustOpen()
	e, err := a.engine(s)
	if err != nil {
		s.Close()
		exitErr("heartbeat", err)
	}
	return a, s, e
}

func runHeartbeatCheck(cmd *cobra.Command, args []string) {
	path, _ := cmd.Flags().GetString("signals")
	signals, err := readSignals(path)
	if err != nil {
		exitErr("signals", err)
	}

	_, s, e := mustEngine()
	defer s.Close()

	res, err := e.Check(cmd.Context(), signals...)
	if err != nil {
		exitErr("check", err)
	}
	output(res, checkText(res))
}

func runHeartbeatStatus(cmd *cobra.Command, args []string) {
	_, s, e := mustEngine()
	defer s.Close()

	st, err := e.Status(cmd.Context())
	if err != nil {
		exitErr("status", err)
	}
	output(st, nil)
}

func runHeartbeatAdd(cmd *cobra.Command, args []string) {
	_, s, e := mustEngine()
	defer s.Close()

	it, err := e.Add(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		exitErr("add", err)
	}
	output(it, nil)
}

func runHeartbeatSuppress(cmd *cobra.Command, args []string) {
	days := 0
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			exitErr("suppress", fmt.Errorf("%w: days must be a whole number, got %q", store.ErrInvalid, args[1]))
		}
		days = n
	}

	_, s, e := mustEngine()
	defer s.Close()

	sup, err := e.Suppress(cmd.Context(), args[0], days)
	if err != nil {
		exitErr("suppress", err)
	}
	output(sup, nil)
}

func runHeartbeatClear(cmd *cobra.Command, args []string) {
	_, s, e := mustEngine()
	defer s.Close()

	n, err := e.ClearSuppressions(cmd.Context())
	if err != nil {
		exitErr("clear-suppress", err)
	}
	output(map[string]any{"ok": true, "cleared": n}, nil)
}

func runHeartbeatWake(cmd *cobra.Command, args []string) {
	var reason string
	if len(args) > 0 {
		reason = args[0]
	}

	_, s, e := mustEngine()
	defer s.Close()

	res, err := e.Wake(cmd.Context(), reason)
	if err != nil {
		exitErr("wake", err)
	}
	output(res, func(w io.Writer) {
		if res.Check == nil {
			fmt.Fprintf(w, "coalesced (%d absorbed)\n", res.Absorbed)
			return
		}
		checkText(res.Check)(w)
	})
}

func runHeartbeatComplete(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")

	_, s, e := mustEngine()
	defer s.Close()

	c, err := e.RecordCompletion(cmd.Context(), args[0], strings.Join(args[1:], " "), typ)
	if err != nil {
		exitErr("complete", err)
	}
	output(c, nil)
}

func runHeartbeatCompletions(cmd *cobra.Command, args []string) {
	_, s, e := mustEngine()
	defer s.Close()

	list, err := e.Completions(cmd.Context())
	if err != nil {
		exitErr("completions", err)
	}
	output(list, nil)
}

func runHeartbeatMarkRelayed(cmd *cobra.Command, args []string) {
	_, s, e := mustEngine()
	defer s.Close()

	n, err := e.MarkRelayed(cmd.Context(), args...)
	if err != nil {
		exitErr("mark-relayed", err)
	}
	output(map[string]any{"ok": true, "marked": n}, nil)
}

func runOutbox(cmd *cobra.Command, args []string) {
	a, s := mustOpen()
	defer s.Close()

	pending, err := integration.NewOutbox(s, a.cfg.Delivery.MaxMessage).Pending(cmd.Context())
	if err != nil {
		exitErr("outbox", err)
	}
	output(pending, func(w io.Writer) {
		for _, m := range pending {
			fmt.Fprintf(w, "%s (%d/%d)\n%s\n\n", m.ID, m.Part, m.Parts, m.Text)
		}
	})
}

func runOutboxAck(cmd *cobra.Command, args []string) {
	a, s := mustOpen()
	defer s.Close()

	if err := integration.NewOutbox(s, a.cfg.Delivery.MaxMessage).Ack(cmd.Context(), args...); err != nil {
		exitErr("outbox ack", err)
	}
	output(map[string]any{"ok": true, "acked": len(args)}, nil)
}

// readSignals decodes extra checklist items from a file or stdin.
func readSignals(path string) ([]model.Item, error) {
	if path == "" {
		return nil, nil
	}
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var items []model.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: signals must be a JSON array of items: %v", store.ErrInvalid, err)
	}
	for i, it := range items {
		if it.Source == "" || it.ID == "" || strings.TrimSpace(it.Text) == "" {
			return nil, fmt.Errorf("%w: signal %d needs source, id and text", store.ErrInvalid, i)
		}
	}
	return items, nil
}

func checkText(res *heartbeat.Result) func(w io.Writer) {
	return func(w io.Writer) {
		if res.Coalesced {
			fmt.Fprintln(w, "OK (another check is running)")
			return
		}
		if res.Outcome == heartbeat.OutcomeOK {
			fmt.Fprintf(w, "OK (%d candidates, %d suppressed)\n", res.Candidates, res.Suppressed)
			return
		}
		fmt.Fprintln(w, res.Message)
		if len(res.Omitted) > 0 {
			fmt.Fprintf(w, "(%d more omitted)\n", len(res.Omitted))
		}
		if res.DeliveryError != "" {
			fmt.Fprintf(w, "delivery failed: %s\n", res.DeliveryError)
		}
	}
}
