package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-pulse/internal/activity"
	"github.com/rcliao/agent-pulse/internal/clock"
	"github.com/rcliao/agent-pulse/internal/store"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Append to and query the activity log",
}

func init() {
	trim := &cobra.Command{
		Use:   "trim",
		Short: "Drop the oldest records, keeping the newest N",
		Args:  cobra.NoArgs,
		Run:   runActivityTrim,
	}
	trim.Flags().Int("keep", 1000, "Records to keep")

	activityCmd.AddCommand(
		&cobra.Command{
			Use:   "log <action> [details]",
			Short: "Append an activity record",
			Long:  "Append an activity record. details is a JSON object or free text.",
			Args:  cobra.MinimumNArgs(1),
			Run:   runActivityLog,
		},
		&cobra.Command{
			Use:   "recent [hours]",
			Short: "Records from the last N hours (default 24)",
			Args:  cobra.MaximumNArgs(1),
			Run:   runActivityRecent,
		},
		&cobra.Command{
			Use:   "today",
			Short: "Records since local midnight",
			Args:  cobra.NoArgs,
			Run:   runActivityToday,
		},
		&cobra.Command{
			Use:   "summary [hours]",
			Short: "Counts grouped by action over the last N hours (default 24)",
			Args:  cobra.MaximumNArgs(1),
			Run:   runActivitySummary,
		},
		trim,
	)

	RootCmd.AddCommand(activityCmd)
}

func openActivity() (*activity.Log, store.Store) {
	a, s := mustOpen()
	return activity.New(s, clock.Real(), a.loc), s
}

func runActivityLog(cmd *cobra.Command, args []string) {
	log, s := openActivity()
	defer s.Close()

	rec, err := log.Log(cmd.Context(), args[0], parseDetails(args[1:]))
	if err != nil {
		exitErr("log", err)
	}
	output(rec, nil)
}

func runActivityRecent(cmd *cobra.Command, args []string) {
	window, err := parseHours(args)
	if err != nil {
		exitErr("recent", err)
	}

	log, s := openActivity()
	defer s.Close()

	recs, err := log.Recent(cmd.Context(), window)
	if err != nil {
		exitErr("recent", err)
	}
	output(recs, recordsText(recs))
}

func runActivityToday(cmd *cobra.Command, args []string) {
	log, s := openActivity()
	defer s.Close()

	recs, err := log.Today(cmd.Context())
	if err != nil {
		exitErr("today", err)
	}
	output(recs, recordsText(recs))
}

func runActivitySummary(cmd *cobra.Command, args []string) {
	window, err := parseHours(args)
	if err != nil {
		exitErr("summary", err)
	}

	log, s := openActivity()
	defer s.Close()

	sum, err := log.Summary(cmd.Context(), window)
	if err != nil {
		exitErr("summary", err)
	}
	output(sum, func(w io.Writer) {
		fmt.Fprintf(w, "%d records since %s\n", sum.Total, sum.Since.Format(time.RFC3339))
		actions := make([]string, 0, len(sum.ByAction))
		for action := range sum.ByAction {
			actions = append(actions, action)
		}
		sort.Strings(actions)
		for _, action := range actions {
			fmt.Fprintf(w, "  %s: %d\n", action, sum.ByAction[action].Count)
		}
	})
}

func runActivityTrim(cmd *cobra.Command, args []string) {
	keep, _ := cmd.Flags().GetInt("keep")

	log, s := openActivity()
	defer s.Close()

	n, err := log.Trim(cmd.Context(), keep)
	if err != nil {
		exitErr("trim", err)
	}
	output(map[string]any{"ok": true, "removed": n}, nil)
}

// parseHours reads an optional positive hour count; the default is 24.
func parseHours(args []string) (time.Duration, error) {
	if len(args) == 0 {
		return 24 * time.Hour, nil
	}
	h, err := strconv.ParseFloat(args[0], 64)
	if err != nil || h <= 0 {
		return 0, fmt.Errorf("%w: hours must be a positive number, got %q", store.ErrInvalid, args[0])
	}
	return time.Duration(h * float64(time.Hour)), nil
}

func recordsText(recs []activity.Record) func(w io.Writer) {
	return func(w io.Writer) {
		for _, r := range recs {
			fmt.Fprintf(w, "%s  %s  %s\n", r.Timestamp.Format("2006-01-02 15:04"), r.Action, activity.Describe(r))
		}
	}
}
