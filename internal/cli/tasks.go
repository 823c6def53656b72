package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Track commitments with due dates",
}

func init() {
	add := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a pending task",
		Long: "Add a pending task. --due accepts today, tomorrow, next week, in N days, " +
			"YYYY-MM-DD, MM/DD/YYYY, MM/DD, Jan 2, YYYY-MM-DD HH:MM or RFC3339.",
		Args: cobra.MinimumNArgs(1),
		Run:  runTaskAdd,
	}
	add.Flags().String("due", "", "Due date")
	add.Flags().String("source", "", "Where the commitment came from")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		Run:   runTaskList,
	}
	list.Flags().String("status", "", "Filter: pending, done or overdue")

	extract := &cobra.Command{
		Use:   "extract [text]",
		Short: "Extract commitments from text and track them",
		Long:  "Extract commitments from text (argument or stdin) with the configured extractor and add each as a task.",
		Run:   runTaskExtract,
	}
	extract.Flags().String("source", "", "Source recorded on extracted tasks (default: extracted)")
	extract.Flags().Bool("dry-run", false, "Print candidates without adding tasks")

	tasksCmd.AddCommand(
		add,
		list,
		&cobra.Command{
			Use:   "complete <id>",
			Short: "Mark a task done",
			Args:  cobra.ExactArgs(1),
			Run:   runTaskComplete,
		},
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Delete a task",
			Args:  cobra.ExactArgs(1),
			Run:   runTaskRemove,
		},
		&cobra.Command{
			Use:   "check",
			Short: "Report overdue, due today and due tomorrow",
			Args:  cobra.NoArgs,
			Run:   runTaskCheck,
		},
		extract,
	)

	RootCmd.AddCommand(tasksCmd)
}

func runTaskAdd(cmd *cobra.Command, args []string) {
	due, _ := cmd.Flags().GetString("due")
	source, _ := cmd.Flags().GetString("source")

	a, s := mustOpen()
	defer s.Close()

	task, err := a.tracker(s).Add(cmd.Context(), strings.Join(args, " "), due, source)
	if err != nil {
		exitErr("add", err)
	}
	output(task, nil)
}

func runTaskList(cmd *cobra.Command, args []string) {
	status, _ := cmd.Flags().GetString("status")

	a, s := mustOpen()
	defer s.Close()

	list, err := a.tracker(s).List(cmd.Context(), model.TaskStatus(status))
	if err != nil {
		exitErr("list", err)
	}
	output(list, tasksText(list))
}

func runTaskComplete(cmd *cobra.Command, args []string) {
	a, s := mustOpen()
	defer s.Close()

	task, err := a.tracker(s).Complete(cmd.Context(), args[0])
	if err != nil {
		exitErr("complete", err)
	}
	output(task, nil)
}

func runTaskRemove(cmd *cobra.Command, args []string) {
	a, s := mustOpen()
	defer s.Close()

	if err := a.tracker(s).Remove(cmd.Context(), args[0]); err != nil {
		exitErr("remove", err)
	}
	output(map[string]any{"ok": true, "id": args[0]}, nil)
}

func runTaskCheck(cmd *cobra.Command, args []string) {
	a, s := mustOpen()
	defer s.Close()

	report, err := a.tracker(s).Report(cmd.Context())
	if err != nil {
		exitErr("check", err)
	}
	output(report, func(w io.Writer) {
		section := func(title string, list []model.Task) {
			if len(list) == 0 {
				return
			}
			fmt.Fprintln(w, title)
			tasksText(list)(w)
		}
		section("Overdue:", report.Overdue)
		section("Due today:", report.DueToday)
		section("Due tomorrow:", report.DueTomorrow)
		fmt.Fprintf(w, "%d pending\n", report.PendingCount)
	})
}

func runTaskExtract(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	text := readInput(args)
	if strings.TrimSpace(text) == "" {
		exitErr("extract", fmt.Errorf("%w: text is required (positional arg or stdin)", store.ErrInvalid))
	}

	a, s := mustOpen()
	defer s.Close()
	tr := a.tracker(s)

	if dryRun {
		candidates, err := tr.Candidates(cmd.Context(), text)
		if err != nil {
			exitErr("extract", err)
		}
		output(candidates, nil)
		return
	}

	added, err := tr.Extract(cmd.Context(), text, source)
	if err != nil {
		exitErr("extract", err)
	}
	output(added, tasksText(added))
}

func tasksText(list []model.Task) func(w io.Writer) {
	return func(w io.Writer) {
		for _, t := range list {
			status := t.Status
			if t.Overdue {
				status = model.TaskOverdue
			}
			line := fmt.Sprintf("%s\t[%s] %s", t.ID, status, t.Text)
			if t.Due != nil {
				if t.AllDay {
					line += " (due " + t.Due.Format("2006-01-02") + ")"
				} else {
					line += " (due " + t.Due.Format("2006-01-02 15:04") + ")"
				}
			}
			fmt.Fprintln(w, line)
		}
	}
}
