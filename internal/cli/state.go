package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Generic document store: collections of JSON entries",
}

func init() {
	stateCmd.AddCommand(
		&cobra.Command{
			Use:   "collections",
			Short: "List collections with entry counts",
			Args:  cobra.NoArgs,
			Run:   runCollections,
		},
		&cobra.Command{
			Use:   "list <collection>",
			Short: "List entries in insertion order",
			Args:  cobra.ExactArgs(1),
			Run:   runStateList,
		},
		&cobra.Command{
			Use:   "get <collection> <id>",
			Short: "Retrieve one entry",
			Args:  cobra.ExactArgs(2),
			Run:   runStateGet,
		},
		&cobra.Command{
			Use:   "set <collection> [json]",
			Short: "Create or merge an entry",
			Long: "Create or merge an entry. Fields are a JSON object given as an argument or piped via stdin. " +
				"Include \"id\" to update an existing entry; a null value removes that field.",
			Args: cobra.RangeArgs(1, 2),
			Run:  runStateSet,
		},
		&cobra.Command{
			Use:   "delete <collection> <id>",
			Short: "Delete an entry (no error if absent)",
			Args:  cobra.ExactArgs(2),
			Run:   runStateDelete,
		},
		&cobra.Command{
			Use:   "search <collection> [query]",
			Short: "Case-insensitive substring search over field values",
			Args:  cobra.MinimumNArgs(1),
			Run:   runStateSearch,
		},
		&cobra.Command{
			Use:   "log <action> [details]",
			Short: "Append an activity record",
			Long:  "Append an activity record. details is a JSON object or free text.",
			Args:  cobra.MinimumNArgs(1),
			Run:   runStateLog,
		},
	)

	RootCmd.AddCommand(stateCmd)
}

func runCollections(cmd *cobra.Command, args []string) {
	_, s := mustOpen()
	defer s.Close()

	cols, err := s.Collections(cmd.Context())
	if err != nil {
		exitErr("collections", err)
	}
	output(cols, func(w io.Writer) {
		for _, c := range cols {
			fmt.Fprintf(w, "%s\t%d\n", c.Name, c.Count)
		}
	})
}

func runStateList(cmd *cobra.Command, args []string) {
	_, s := mustOpen()
	defer s.Close()

	entries, err := s.List(cmd.Context(), args[0])
	if err != nil {
		exitErr("list", err)
	}
	output(entries, entriesText(entries))
}

func runStateGet(cmd *cobra.Command, args []string) {
	_, s := mustOpen()
	defer s.Close()

	e, err := s.Get(cmd.Context(), args[0], args[1])
	if err != nil {
		exitErr("get", err)
	}
	output(e, nil)
}

func runStateSet(cmd *cobra.Command, args []string) {
	raw := readInput(args[1:])
	if strings.TrimSpace(raw) == "" {
		exitErr("set", fmt.Errorf("%w: fields are required (positional arg or stdin)", store.ErrInvalid))
	}
	fields, err := store.ParseFields([]byte(raw))
	if err != nil {
		exitErr("set", err)
	}

	_, s := mustOpen()
	defer s.Close()

	e, err := s.Set(cmd.Context(), args[0], fields)
	if err != nil {
		exitErr("set", err)
	}
	output(e, nil)
}

func runStateDelete(cmd *cobra.Command, args []string) {
	_, s := mustOpen()
	defer s.Close()

	if err := s.Delete(cmd.Context(), args[0], args[1]); err != nil {
		exitErr("delete", err)
	}
	output(map[string]any{"ok": true, "collection": args[0], "id": args[1]}, nil)
}

func runStateSearch(cmd *cobra.Command, args []string) {
	query := strings.Join(args[1:], " ")

	_, s := mustOpen()
	defer s.Close()

	results, err := s.Search(cmd.Context(), args[0], query)
	if err != nil {
		exitErr("search", err)
	}
	output(results, entriesText(results))
}

func runStateLog(cmd *cobra.Command, args []string) {
	_, s := mustOpen()
	defer s.Close()

	e, err := s.Log(cmd.Context(), args[0], parseDetails(args[1:]))
	if err != nil {
		exitErr("log", err)
	}
	output(e, nil)
}

// parseDetails reads activity details: a JSON object as-is, anything else
// as a description.
func parseDetails(args []string) map[string]any {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if strings.HasPrefix(text, "{") && json.Unmarshal([]byte(text), &obj) == nil && obj != nil {
		return obj
	}
	return map[string]any{"description": text}
}

func entriesText(entries []model.Entry) func(w io.Writer) {
	return func(w io.Writer) {
		for _, e := range entries {
			b, _ := json.Marshal(e.Fields)
			fmt.Fprintf(w, "%s\t%s\n", e.ID, b)
		}
	}
}
