package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-pulse/internal/model"
	"github.com/rcliao/agent-pulse/internal/store"
)

func init() {
	export := &cobra.Command{
		Use:   "export [collection]",
		Short: "Export entries as JSON",
		Long:  "Export entries, ids and timestamps included, as a JSON array. Omit the collection to export everything.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runExport,
	}
	imp := &cobra.Command{
		Use:   "import",
		Short: "Import entries from JSON on stdin",
		Long:  "Import entries from stdin. Expects the format produced by export; existing ids are overwritten.",
		Args:  cobra.NoArgs,
		Run:   runImport,
	}
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Args:  cobra.NoArgs,
		Run:   runStats,
	}

	stateCmd.AddCommand(export, imp, stats)
}

func runExport(cmd *cobra.Command, args []string) {
	var collection string
	if len(args) > 0 {
		collection = args[0]
	}

	_, s := mustOpen()
	defer s.Close()

	entries, err := store.ExportAll(cmd.Context(), s, collection)
	if err != nil {
		exitErr("export", err)
	}
	output(entries, nil)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var entries []model.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		exitErr("parse json", fmt.Errorf("%w: %v", store.ErrInvalid, err))
	}

	_, s := mustOpen()
	defer s.Close()

	imported, err := s.Import(cmd.Context(), entries)
	if err != nil {
		exitErr("import", err)
	}
	output(map[string]any{"ok": true, "imported": imported}, nil)
}

func runStats(cmd *cobra.Command, args []string) {
	_, s := mustOpen()
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	output(stats, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s (%d bytes, %d entries)\n", stats.Backend, stats.Path, stats.SizeBytes, stats.TotalEntries)
		for _, c := range stats.Collections {
			fmt.Fprintf(w, "  %s\t%d\n", c.Name, c.Count)
		}
	})
}
