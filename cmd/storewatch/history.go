package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/obentoo/storewatch/internal/common/output"
	"github.com/obentoo/storewatch/internal/history"
)

// ErrHistoryDisabled is returned when history_db is not set in the config
var ErrHistoryDisabled = errors.New("history is disabled: set history_db in the config file")

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [source]",
	Short: "Show recorded version checks",
	Long: `List past version checks stored in the history database, newest first.
With a source name only that source is listed and its last update is shown.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	path, err := cfg.HistoryPath()
	if err != nil {
		fatal("%v", err)
	}
	if path == "" {
		fatal("%v", ErrHistoryDisabled)
	}

	db, err := history.Open(path, log)
	if err != nil {
		fatal("%v", err)
	}
	defer db.Close()

	source := ""
	if len(args) == 1 {
		source = args[0]
	}
	if err := showHistory(context.Background(), cmd.OutOrStdout(), db, source, historyLimit); err != nil {
		db.Close()
		fatal("%v", err)
	}
}

func showHistory(ctx context.Context, w io.Writer, db *history.DB, source string, limit int) error {
	entries, err := db.List(ctx, source, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		output.Dim.Fprintln(w, "No checks recorded")
		return nil
	}

	if source != "" {
		last, err := db.LastUpdate(ctx, source)
		switch {
		case err == nil:
			output.Header.Fprintf(w, "Last update: ")
			fmt.Fprintf(w, "%s on %s\n\n", output.FormatVersion(last.Version, true), formatTime(last.CheckedAt))
		case !errors.Is(err, history.ErrNoHistory):
			return err
		}
	}

	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s  %s  ",
			output.Dim.Sprint(formatTime(e.CheckedAt)),
			output.FormatSource(e.Source),
			output.FormatVersion(e.Version, e.HasUpdate))
		output.Dim.Fprintln(w, e.Info)
	}
	return nil
}
