package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/obentoo/storewatch/internal/common/output"
	"github.com/obentoo/storewatch/internal/monitor"
)

var checkCmd = &cobra.Command{
	Use:   "check [source]",
	Short: "Check sources for a new version",
	Long: `Fetch the configured store pages and report whether a new version is
available. Without arguments every source in sources.toml is checked.

The first version seen for a source is recorded as the initial detection.
Later checks report an update when the observed version differs from the
stored one.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	a, err := newApp(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	results, err := checkSources(cmd.Context(), a.monitor, args)
	printResults(cmd.OutOrStdout(), a.monitor.Sources(), results)
	if err != nil {
		a.Close()
		fatal("check failed: %v", err)
	}
}

// checkSources checks the named source, or every source when names is empty.
func checkSources(ctx context.Context, m *monitor.Monitor, names []string) (map[string]monitor.CheckResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(names) == 0 {
		return m.CheckAllSources(ctx)
	}
	res, err := m.CheckSource(ctx, names[0])
	if err != nil && res.Source == "" {
		return nil, err
	}
	return map[string]monitor.CheckResult{res.Source: res}, err
}

// printResults writes one block per checked source, in source order.
func printResults(w io.Writer, sources []monitor.Source, results map[string]monitor.CheckResult) {
	if len(results) == 0 {
		return
	}

	updates := 0
	fmt.Fprintln(w)
	output.Header.Fprintln(w, "Version Check Results")
	fmt.Fprintln(w)

	for _, src := range sources {
		res, ok := results[src.Name]
		if !ok {
			continue
		}

		fmt.Fprintf(w, "  %s\n", output.FormatSource(res.Source))
		switch {
		case res.HasUpdate:
			updates++
			fmt.Fprintf(w, "    %s → %s\n",
				output.FormatVersion(res.OldVersion, false),
				output.FormatVersion(res.NewVersion, true))
		case res.NewVersion == "":
			output.Warning.Fprintf(w, "    %s\n", res.Info)
			continue
		default:
			output.Unchanged.Fprintf(w, "    %s\n", res.NewVersion)
		}
		output.Dim.Fprintf(w, "    %s", res.Info)
		if res.URL != "" {
			output.Dim.Fprintf(w, " (%s)", res.URL)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
	if updates > 0 {
		output.Update.Fprintf(w, "%d update(s) available\n", updates)
	} else {
		output.Success.Fprintln(w, "Everything is up to date")
	}
}
