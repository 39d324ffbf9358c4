package main

import (
	"github.com/spf13/cobra"

	"github.com/obentoo/storewatch/internal/common/output"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget every stored version",
	Long: `Delete the version state file. The next check treats every source as a
first observation and reports it as an initial detection.`,
	Args: cobra.NoArgs,
	Run:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) {
	a, err := newApp(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	if err := a.monitor.Reset(); err != nil {
		a.Close()
		fatal("reset failed: %v", err)
	}
	output.PrintSuccess("Version data reset (%s)", a.monitor.Store().Path())
}
