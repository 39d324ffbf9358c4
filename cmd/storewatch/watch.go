package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/obentoo/storewatch/internal/common/output"
	"github.com/obentoo/storewatch/internal/monitor"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Check sources periodically",
	Long: `Check every source immediately and then again on each interval until
interrupted. The interval defaults to check_interval from the config file.`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 0, "Time between checks (e.g. 30m)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	interval := watchInterval
	if interval == 0 {
		interval = cfg.Interval()
	}
	if interval <= 0 {
		fatal("interval must be positive, got %s", interval)
	}

	a, err := newApp(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug("watching %d source(s) every %s", len(a.monitor.Sources()), interval)
	output.PrintInfo("Checking %d source(s) every %s, press Ctrl+C to stop", len(a.monitor.Sources()), interval)
	out := cmd.OutOrStdout()
	watch(ctx, a.monitor, interval, func(results map[string]monitor.CheckResult, err error) {
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("check failed: %v", err)
		}
		for _, src := range a.monitor.Sources() {
			if res, ok := results[src.Name]; ok && res.HasUpdate {
				log.Info("%s: %s", res.Source, res.Info)
			}
		}
		fmt.Fprintf(out, "\nChecked at %s\n", formatTime(time.Now()))
		printResults(out, a.monitor.Sources(), results)
	})
	log.Info("stopped watching")
}

// watch runs a check right away and then once per interval until ctx is done.
// report is called after every check.
func watch(ctx context.Context, m *monitor.Monitor, interval time.Duration, report func(map[string]monitor.CheckResult, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		results, err := m.CheckAllSources(ctx)
		if ctx.Err() != nil {
			return
		}
		report(results, err)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
