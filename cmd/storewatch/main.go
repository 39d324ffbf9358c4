package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obentoo/storewatch/internal/common/config"
	"github.com/obentoo/storewatch/internal/common/logger"
	"github.com/obentoo/storewatch/internal/common/output"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	noColor bool

	// cfg and log are set up by the root command before any subcommand runs
	cfg *config.Config
	log = logger.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "storewatch",
	Short: "Watch app store pages for new versions",
	Long: `storewatch checks store pages for new releases of an app and compares
store catalog files between releases.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !output.IsTerminal() {
			output.NoColor()
		}

		loaded, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded

		l, err := newLogger(cfg)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/storewatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFrom(cfgFile)
	}
	return config.Load()
}

// newLogger builds the logger from the config, then applies --verbose and --quiet.
func newLogger(c *config.Config) (*logger.Logger, error) {
	level := logger.LevelInfo
	if c.Log.Level != "" {
		parsed, err := logger.ParseLevel(c.Log.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	file, err := config.ExpandPath(c.Log.File)
	if err != nil {
		return nil, err
	}

	l, err := logger.New(logger.Options{
		Level:      level,
		NoColor:    noColor,
		File:       file,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	})
	if err != nil {
		return nil, err
	}
	l.SetVerbose(verbose)
	l.SetQuiet(quiet)
	return l, nil
}

// fatal logs err and exits
func fatal(format string, args ...interface{}) {
	log.Error(format, args...)
	log.Close()
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError("%v", err)
		os.Exit(1)
	}
}
