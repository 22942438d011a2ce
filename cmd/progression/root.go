package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aimd54/shelf-progression/internal/config"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "progression",
	Short: "Reading progression engine",
	Long: `progression runs the leveling, season, quest and achievement engine
behind the reading platform: an HTTP API, the background scheduler and
one-shot admin commands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
}

// Execute runs the root command.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and builds the process logger.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
