package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"garagelink/config"
	applog "garagelink/internal/log"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "garagelink",
		Short:   "GarageLink session finalization and payout service",
		Version: Version,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and sets up the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	applog.Configure(applog.Config{Level: cfg.Log.Level, Service: "garagelink"})
	return cfg, nil
}
