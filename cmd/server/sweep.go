package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	applog "garagelink/internal/log"
	"garagelink/internal/service"
)

var sweepInterval time.Duration

// sweepCmd ends live sessions older than sweep.max_duration. Without
// --interval it runs one pass, for use from cron.
func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Auto-end sessions that exceeded the maximum duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := applog.WithComponent("sweep")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sweeper := service.NewSweeper(a.store, a.sessions, cfg.Sweep.MaxDuration, cfg.Sweep.BatchSize)
			if sweepInterval <= 0 {
				_, err := sweeper.Run(ctx)
				return err
			}

			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				if _, err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error().Err(err).Msg("sweep failed")
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&sweepInterval, "interval", 0, "repeat the sweep at this interval instead of running once")
	return cmd
}
