package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	applog "garagelink/internal/log"
	"garagelink/internal/realtime"
	"garagelink/internal/router"
	"garagelink/internal/ws"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and realtime endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := applog.WithComponent("server")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.redis != nil {
				relay := realtime.NewRedisRelay(a.redis, a.hub)
				go func() {
					if err := relay.Run(ctx); err != nil {
						logger.Error().Err(err).Msg("redis relay stopped")
					}
				}()
			}

			engine := router.Setup(cfg, router.Deps{
				DB:            a.db,
				Sessions:      a.sessions,
				Notifications: a.notifications,
				Hub:           a.hub,
				ChannelAuth:   ws.NewSessionChannelAuthorizer(a.store),
			})
			srv := &http.Server{
				Addr:         ":" + cfg.Server.Port,
				Handler:      engine,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
