package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-extractor/internal/api"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}
			srv := &api.Server{
				Runner:         a.runner(false),
				Registry:       a.registry,
				Metrics:        a.metrics,
				Logger:         a.log,
				Version:        version,
				MaxUploadBytes: a.cfg.MaxUploadBytes(),
				MaxFiles:       a.cfg.MaxFiles,
				RateLimit:      a.cfg.RateLimit,
				RateBurst:      a.cfg.RateBurst,
			}
			app := srv.App()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				a.log.Info("shutting down")
				if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
					a.log.Error("shutdown failed", "error", err)
				}
			}()

			a.log.Info("listening", "addr", a.cfg.Addr(), "profiles", a.registry.Names(), "workers", a.cfg.Workers)
			return app.Listen(a.cfg.Addr())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides config)")
	return cmd
}
