package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidcare/copilot/internal/app"
)

func serveCmd() *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console API (triage sessions, dashboards, metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.BindAddr = bind
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			built, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := built.Cleanup(); err != nil {
					logger.Warn("cleanup failed", "error", err)
				}
			}()
			if err := built.Authenticate(ctx); err != nil {
				// Dashboards answer 403 until a valid token is supplied.
				logger.Warn("startup sign-in failed", "error", err)
			}
			logger.Info("audio", "detail", built.Audio.Detail)

			httpServer := &http.Server{
				Addr:              cfg.BindAddr,
				Handler:           built.API.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			runCtx, runCancel := context.WithCancel(ctx)
			defer runCancel()
			built.Sessions.StartJanitor(runCtx, 5*time.Second)

			listenErr := make(chan error, 1)
			go func() {
				logger.Info("server listening", "addr", cfg.BindAddr, "backend", cfg.APIBaseURL, "cache", cfg.CacheBackend)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					listenErr <- err
				}
				close(listenErr)
			}()

			select {
			case err, ok := <-listenErr:
				if ok && err != nil {
					return err
				}
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			}

			runCancel()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown failed", "error", err)
				_ = httpServer.Close()
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "listen address (default COPILOT_BIND_ADDR)")
	return cmd
}
