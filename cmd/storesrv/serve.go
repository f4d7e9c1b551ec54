package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/storeforge/storeforge/internal/storesrv/config"
	"github.com/storeforge/storeforge/internal/storesrv/db"
	"github.com/storeforge/storeforge/internal/storesrv/metrics"
	"github.com/storeforge/storeforge/internal/storesrv/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the store server",
	RunE: func(cmd *cobra.Command, args []string) error {
		slog := log.With().Str("state", "init").Logger()

		slog.Info().Str("config_file", cfgPath).Msg("loading config file")
		if err := config.LoadConfig(cfgPath); err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)
		db.Init()

		s, err := server.CreateNewServer()
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}
		s.MountHandlers()

		srv := &http.Server{
			Addr:              ":" + config.Config().ServerPort,
			Handler:           s.Router,
			ReadHeaderTimeout: 5 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			slog.Info().Str("addr", srv.Addr).Msg("starting store server")
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			slog.Info().Str("signal", sig.String()).Msg("shutdown signal received")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
		}

		slog.Info().Msg("server stopped")
		return nil
	},
}
