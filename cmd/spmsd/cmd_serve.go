package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"parking-booking-backend/internal/api"
	"parking-booking-backend/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the booking session over HTTP",
	Long:  "Start the HTTP control surface. The server stops on SIGINT/SIGTERM or when endProgram; is posted.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	exited := make(chan struct{})
	var exitOnce sync.Once
	onExit := func() { exitOnce.Do(func() { close(exited) }) }

	handler := api.NewHandler(a.session, a.store, a.report, logging.Component(logger, "http"), onExit)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
		logger.Info().Msg("shutdown signal received, stopping services...")
	case <-exited:
		logger.Info().Msg("endProgram received, stopping services...")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server gracefully stopped")
	return nil
}
