package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"parking-booking-backend/config"
	"parking-booking-backend/internal/conflict"
	"parking-booking-backend/internal/db"
	"parking-booking-backend/internal/intake"
	"parking-booking-backend/internal/logging"
	"parking-booking-backend/internal/pipeline"
	"parking-booking-backend/internal/report"
	"parking-booking-backend/internal/store"
)

const shutdownTimeout = 5 * time.Second

var (
	logger     zerolog.Logger
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "spmsd",
	Short: "Parking booking manager",
	Long:  "Schedules parking and essentials bookings with FCFS and priority admission and writes the booking report.",
	// Running without a subcommand opens the interactive shell.
	RunE:          runShell,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml" // Default path for local development
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "path to the YAML configuration file")

	rootCmd.AddCommand(shellCmd, batchCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}

	logger = logging.Setup(cfg.Environment)
	logger.Debug().Str("path", configPath).Msg("configuration loaded")
	return nil
}

// app is everything a command needs to execute booking commands.
type app struct {
	store   store.Store
	report  *report.File
	session *intake.Session
	cancel  context.CancelFunc
}

// bootstrap opens the database, seeds the member directory, starts a fresh
// report file and launches the stage pipeline.
func bootstrap() (*app, error) {
	if err := loadConfig(); err != nil {
		return nil, err
	}

	gormDB, err := db.Init(&cfg.Database, logging.Component(logger, "db"))
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	appStore := store.NewGormStore(gormDB)
	if err := appStore.SyncMembers(context.Background(), cfg.Members); err != nil {
		return nil, fmt.Errorf("sync members: %w", err)
	}
	logger.Info().Int("members", len(cfg.Members)).Msg("member directory ready")

	reportFile := report.NewFile(cfg.Report.Path)
	if err := reportFile.Truncate(); err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	coordinator := pipeline.Start(ctx, pipeline.Options{
		Checker: conflict.NewChecker(cfg.Resources.ParkingSlots, cfg.Resources.EssentialCapacity),
		Sink:    reportFile,
		Members: cfg.Members,
	}, logger)
	logger.Info().
		Int("parking_slots", cfg.Resources.ParkingSlots).
		Int("essential_capacity", cfg.Resources.EssentialCapacity).
		Str("report", reportFile.Path()).
		Msg("pipeline started")

	return &app{
		store:   appStore,
		report:  reportFile,
		session: intake.NewSession(coordinator, appStore, logger),
		cancel:  cancel,
	}, nil
}

// close ends the session if the user did not, then stops the stages.
func (a *app) close() {
	defer a.cancel()
	if a.session.Closed() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if _, err := a.session.Execute(ctx, "endProgram;"); err != nil {
		logger.Error().Err(err).Msg("pipeline shutdown failed")
	}
}
