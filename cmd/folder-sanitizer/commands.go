package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"folder-sanitizer/internal/config"
	"folder-sanitizer/internal/database"
	"folder-sanitizer/internal/exitcodes"
	"folder-sanitizer/internal/logging"
	"folder-sanitizer/internal/metrics"
	"folder-sanitizer/internal/scheduler"
)

func runOnce(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := opts.loadConfig(args)
	if err != nil {
		return usageError(err)
	}
	if err := opts.persist(); err != nil {
		return exitWith(exitcodes.RuntimeError, fmt.Errorf("save config: %w", err))
	}

	// The terminal gets the report; log lines only go to the log file.
	logger, err := logging.New(cfg.Logging, nil)
	if err != nil {
		return exitWith(exitcodes.RuntimeError, err)
	}
	defer logger.Close()

	db := openHistory(cfg, logger)
	if db != nil {
		defer closeHistory(db, logger)
	}

	sum, err := scheduler.RunOnce(cmd.Context(), cfg, scheduler.Deps{
		Logger:  logger,
		DB:      db,
		Printer: opts.printer(cmd, cfg.DryRun),
	}, scheduler.TriggerCLI)
	switch {
	case errors.Is(err, context.Canceled):
		return exitWith(exitcodes.RuntimeError, errors.New("interrupted"))
	case err != nil:
		return exitWith(exitcodes.RuntimeError, err)
	case sum.Roots == 0:
		return exitWith(exitcodes.SafetyViolation, errors.New("no root could be swept"))
	case sum.Errors > 0:
		return exitWith(exitcodes.PartialFailure, fmt.Errorf("%d entries could not be processed", sum.Errors))
	}
	return nil
}

func runWatch(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := opts.loadConfig(args)
	if err != nil {
		return usageError(err)
	}
	if err := opts.persist(); err != nil {
		return exitWith(exitcodes.RuntimeError, fmt.Errorf("save config: %w", err))
	}

	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return exitWith(exitcodes.RuntimeError, err)
	}
	defer logger.Close()

	logger.Info("folder-sanitizer starting", "version", version, "config", opts.path())
	if cfg.DryRun {
		logger.Info("dry run mode: nothing will be renamed or deleted")
	}

	ctx := cmd.Context()

	db := openHistory(cfg, logger)
	if db != nil {
		defer closeHistory(db, logger)
	}

	trigger := make(chan struct{}, 1)
	reload := make(chan struct{}, 1)
	health := metrics.NewHealthChecker(3 * cfg.Interval())

	metrics.Init()
	metrics.SetTriggerChannel(trigger)
	metrics.SetReloadChannel(reload)
	metrics.SetHealthChecker(health)
	if cfg.Prometheus.Port > 0 {
		metrics.StartServer(cfg.PrometheusAddress(), logger)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metrics.Shutdown(shutdownCtx, logger)
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("received SIGHUP, reloading configuration")
				select {
				case reload <- struct{}{}:
				default:
				}
			}
		}
	}()

	err = scheduler.Run(ctx, cfg, scheduler.Deps{
		Logger:  logger,
		DB:      db,
		Printer: opts.printer(cmd, cfg.DryRun),
		Health:  health,
	}, scheduler.Options{
		Trigger:    trigger,
		Reload:     reload,
		LoadConfig: func() (*config.Config, error) { return opts.loadConfig(args) },
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return exitWith(exitcodes.RuntimeError, err)
	}
	logger.Info("folder-sanitizer stopped")
	return nil
}

// openHistory opens the run history database. A database that cannot be
// opened is logged and the sweep runs without history.
func openHistory(cfg *config.Config, logger *logging.Logger) *database.EventDB {
	if !cfg.HistoryEnabled() {
		return nil
	}
	db, err := database.NewEventDB(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open history database", "path", cfg.DatabasePath, "error", err)
		return nil
	}
	logger.Debug("history database opened", "path", cfg.DatabasePath)
	return db
}

func closeHistory(db *database.EventDB, logger *logging.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("failed to close history database", "error", err)
	}
}
