package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clawfinance/internal/interfaces/scheduler"
	"clawfinance/internal/shared/config"
	"clawfinance/internal/shared/logging"
	"clawfinance/internal/shared/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Env, logger)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error("failed to release resources", "error", err)
		}
	}()

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(scheduler.Config{
			ScheduleTimes: cfg.Scheduler.Times,
			WorkerCount:   cfg.Scheduler.Workers,
			JobDelay:      cfg.Scheduler.JobDelay,
			JobTimeout:    cfg.Scheduler.JobTimeout,
			QueueSize:     cfg.Scheduler.QueueSize,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			JobProvider:   scheduler.ActiveConnectionJobs(deps.ConnectionService, deps.SyncService, logger),
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		sched.Start()
	} else {
		logger.Info("scheduler is disabled")
	}

	handler := SetupRoutes(deps, cfg, logger)

	errCh := make(chan error, 1)
	servers := StartServers(handler, cfg, logger, errCh)

	select {
	case <-ctx.Done():
	case err = <-errCh:
		logger.Error("server error", "error", err)
	}

	GracefulShutdown(servers, sched, shutdownTimeout, logger)
	return err
}
