// Package internal contains core application functionality
package internal

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"portfolio/internal/config"
	"portfolio/internal/database"
	"portfolio/internal/jobs"
	"portfolio/internal/ogp"
)

// Application wraps cartridge.Application with the portfolio components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Runner    *jobs.Runner
	Scheduler *jobs.Scheduler
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config. The
// HTTP orchestrator and the scheduler share a single runner so manual and
// scheduled runs never overlap.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	runner := jobs.NewRunner(dbManager, logger, cfg.Location(), cfg.RetentionDays())
	scheduler, err := jobs.NewScheduler(runner, logger, cfg.Location(), jobs.Specs{
		Daily:   cfg.DailyJobSpec,
		Monthly: cfg.MonthlyJobSpec,
		Cleanup: cfg.CleanupJobSpec,
	}, cfg.JobsEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	deps := Dependencies{
		Runner:   runner,
		Previews: ogp.NewCachedStore(logger, cfg.GetOGPCacheTTL(), ogp.NewFetcher(cfg.GetOGPFetchTimeout())),
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    MountAppRoutesWith(deps),
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Runner:      runner,
		Scheduler:   scheduler,
	}, nil
}
