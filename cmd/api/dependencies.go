package main

import (
	"fmt"
	"log/slog"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/handler"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/normalizer"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/service"
	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable/session"
	"github.com/FACorreiaa/tax-table-converter/pkg/config"
	"github.com/FACorreiaa/tax-table-converter/pkg/cron"
	"github.com/FACorreiaa/tax-table-converter/pkg/metrics"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger

	Metrics *metrics.Metrics // nil when metrics are disabled

	// Services
	Sessions          *session.Store
	ConversionService *service.ConversionService

	// Handlers
	ConversionHandler *handler.ConversionHandler

	Scheduler *cron.Scheduler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics()

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()
	deps.initScheduler()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

func (d *Dependencies) initMetrics() {
	if !d.Config.Observability.MetricsEnabled {
		return
	}
	d.Metrics = metrics.New()
}

// initServices builds the session store and the conversion service
func (d *Dependencies) initServices() error {
	d.Sessions = session.NewStore(d.Config.Session.TTL, session.SystemClock{})

	norm := normalizer.NewDefault()
	if path := d.Config.Conversion.MappingFile; path != "" {
		override, err := normalizer.LoadTablesFile(path)
		if err != nil {
			return fmt.Errorf("failed to load mapping file: %w", err)
		}
		norm = normalizer.New(normalizer.DefaultTables().Merge(override))
		d.Logger.Info("mapping tables overridden", slog.String("file", path))
	}

	d.ConversionService = service.NewConversionService(d.Sessions, d.Logger).
		WithNormalizer(norm).
		WithParseTimeout(d.Config.Conversion.ParseTimeout).
		WithMetrics(d.Metrics)

	d.Logger.Info("services initialized")
	return nil
}

func (d *Dependencies) initHandlers() {
	d.ConversionHandler = handler.NewConversionHandler(
		d.ConversionService,
		d.Config.Server.MaxUploadBytes,
		Version,
		d.Logger,
	)

	d.Logger.Info("handlers initialized")
}

func (d *Dependencies) initScheduler() {
	d.Scheduler = cron.NewScheduler(
		d.Config.Session.SweepSchedule,
		d.Sessions,
		d.Metrics.SetSessions,
		d.Logger,
	)
}

// Cleanup releases background resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	d.Logger.Info("cleanup completed")
}
