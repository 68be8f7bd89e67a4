package cli

import (
	"context"
	"fmt"

	"finboard/internal/backend"
	"finboard/internal/cache"
	"finboard/internal/config"
	"finboard/internal/export/sheets"
	"finboard/internal/log"
	"finboard/internal/normalize"
	"finboard/internal/providers"
	"finboard/internal/services"
)

// App is the assembled service with the resources it owns.
type App struct {
	Service *services.TransactionService
	Rollups *cache.RollupCache
	Caches  *cache.Manager
	Backend *backend.BackendResult
}

// NewApp wires storage, change events, providers, the rollup cache and the
// optional spreadsheet export from cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load location: %w", err)
	}
	sources, err := cfg.SourceRegistry()
	if err != nil {
		return nil, err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	rollups := cache.NewRollupCache(2*services.DashboardMonths, cfg.CacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(rollups)

	opts := services.Options{
		Location:    loc,
		Sources:     sources,
		Notifier:    be.Notifier,
		Rollups:     rollups,
		RollupStore: be.Rollups,
		Logger:      logger,
	}

	if len(cfg.Providers) > 0 {
		reg, err := providers.NewRegistry(cfg.Providers, providers.MockConfig{Seed: cfg.MockSeed, Count: cfg.MockCount})
		if err != nil {
			be.Close()
			return nil, err
		}
		opts.Providers = providers.NewAggregator(reg, normalize.New(loc), logger)
		logger.Info("Providers configured", "providers", reg.Names())
	}

	if cfg.SheetsEnabled() {
		exp, err := sheets.NewFromServiceAccount(ctx,
			sheets.Config{SpreadsheetID: cfg.GoogleSpreadsheetID, SheetName: cfg.GoogleSheetName},
			cfg.GoogleServiceAccountFile,
			logger.WithComponent(log.ComponentExport).Logger)
		if err != nil {
			logger.Warn("Google Sheets export unavailable", log.FieldError, err)
		} else {
			opts.Sheets = exp
		}
	}

	return &App{
		Service: services.NewTransactionService(be.Store, opts),
		Rollups: rollups,
		Caches:  caches,
		Backend: be,
	}, nil
}

// Close stops the cache cleanup loop and releases the backend.
func (a *App) Close() error {
	a.Caches.Stop()
	return a.Backend.Close()
}
