package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/apflow/ap-slo-engine/internal/cache"
	"github.com/apflow/ap-slo-engine/internal/catalogue"
	"github.com/apflow/ap-slo-engine/internal/config"
	"github.com/apflow/ap-slo-engine/internal/dashboard"
	"github.com/apflow/ap-slo-engine/internal/engine"
	"github.com/apflow/ap-slo-engine/internal/eventstore"
	"github.com/apflow/ap-slo-engine/internal/services"
	"github.com/apflow/ap-slo-engine/internal/store"
	"github.com/apflow/ap-slo-engine/internal/utils"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	cache  cache.Provider
	source eventstore.Source
	svc    *services.SLOService
}

// openApp loads configuration, opens the store, syncs the catalogue and wires
// the engine. Logs go to logOut so command output on stdout stays parseable.
func openApp(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := utils.NewLoggerTo(logOut, cfg.Logging.Level, cfg.Logging.JSON)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, store: st}

	defs, err := catalogue.Load(cfg.Catalogue.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	synced, err := st.SyncDefinitions(ctx, defs)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Debug("catalogue synced", slog.Int("inserted", synced.Inserted), slog.Int("updated", synced.Updated))

	a.cache = newCacheProvider(cfg.Cache, logger)
	a.source, err = newSource(cfg, st, a.cache)
	if err != nil {
		a.Close()
		return nil, err
	}

	calc := engine.NewCalculator(logger, a.source, nil, cfg.Engine.QueryTimeout)
	eval := engine.NewEvaluator(logger, st, cfg.Engine.CriticalFloor)
	runner := engine.NewRunner(logger, st, st, calc, eval, a.cache, cfg.Engine.BatchLockTTL)
	agg := dashboard.NewAggregator(logger, st, cfg.Engine.CriticalFloor, cfg.Engine.RecentCriticalCap, cfg.Engine.DashboardAlertScan)
	a.svc = services.NewSLOService(logger, st, runner, agg)
	return a, nil
}

// Close releases the cache connection and the database.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close", slog.Any("error", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close", slog.Any("error", err))
		}
	}
}

// newCacheProvider prefers Valkey and falls back to an in-process cache, which
// still serialises batch runs within this process.
func newCacheProvider(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if cfg.Enabled && cfg.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxRetries:   cfg.MaxRetries,
			TLS:          cfg.TLS,
		})
		if err == nil {
			return provider
		}
		logger.Warn("valkey cache unavailable, using in-process cache", slog.Any("error", err))
	}
	return cache.NewMemoryProvider()
}

func newSource(cfg *config.Config, st *store.Store, provider cache.Provider) (eventstore.Source, error) {
	switch cfg.Events.Source {
	case "http":
		return eventstore.NewHTTPSource(cfg.Events.BaseURL, cfg.Events.Path, cfg.Events.Timeout, provider, cfg.Cache.EventsTTL), nil
	case "sqlite":
		return eventstore.NewSQLSource(st.DB())
	default:
		return nil, fmt.Errorf("unsupported events source %q", cfg.Events.Source)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
