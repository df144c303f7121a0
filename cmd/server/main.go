package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/objimport/internal/config"
	"github.com/JonMunkholm/objimport/internal/core"
	_ "github.com/JonMunkholm/objimport/internal/core/objtypes" // Register built-in types
	"github.com/JonMunkholm/objimport/internal/logging"
	"github.com/JonMunkholm/objimport/internal/store/memory"
	"github.com/JonMunkholm/objimport/internal/store/postgres"
	"github.com/JonMunkholm/objimport/internal/store/sqlite"
	"github.com/JonMunkholm/objimport/internal/telemetry"
	"github.com/JonMunkholm/objimport/internal/web"
)

// backend is an object store that also keeps import history.
type backend interface {
	core.Store
	core.HistoryStore
}

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_driver", cfg.Store.Driver,
		"object_limit", cfg.Import.ObjectLimit,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"datasource_enabled", cfg.Import.DataSourceEnabled,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	registry := core.DefaultRegistry()
	slog.Info("types registered",
		"count", registry.Len(),
		"importable", len(registry.ImportableTypes()),
	)

	store, closeStore, err := openStore(ctx, cfg.Store, registry)
	if err != nil {
		slog.Error("failed to open object store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	service := core.NewService(store, store, registry, cfg.Import)
	server := web.NewServer(service, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go service.StartHistoryScheduler(jobCtx, core.PurgeConfig{
		RetentionDays: cfg.History.RetentionDays,
		CheckInterval: cfg.History.CheckInterval,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// openStore connects the configured backend and applies its migrations.
func openStore(ctx context.Context, cfg config.StoreConfig, registry *core.TypeRegistry) (backend, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.New(pool, registry)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		slog.Info("connected to postgres", "max_conns", cfg.MaxConns)
		return store, pool.Close, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, registry)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("opened sqlite store", "path", cfg.SQLitePath)
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("close sqlite store", "error", err)
			}
		}, nil

	case config.DriverMemory:
		slog.Warn("using in-memory store; objects are lost on restart")
		return memory.New(registry), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
