package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/JonMunkholm/jury/internal/config"
	"github.com/JonMunkholm/jury/internal/core"
	"github.com/JonMunkholm/jury/internal/logging"
	"github.com/JonMunkholm/jury/internal/store/postgres"
	"github.com/JonMunkholm/jury/internal/store/sqlite"
	"github.com/JonMunkholm/jury/internal/web"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

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
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := core.NewService(store, core.ServiceConfig{
		MaxConcurrentImports: cfg.Import.MaxConcurrent,
		ImportWaitTime:       cfg.Import.MaxWaitTime,
		ImportTimeout:        cfg.Import.Timeout,
		Metrics:              core.NewMetrics(reg),
	})

	server := web.NewServer(service, cfg, reg)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests, then let running imports save or release
		// their counter lease before the store closes.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		closeStore()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

// openStore opens the configured backend. The returned func closes it and is
// safe to call more than once.
func openStore(ctx context.Context, cfg config.StoreConfig) (core.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, postgres.Config{
			URL:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx, cfg.StartSlot); err != nil {
			s.Close()
			return nil, nil, err
		}
		slog.Info("connected to postgres")
		return s, sync.OnceFunc(s.Close), nil

	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.StartSlot)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("opened sqlite database", "path", s.Path())
		return s, sync.OnceFunc(func() { _ = s.Close() }), nil

	default:
		slog.Warn("using in-memory store, data is lost on exit")
		return core.NewMemoryStore(cfg.StartSlot), func() {}, nil
	}
}
