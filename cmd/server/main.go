/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the materials ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Build the logger
  3. Open the configured store (sqlite, postgres or memory)
  4. Register metrics, create API handler and router
  5. Start the stock audit scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML configuration file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the audit scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (http.shutdown_timeout)
  4. Close the store
  5. Exit

EXAMPLES:
  # Run with file database
  APP_SQLITE_PATH=./data/materials.db ./server

  # Run against PostgreSQL
  APP_STORE_DRIVER=postgres APP_POSTGRES_DSN=postgres://... ./server

  # Run with in-memory store
  APP_STORE_DRIVER=memory ./server

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Database implementations
*/
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/warp/materials-ledger/api"
	"github.com/warp/materials-ledger/config"
	"github.com/warp/materials-ledger/inventory"
	"github.com/warp/materials-ledger/inventory/store"
	"github.com/warp/materials-ledger/store/postgres"
	"github.com/warp/materials-ledger/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "optional YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := config.NewLogger(cfg)

	// Initialize store
	ctx := context.Background()
	s, closer, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.Store.Driver).Fatal("failed to initialize store")
	}
	if closer != nil {
		defer closer.Close()
	}
	log.WithField("driver", cfg.Store.Driver).Info("store ready")

	// Metrics
	var (
		metrics  *api.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = api.NewMetrics(reg)
		gatherer = reg
	}

	handler := api.NewHandler(s, log, metrics)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Gatherer:       gatherer,
	})

	scheduler := api.NewAuditScheduler(handler.Ledger, log, metrics, cfg.Audit.Interval)
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server stopped")
}

// openStore returns the configured store and, for database-backed stores,
// the handle to close on exit.
func openStore(ctx context.Context, cfg config.Config) (inventory.TxStore, io.Closer, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg, nil
	case config.DriverMemory:
		return store.NewTxMemory(), nil, nil
	default:
		if cfg.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
				return nil, nil, err
			}
		}
		db, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	}
}
