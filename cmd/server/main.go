/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the zap logger and prometheus metrics
  3. Open the SQL store (SQLite or PostgreSQL) and migrate
  4. Load rate tables from a YAML/JSON file or the reference tables,
     seeding an empty database with the built-in tables when enabled
  5. Wire the Compensation Engine, Leave Ledger and statistics, with the
     Redis cache in front of statistics when enabled
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      Database DSN (overrides DB_DSN)
           Use ":memory:" with sqlite3 for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close Redis and database connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run against PostgreSQL with rates from a file
  DB_DRIVER=postgres DB_DSN=postgres://... RATES_FILE=rates.yaml ./server

SEE ALSO:
  - config/config.go: environment variables and defaults
  - api/server.go: Router configuration
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/metrics"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/reference"
	"github.com/warp/payroll-engine/stats"
	"github.com/warp/payroll-engine/store/sqlstore"
	"github.com/warp/payroll-engine/vacation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dsn := flag.String("db", cfg.Database.DSN, "Database DSN")
	flag.Parse()
	cfg.Port = *port
	cfg.Database.DSN = *dsn

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	l, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer l.Sync()

	if err := run(cfg, l); err != nil {
		l.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, l *zap.Logger) error {
	ctx := context.Background()
	m := metrics.New()

	// Initialize store
	store, err := sqlstore.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	tables, err := loadRates(ctx, cfg, store, l)
	if err != nil {
		return err
	}

	engineOpts := []payroll.Option{
		payroll.WithLogger(l),
		payroll.WithMetrics(m),
		payroll.WithDefaultTaxRate(cfg.Payroll.DefaultTaxRate),
	}
	ledgerOpts := []vacation.Option{
		vacation.WithLogger(l),
		vacation.WithMetrics(m),
	}

	aggregator := stats.NewAggregator(store)
	var statistics api.Statistics = aggregator
	if cfg.Redis.Enabled {
		client, err := stats.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()

		cached := stats.NewCached(aggregator, stats.NewRedisCache(client), cfg.Stats.CacheTTL, l, m)
		statistics = cached
		engineOpts = append(engineOpts, payroll.WithStatistics(cached))
		ledgerOpts = append(ledgerOpts, vacation.WithObserver(cached))
		l.Info("statistics cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Stats.CacheTTL))
	}

	engine := payroll.NewEngine(tables, store, engineOpts...)
	ledger := vacation.NewLedger(store, engine, ledgerOpts...)

	handler := api.NewHandler(store, engine, ledger, statistics, l)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:        m,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("db_driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	l.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	l.Info("server stopped")
	return nil
}

// loadRates reads the rate tables from RATES_FILE when set, and from the
// reference tables in the database otherwise.
func loadRates(ctx context.Context, cfg *config.Config, store *sqlstore.Store, l *zap.Logger) (*reference.RateTables, error) {
	if cfg.Rates.File != "" {
		tables, err := reference.Load(ctx, reference.NewFileSource(cfg.Rates.File))
		if err != nil {
			return nil, fmt.Errorf("load rates from %s: %w", cfg.Rates.File, err)
		}
		l.Info("rate tables loaded", zap.String("source", cfg.Rates.File))
		return tables, nil
	}

	if cfg.Rates.Seed {
		seeded, err := store.SeedReference(ctx, reference.DefaultDocument())
		if err != nil {
			return nil, fmt.Errorf("seed reference tables: %w", err)
		}
		if seeded {
			l.Info("reference tables seeded with defaults")
		}
	}

	tables, err := reference.Load(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("load rates from database: %w", err)
	}
	l.Info("rate tables loaded", zap.String("source", "database"))
	return tables, nil
}
