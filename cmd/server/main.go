/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the society billing server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, optional YAML file)
  2. Apply command-line flag overrides
  3. Build the zap logger
  4. Initialize SQLite store
  5. Register configured categories and seed bill heads
  6. Create API handler, router and overdue scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides HTTP_PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database
  -config  YAML config file (overrides BILLING_CONFIG)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the overdue scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/billing.db"
  ./server -db=":memory:" -port=3000
  ./server -config=./billing.yaml

SEE ALSO:
  - config/config.go: Environment variables and YAML schema
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/config"
	"github.com/warp/billing-engine/logger"
	"github.com/warp/billing-engine/metrics"
	"github.com/warp/billing-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("BILLING_CONFIG", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTPPort = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, metrics.New(), log)
	handler.Batcher.BatchSize = cfg.BulkBatchSize

	cfg.RegisterCategories()
	specs, err := cfg.ParseBillHeads(handler.Factory)
	if err != nil {
		return err
	}
	if err := handler.SeedBillHeads(context.Background(), specs); err != nil {
		return err
	}
	if len(specs) > 0 {
		log.Info("seeded bill heads", zap.Int("count", len(specs)))
	}

	// Overdue sweep
	scheduler := api.NewOverdueScheduler(handler, cfg.OverdueSweepInterval)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // statement exports
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.HTTPPort),
			zap.String("db", cfg.DBPath),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
