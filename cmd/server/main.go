/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the trace engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env / environment, flags override)
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Start the retention cleanup scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides APP_PORT)
  -db      SQLite database path (overrides TRACE_DB_PATH)
           Use ":memory:" for an in-memory database
  -env     Path to a .env file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the cleanup scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/trace.db"

  # Run with in-memory database
  ./server -db=":memory:"

ENVIRONMENT:
  APP_PORT               HTTP port (default 8080)
  TRACE_DB_PATH          SQLite path (default ./data/trace.db)
  RETENTION_DAYS         Cleanup window; 0 disables the scheduler
  CLEANUP_CRON_SCHEDULE  Cron spec for the sweep (default "0 3 * * *")

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agritrace/trace-engine/api"
	"github.com/agritrace/trace-engine/config"
	"github.com/agritrace/trace-engine/pkg/logger"
	"github.com/agritrace/trace-engine/store/sqlite"
)

func main() {
	port := flag.String("port", "", "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	envFile := flag.String("env", "", "Path to .env file")
	flag.Parse()

	log := logger.Must(logger.New())
	defer log.Sync()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	handler := api.NewHandler(store, logger.Named(log, "api"))

	scheduler := api.NewCleanupScheduler(handler.Engine, logger.Named(log, "cleanup"),
		cfg.Retention.CronSchedule, cfg.Retention.Days)
	if err := scheduler.Start(); err != nil {
		log.Fatal("failed to start cleanup scheduler", zap.Error(err))
	}

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}
	scheduler.Stop()

	log.Info("server stopped")
}
