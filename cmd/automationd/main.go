package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/liamcoop/automations/automation"
	"github.com/liamcoop/automations/internal/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	ownerEmail := os.Getenv("OWNER_EMAIL")
	if ownerEmail == "" {
		ownerEmail = "admin@localhost"
	}

	var (
		store    automation.RuleStore
		entities automation.EntityStore
		execLog  automation.ExecutionLog
		db       *sql.DB
	)

	if databaseURL != "" {
		var err error
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			logger.Fatal("failed to open database", "error", err)
		}
		if err := db.Ping(); err != nil {
			logger.Fatal("failed to ping database", "error", err)
		}
		store = automation.NewPostgresRuleStore(db)
		entities = automation.NewPostgresEntityStore(db)
		execLog = automation.NewPostgresExecutionLog(db)
		logger.Info("using PostgreSQL backend")
	} else {
		store = automation.NewInMemoryRuleStore()
		entities = automation.NewInMemoryEntityStore()
		execLog = automation.NewInMemoryExecutionLog()
		logger.Warn("DATABASE_URL not set, using in-memory stores (state is not persisted)")
	}

	scheduler := automation.NewCronScheduler()
	executor := automation.NewExecutor(entities, automation.LogNotifier{}, ownerEmail)
	coordinator := automation.NewCoordinator(entities, executor, execLog, store)
	registry := automation.NewRegistry(store, scheduler, coordinator, execLog)

	if err := registry.LoadScheduled(); err != nil {
		logger.Fatal("failed to load scheduled rules", "error", err)
	}
	scheduler.Start()

	rules, err := registry.GetAllRules()
	if err != nil {
		logger.Fatal("failed to list rules", "error", err)
	}
	logger.Info("automation engine started", "rules", len(rules), "owner", ownerEmail)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Stop prevents future firings; in-flight runs always finalize.
	scheduler.Stop()

	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown failed", "error", err)
	}
}
