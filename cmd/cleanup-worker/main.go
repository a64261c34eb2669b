package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/internal/worker"
	"github.com/passmint/wallet-service/pkg/config"
	"github.com/passmint/wallet-service/pkg/database"
	"github.com/passmint/wallet-service/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: "cleanup-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Cleanup Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:          cfg.Database.Host,
		Port:          cfg.Database.Port,
		User:          cfg.Database.User,
		Password:      cfg.Database.Password,
		Database:      cfg.Database.DBName,
		SSLMode:       cfg.Database.SSLMode,
		MaxConns:      5,
		MinConns:      1,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Create worker
	cleanupWorker := worker.NewCleanupWorker(
		repository.NewPostgresPassRepository(db.Pool()),
		repository.NewPostgresJobRepository(db.Pool()),
		repository.NewPostgresAnalyticsRepository(db.Pool()),
		&worker.CleanupWorkerConfig{
			ScanInterval:   time.Minute,
			BatchSize:      100,
			EventRetention: cfg.Pass.EventRetention,
		},
	)

	if err := cleanupWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start worker: %v", err))
	}
	appLog.Info("Cleanup Worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	cleanupWorker.Stop()
	cancel()

	appLog.Info("Worker exited gracefully")
}
