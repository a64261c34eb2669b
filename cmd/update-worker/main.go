package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/metrics"
	"github.com/passmint/wallet-service/internal/notification"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/internal/wallet"
	"github.com/passmint/wallet-service/internal/worker"
	"github.com/passmint/wallet-service/pkg/config"
	"github.com/passmint/wallet-service/pkg/database"
	"github.com/passmint/wallet-service/pkg/logger"
	"github.com/passmint/wallet-service/pkg/retry"
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
		ServiceName: "update-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Update Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics init failed: %v", err))
	}

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:          cfg.Database.Host,
		Port:          cfg.Database.Port,
		User:          cfg.Database.User,
		Password:      cfg.Database.Password,
		Database:      cfg.Database.DBName,
		SSLMode:       cfg.Database.SSLMode,
		MaxConns:      10,
		MinConns:      2,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize notification dispatcher
	var dispatcher notification.Dispatcher
	dispatcher, err = notification.NewKafkaDispatcher(ctx, &notification.DispatcherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.NotificationTopic,
		ServiceName: "update-worker",
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op dispatcher: %v", err))
		dispatcher = notification.NewNoOpDispatcher()
	}
	defer dispatcher.Close()

	wallets := buildWalletRegistry(cfg, appLog)

	// Create worker
	updateWorker := worker.NewUpdateWorker(
		repository.NewPostgresJobRepository(db.Pool()),
		repository.NewPostgresPassRepository(db.Pool()),
		repository.NewPostgresTemplateRepository(db.Pool()),
		repository.NewPostgresDeviceRepository(db.Pool()),
		repository.NewPostgresAnalyticsRepository(db.Pool()),
		wallets,
		dispatcher,
		&worker.UpdateWorkerConfig{
			PollInterval: cfg.Worker.PollInterval,
			BatchSize:    cfg.Worker.BatchSize,
			Backoff: &retry.Config{
				MaxRetries:      cfg.Worker.MaxRetries,
				InitialInterval: cfg.Worker.BackoffBase,
				Multiplier:      2.0,
				JitterFactor:    0.1,
			},
		},
	)

	if err := updateWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start worker: %v", err))
	}
	appLog.Info("Update Worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	updateWorker.Stop()
	cancel()

	appLog.Info("Worker exited gracefully")
}

// buildWalletRegistry wires the platform generators, falling back to mocks
// when signing material is missing
func buildWalletRegistry(cfg *config.Config, appLog *logger.Logger) *wallet.Registry {
	var generators []wallet.Generator

	if cfg.Signing.AppleCertPath != "" && cfg.Signing.AppleKeyPath != "" {
		apple, err := wallet.NewApplePackager(&wallet.AppleConfig{
			PassTypeIdentifier: cfg.Signing.PassTypeIdentifier,
			TeamIdentifier:     cfg.Signing.TeamIdentifier,
			OrganizationName:   cfg.App.Name,
			WebServiceURL:      cfg.Server.PublicBaseURL,
			CertPath:           cfg.Signing.AppleCertPath,
			KeyPath:            cfg.Signing.AppleKeyPath,
			WWDRCertPath:       cfg.Signing.AppleWWDRCertPath,
			AssetTimeout:       cfg.Pass.PlatformCallTimeout,
		}, nil)
		if err == nil {
			generators = append(generators, apple)
		} else {
			appLog.Warn(fmt.Sprintf("Apple packager init failed, using mock: %v", err))
			generators = append(generators, wallet.NewMockGenerator(domain.PlatformApple))
		}
	} else {
		generators = append(generators, wallet.NewMockGenerator(domain.PlatformApple))
	}

	if cfg.Signing.GoogleIssuerID != "" && cfg.Signing.GoogleKeyPath != "" {
		google, err := wallet.NewGoogleBuilder(&wallet.GoogleConfig{
			IssuerID:       cfg.Signing.GoogleIssuerID,
			ServiceAccount: cfg.Signing.GoogleServiceAccount,
			KeyPath:        cfg.Signing.GoogleKeyPath,
			APIBaseURL:     cfg.Signing.GoogleAPIBaseURL,
			CallTimeout:    cfg.Pass.PlatformCallTimeout,
			Origins:        []string{cfg.Server.PublicBaseURL},
		})
		if err == nil {
			generators = append(generators, google)
		} else {
			appLog.Warn(fmt.Sprintf("Google builder init failed, using mock: %v", err))
			generators = append(generators, wallet.NewMockGenerator(domain.PlatformGoogle))
		}
	} else {
		generators = append(generators, wallet.NewMockGenerator(domain.PlatformGoogle))
	}

	return wallet.NewRegistry(generators...)
}
