package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/passmint/wallet-service/internal/analytics"
	"github.com/passmint/wallet-service/internal/di"
	"github.com/passmint/wallet-service/internal/domain"
	"github.com/passmint/wallet-service/internal/metrics"
	"github.com/passmint/wallet-service/internal/notification"
	"github.com/passmint/wallet-service/internal/orchestrator"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/internal/service"
	"github.com/passmint/wallet-service/internal/sharing"
	"github.com/passmint/wallet-service/internal/token"
	"github.com/passmint/wallet-service/internal/trigger"
	"github.com/passmint/wallet-service/internal/wallet"
	"github.com/passmint/wallet-service/pkg/config"
	"github.com/passmint/wallet-service/pkg/database"
	"github.com/passmint/wallet-service/pkg/logger"
	"github.com/passmint/wallet-service/pkg/middleware"
	pkgredis "github.com/passmint/wallet-service/pkg/redis"
	"github.com/passmint/wallet-service/pkg/telemetry"
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
		ServiceName: "wallet-service",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Wallet Service...")

	ctx := context.Background()

	// Initialize telemetry
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry init failed, continuing without tracing: %v", err))
	}
	defer telemetry.Shutdown(ctx)

	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics init failed: %v", err))
	}

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   2 * time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize Redis connection
	redisCfg := &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: time.Second,
	}
	redisClient, err := pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	// Initialize notification dispatcher
	var dispatcher notification.Dispatcher
	dispatcher, err = notification.NewKafkaDispatcher(ctx, &notification.DispatcherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.NotificationTopic,
		ServiceName: "wallet-service",
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op dispatcher: %v", err))
		dispatcher = notification.NewNoOpDispatcher()
	} else {
		appLog.Info("Kafka notification dispatcher connected")
	}
	defer dispatcher.Close()

	// Token signing
	tokens, err := token.NewService(&token.Config{
		Secret:         cfg.Signing.TokenSecret,
		QRTTL:          cfg.Pass.QRTokenTTL,
		ShareTTL:       cfg.Pass.ShareTokenTTL,
		RotationWindow: cfg.Pass.QRRotationWindow,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Token service init failed: %v", err))
	}

	wallets := buildWalletRegistry(cfg, appLog)

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		DB:               db,
		Redis:            redisClient,
		PassRepo:         repository.NewPostgresPassRepository(db.Pool()),
		TemplateRepo:     repository.NewPostgresTemplateRepository(db.Pool()),
		JobRepo:          repository.NewPostgresJobRepository(db.Pool()),
		AnalyticsRepo:    repository.NewPostgresAnalyticsRepository(db.Pool()),
		DeviceRepo:       repository.NewPostgresDeviceRepository(db.Pool()),
		TriggerStateRepo: repository.NewRedisTriggerRepository(redisClient),
		Tokens:           tokens,
		Wallets:          wallets,
		Dispatcher:       dispatcher,
		PassConfig: &service.PassServiceConfig{
			PassTypeIdentifier: cfg.Signing.PassTypeIdentifier,
			DefaultMaxShares:   cfg.Pass.MaxShares,
		},
		SharingConfig: &sharing.Config{
			ShareBaseURL: cfg.Server.PublicBaseURL,
			MaxShares:    cfg.Pass.MaxShares,
		},
		OrchestratorConfig: &orchestrator.Config{
			FieldUpdateDelay: cfg.Pass.FieldUpdateDelay,
			MaxRetries:       cfg.Worker.MaxRetries,
		},
		TriggerConfig: &trigger.Config{
			ProximityRadiusM: cfg.Pass.ProximityRadiusM,
			NotifyCooldown:   cfg.Pass.NotifyCooldown,
			DailyNotifyCap:   cfg.Pass.DailyNotifyCap,
		},
		AnalyticsConfig: &analytics.Config{
			ScoreCeiling: cfg.Pass.ScoreCeiling,
		},
	})

	router := buildRouter(cfg, container)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Wallet Service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}

// buildWalletRegistry wires the platform generators. Missing signing material
// falls back to mock generators so the service still runs in development.
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
		if err != nil {
			appLog.Warn(fmt.Sprintf("Apple packager init failed, using mock: %v", err))
			generators = append(generators, wallet.NewMockGenerator(domain.PlatformApple))
		} else {
			generators = append(generators, apple)
		}
	} else {
		appLog.Warn("Apple signing material not configured, using mock generator")
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
		if err != nil {
			appLog.Warn(fmt.Sprintf("Google builder init failed, using mock: %v", err))
			generators = append(generators, wallet.NewMockGenerator(domain.PlatformGoogle))
		} else {
			generators = append(generators, google)
		}
	} else {
		appLog.Warn("Google signing material not configured, using mock generator")
		generators = append(generators, wallet.NewMockGenerator(domain.PlatformGoogle))
	}

	return wallet.NewRegistry(generators...)
}

// buildRouter assembles the HTTP surface: the JSON API, the Apple pass
// update web service, and health probes.
func buildRouter(cfg *config.Config, container *di.Container) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.OTel.Enabled {
		router.Use(telemetry.TracingMiddleware("wallet-service"))
	}

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// API routes. The whole JSON API requires a platform identity token;
	// the Apple web service below authenticates per pass instead.
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(&middleware.AuthConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
	}))
	{
		passes := v1.Group("/passes")
		{
			passes.POST("", container.PassHandler.Issue)
			passes.GET("/:id", container.PassHandler.Get)
			passes.GET("/:id/download", container.PassHandler.Download)
			passes.POST("/:id/revoke", container.PassHandler.Revoke)
			passes.GET("/:id/qr", container.PassHandler.RotatingQR)
			passes.POST("/:id/events", container.PassHandler.RecordEngagement)
			passes.POST("/:id/share", container.ShareHandler.Share)
			passes.POST("/:id/share/revoke", container.ShareHandler.Revoke)
		}

		v1.POST("/qr/verify", container.PassHandler.VerifyQR)
		v1.GET("/shared/:token", container.ShareHandler.Access)

		templates := v1.Group("/templates")
		{
			templates.POST("", container.TemplateHandler.Create)
			templates.GET("", container.TemplateHandler.List)
			templates.GET("/:id", container.TemplateHandler.Get)
			templates.PUT("/:id", container.TemplateHandler.Update)
			templates.DELETE("/:id", container.TemplateHandler.Delete)
			templates.POST("/:id/activate", container.TemplateHandler.Activate)
			templates.POST("/:id/deactivate", container.TemplateHandler.Deactivate)
			templates.POST("/:id/default", container.TemplateHandler.SetDefault)
			templates.POST("/:id/validate", container.TemplateHandler.Validate)
			templates.POST("/:id/preview", container.TemplateHandler.Preview)
		}

		updates := v1.Group("/updates")
		{
			updates.POST("/bulk", container.UpdateHandler.ScheduleBulk)
			updates.GET("/batches/:batchId", container.UpdateHandler.BatchStatus)
			updates.DELETE("/batches/:batchId", container.UpdateHandler.CancelBatch)
			updates.GET("/jobs/:jobId", container.UpdateHandler.GetJob)
			updates.DELETE("/jobs/:jobId", container.UpdateHandler.CancelJob)
		}

		v1.POST("/webhooks/events", container.UpdateHandler.HandleBusinessEvent)

		triggers := v1.Group("/triggers")
		{
			triggers.POST("/location", container.TriggerHandler.Location)
			triggers.POST("/beacon", container.TriggerHandler.Beacon)
		}

		analyticsGroup := v1.Group("/analytics")
		{
			analyticsGroup.GET("/overview", container.AnalyticsHandler.Overview)
			analyticsGroup.GET("/passes/:id", container.AnalyticsHandler.PassSummary)
			analyticsGroup.GET("/passes/:id/compare", container.AnalyticsHandler.ComparePeriods)
			analyticsGroup.GET("/templates/:id", container.AnalyticsHandler.TemplateSummary)
			analyticsGroup.GET("/events/:eventId", container.AnalyticsHandler.EventSummary)
		}
	}

	// Apple pass update web service (protocol routes, outside /api)
	apple := router.Group("/v1")
	{
		apple.POST("/devices/:deviceLibraryId/registrations/:passTypeId/:serialNumber", container.ApplePassHandler.Register)
		apple.DELETE("/devices/:deviceLibraryId/registrations/:passTypeId/:serialNumber", container.ApplePassHandler.Unregister)
		apple.GET("/devices/:deviceLibraryId/registrations/:passTypeId", container.ApplePassHandler.ChangedSerials)
		apple.GET("/passes/:passTypeId/:serialNumber", container.ApplePassHandler.LatestPass)
		apple.POST("/log", container.ApplePassHandler.Log)
	}

	return router
}
