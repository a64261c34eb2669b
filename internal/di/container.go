package di

import (
	"github.com/passmint/wallet-service/internal/analytics"
	"github.com/passmint/wallet-service/internal/handler"
	"github.com/passmint/wallet-service/internal/notification"
	"github.com/passmint/wallet-service/internal/orchestrator"
	"github.com/passmint/wallet-service/internal/repository"
	"github.com/passmint/wallet-service/internal/service"
	"github.com/passmint/wallet-service/internal/sharing"
	"github.com/passmint/wallet-service/internal/token"
	"github.com/passmint/wallet-service/internal/trigger"
	"github.com/passmint/wallet-service/internal/wallet"
	"github.com/passmint/wallet-service/pkg/database"
	"github.com/passmint/wallet-service/pkg/redis"
)

// Container holds all dependencies for the wallet service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	PassRepo         repository.PassRepository
	TemplateRepo     repository.TemplateRepository
	JobRepo          repository.JobRepository
	AnalyticsRepo    repository.AnalyticsRepository
	DeviceRepo       repository.DeviceRepository
	TriggerStateRepo repository.TriggerStateRepository

	// Platform
	Tokens     *token.Service
	Wallets    *wallet.Registry
	Dispatcher notification.Dispatcher

	// Services
	PassService      *service.PassService
	DeviceService    *service.DeviceService
	TemplateService  *service.TemplateService
	ShareService     *sharing.Service
	Orchestrator     *orchestrator.Orchestrator
	TriggerEngine    *trigger.Engine
	AnalyticsService *analytics.Service

	// Handlers
	HealthHandler    *handler.HealthHandler
	PassHandler      *handler.PassHandler
	TemplateHandler  *handler.TemplateHandler
	ShareHandler     *handler.ShareHandler
	UpdateHandler    *handler.UpdateHandler
	TriggerHandler   *handler.TriggerHandler
	AnalyticsHandler *handler.AnalyticsHandler
	ApplePassHandler *handler.ApplePassHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB    *database.PostgresDB
	Redis *redis.Client

	PassRepo         repository.PassRepository
	TemplateRepo     repository.TemplateRepository
	JobRepo          repository.JobRepository
	AnalyticsRepo    repository.AnalyticsRepository
	DeviceRepo       repository.DeviceRepository
	TriggerStateRepo repository.TriggerStateRepository

	Tokens     *token.Service
	Wallets    *wallet.Registry
	Dispatcher notification.Dispatcher

	PassConfig         *service.PassServiceConfig
	SharingConfig      *sharing.Config
	OrchestratorConfig *orchestrator.Config
	TriggerConfig      *trigger.Config
	AnalyticsConfig    *analytics.Config
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:               cfg.DB,
		Redis:            cfg.Redis,
		PassRepo:         cfg.PassRepo,
		TemplateRepo:     cfg.TemplateRepo,
		JobRepo:          cfg.JobRepo,
		AnalyticsRepo:    cfg.AnalyticsRepo,
		DeviceRepo:       cfg.DeviceRepo,
		TriggerStateRepo: cfg.TriggerStateRepo,
		Tokens:           cfg.Tokens,
		Wallets:          cfg.Wallets,
		Dispatcher:       cfg.Dispatcher,
	}

	// Initialize services
	c.PassService = service.NewPassService(
		c.PassRepo,
		c.TemplateRepo,
		c.AnalyticsRepo,
		c.Tokens,
		c.Wallets,
		cfg.PassConfig,
	)
	c.DeviceService = service.NewDeviceService(
		c.DeviceRepo,
		c.PassRepo,
		c.TemplateRepo,
		c.Wallets,
		c.PassService,
	)
	c.TemplateService = service.NewTemplateService(c.TemplateRepo, c.PassRepo)
	c.ShareService = sharing.New(c.PassRepo, c.AnalyticsRepo, c.Tokens, cfg.SharingConfig)
	c.Orchestrator = orchestrator.New(c.JobRepo, c.PassRepo, cfg.OrchestratorConfig)
	c.TriggerEngine = trigger.New(
		c.PassRepo,
		c.AnalyticsRepo,
		c.TriggerStateRepo,
		c.Dispatcher,
		cfg.TriggerConfig,
	)
	c.AnalyticsService = analytics.NewService(c.AnalyticsRepo, c.PassRepo, c.TemplateRepo, cfg.AnalyticsConfig)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.PassHandler = handler.NewPassHandler(c.PassService)
	c.TemplateHandler = handler.NewTemplateHandler(c.TemplateService)
	c.ShareHandler = handler.NewShareHandler(c.ShareService)
	c.UpdateHandler = handler.NewUpdateHandler(c.Orchestrator)
	c.TriggerHandler = handler.NewTriggerHandler(c.TriggerEngine)
	c.AnalyticsHandler = handler.NewAnalyticsHandler(c.AnalyticsService)
	c.ApplePassHandler = handler.NewApplePassHandler(c.DeviceService)

	return c
}
