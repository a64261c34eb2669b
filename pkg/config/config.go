package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Signing  SigningConfig
	Pass     PassConfig
	Worker   WorkerConfig
	OTel     OTelConfig
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Debug       bool
	Version     string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// PublicBaseURL is the externally reachable base URL used when building
	// QR and share links
	PublicBaseURL string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka connection settings
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	NotificationTopic string
	EventStreamTopic  string
}

// JWTConfig holds API identity token settings
type JWTConfig struct {
	Secret string
	Issuer string
}

// SigningConfig holds pass signing material locations and identifiers.
// Built once at startup and passed by reference into the token service and
// platform generators.
type SigningConfig struct {
	// TokenSecret signs QR payloads and share tokens (HMAC-SHA256)
	TokenSecret string

	// Apple
	PassTypeIdentifier string
	TeamIdentifier     string
	AppleCertPath      string
	AppleKeyPath       string
	AppleWWDRCertPath  string

	// Google
	GoogleIssuerID       string
	GoogleServiceAccount string
	GoogleKeyPath        string
	GoogleAPIBaseURL     string
}

// PassConfig holds pass behavior defaults
type PassConfig struct {
	QRTokenTTL          time.Duration
	QRRotationWindow    time.Duration
	ShareTokenTTL       time.Duration
	MaxShares           int
	NotifyCooldown      time.Duration
	DailyNotifyCap      int
	ProximityRadiusM    float64
	EventRetention      time.Duration
	FieldUpdateDelay    time.Duration
	PlatformCallTimeout time.Duration
	// ScoreCeiling is the raw engagement score that normalizes to 1.0 in
	// analytics summaries
	ScoreCeiling float64
}

// WorkerConfig holds background worker settings
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	BackoffBase  time.Duration
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool
	ServiceName   string
	CollectorAddr string
	SampleRatio   float64
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional, env vars alone are fine
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "wallet-service")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SERVER_PUBLIC_BASE_URL", "http://localhost:8080")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "wallet_db")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "wallet-service")
	v.SetDefault("KAFKA_NOTIFICATION_TOPIC", "notification.dispatch")
	v.SetDefault("KAFKA_EVENT_STREAM_TOPIC", "pass.events")

	// JWT defaults
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_ISSUER", "wallet-service")

	// Signing defaults
	v.SetDefault("SIGNING_TOKEN_SECRET", "change-me-in-production")
	v.SetDefault("SIGNING_PASS_TYPE_IDENTIFIER", "pass.com.passmint.event")
	v.SetDefault("SIGNING_TEAM_IDENTIFIER", "")
	v.SetDefault("SIGNING_APPLE_CERT_PATH", "")
	v.SetDefault("SIGNING_APPLE_KEY_PATH", "")
	v.SetDefault("SIGNING_APPLE_WWDR_CERT_PATH", "")
	v.SetDefault("SIGNING_GOOGLE_ISSUER_ID", "")
	v.SetDefault("SIGNING_GOOGLE_SERVICE_ACCOUNT", "")
	v.SetDefault("SIGNING_GOOGLE_KEY_PATH", "")
	v.SetDefault("SIGNING_GOOGLE_API_BASE_URL", "https://walletobjects.googleapis.com/walletobjects/v1")

	// Pass behavior defaults
	v.SetDefault("PASS_QR_TOKEN_TTL", "24h")
	v.SetDefault("PASS_QR_ROTATION_WINDOW", "30s")
	v.SetDefault("PASS_SHARE_TOKEN_TTL", "168h") // 7 days
	v.SetDefault("PASS_MAX_SHARES", 5)
	v.SetDefault("PASS_NOTIFY_COOLDOWN", "30m")
	v.SetDefault("PASS_DAILY_NOTIFY_CAP", 5)
	v.SetDefault("PASS_PROXIMITY_RADIUS_M", 1000.0)
	v.SetDefault("PASS_EVENT_RETENTION", "2160h") // 90 days
	v.SetDefault("PASS_FIELD_UPDATE_DELAY", "5m")
	v.SetDefault("PASS_PLATFORM_CALL_TIMEOUT", "10s")
	v.SetDefault("PASS_SCORE_CEILING", 100.0)

	// Worker defaults
	v.SetDefault("WORKER_POLL_INTERVAL", "2s")
	v.SetDefault("WORKER_BATCH_SIZE", 50)
	v.SetDefault("WORKER_MAX_RETRIES", 3)
	v.SetDefault("WORKER_BACKOFF_BASE", "2s")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "wallet-service")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
}

func bindConfig(v *viper.Viper, cfg *Config) {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.PublicBaseURL = strings.TrimRight(v.GetString("SERVER_PUBLIC_BASE_URL"), "/")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Brokers = strings.Split(v.GetString("KAFKA_BROKERS"), ",")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.NotificationTopic = v.GetString("KAFKA_NOTIFICATION_TOPIC")
	cfg.Kafka.EventStreamTopic = v.GetString("KAFKA_EVENT_STREAM_TOPIC")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// Signing
	cfg.Signing.TokenSecret = v.GetString("SIGNING_TOKEN_SECRET")
	cfg.Signing.PassTypeIdentifier = v.GetString("SIGNING_PASS_TYPE_IDENTIFIER")
	cfg.Signing.TeamIdentifier = v.GetString("SIGNING_TEAM_IDENTIFIER")
	cfg.Signing.AppleCertPath = v.GetString("SIGNING_APPLE_CERT_PATH")
	cfg.Signing.AppleKeyPath = v.GetString("SIGNING_APPLE_KEY_PATH")
	cfg.Signing.AppleWWDRCertPath = v.GetString("SIGNING_APPLE_WWDR_CERT_PATH")
	cfg.Signing.GoogleIssuerID = v.GetString("SIGNING_GOOGLE_ISSUER_ID")
	cfg.Signing.GoogleServiceAccount = v.GetString("SIGNING_GOOGLE_SERVICE_ACCOUNT")
	cfg.Signing.GoogleKeyPath = v.GetString("SIGNING_GOOGLE_KEY_PATH")
	cfg.Signing.GoogleAPIBaseURL = v.GetString("SIGNING_GOOGLE_API_BASE_URL")

	// Pass behavior
	cfg.Pass.QRTokenTTL = v.GetDuration("PASS_QR_TOKEN_TTL")
	cfg.Pass.QRRotationWindow = v.GetDuration("PASS_QR_ROTATION_WINDOW")
	cfg.Pass.ShareTokenTTL = v.GetDuration("PASS_SHARE_TOKEN_TTL")
	cfg.Pass.MaxShares = v.GetInt("PASS_MAX_SHARES")
	cfg.Pass.NotifyCooldown = v.GetDuration("PASS_NOTIFY_COOLDOWN")
	cfg.Pass.DailyNotifyCap = v.GetInt("PASS_DAILY_NOTIFY_CAP")
	cfg.Pass.ProximityRadiusM = v.GetFloat64("PASS_PROXIMITY_RADIUS_M")
	cfg.Pass.EventRetention = v.GetDuration("PASS_EVENT_RETENTION")
	cfg.Pass.FieldUpdateDelay = v.GetDuration("PASS_FIELD_UPDATE_DELAY")
	cfg.Pass.PlatformCallTimeout = v.GetDuration("PASS_PLATFORM_CALL_TIMEOUT")
	cfg.Pass.ScoreCeiling = v.GetFloat64("PASS_SCORE_CEILING")

	// Worker
	cfg.Worker.PollInterval = v.GetDuration("WORKER_POLL_INTERVAL")
	cfg.Worker.BatchSize = v.GetInt("WORKER_BATCH_SIZE")
	cfg.Worker.MaxRetries = v.GetInt("WORKER_MAX_RETRIES")
	cfg.Worker.BackoffBase = v.GetDuration("WORKER_BACKOFF_BASE")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Signing.TokenSecret == "" {
		return fmt.Errorf("token signing secret is required")
	}

	if c.App.Environment == "production" {
		if c.Signing.TokenSecret == "change-me-in-production" {
			return fmt.Errorf("token signing secret must be changed in production")
		}
		if c.JWT.Secret == "change-me-in-production" {
			return fmt.Errorf("JWT secret must be changed in production")
		}
	}

	if c.Pass.MaxShares < 0 {
		return fmt.Errorf("max shares cannot be negative")
	}
	if c.Pass.DailyNotifyCap < 0 {
		return fmt.Errorf("daily notification cap cannot be negative")
	}
	if c.Pass.ScoreCeiling <= 0 {
		return fmt.Errorf("engagement score ceiling must be positive")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
