// Package config provides configuration for the application
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	Database      DatabaseConfig
	Redis         RedisConfig
	Server        ServerConfig
	Logging       LoggingConfig
	CORS          CORSConfig
	JWT           JWTConfig
	SMTP          SMTPConfig
	Collector     CollectorConfig
	Scheduler     SchedulerConfig
	Inference     InferenceConfig
	Upstream      UpstreamConfig
	APIKey        string `env:"API_KEY"`
	CredentialKey string `env:"CREDENTIAL_KEY"`
	AlertEmail    string `env:"ALERT_EMAIL"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	DBName   string `env:"DB_NAME"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr returns the host:port pair used by Redis clients
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port int `env:"SERVER_PORT" envDefault:"8080"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// JWTConfig holds JWT token configuration
type JWTConfig struct {
	Secret            string        `env:"JWT_SECRET"`
	AccessTokenExpiry time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"1h"`
}

// SMTPConfig holds SMTP server configuration
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST" envDefault:"localhost"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM" envDefault:"alerts@leadpulse.io"`
}

// CollectorConfig controls the in-memory webhook buffer
type CollectorConfig struct {
	BatchSize    int           `env:"COLLECTOR_BATCH_SIZE" envDefault:"50"`
	FlushTimeout time.Duration `env:"COLLECTOR_FLUSH_TIMEOUT" envDefault:"30s"`
}

// SchedulerConfig controls the queue sweep and its triggers
type SchedulerConfig struct {
	FetchLimit      int           `env:"SCHEDULER_FETCH_LIMIT" envDefault:"1000"`
	ClaimTimeout    time.Duration `env:"SCHEDULER_CLAIM_TIMEOUT" envDefault:"10m"`
	SweepCron       string        `env:"SWEEP_CRON" envDefault:"@every 1m"`
	ReconcileCron   string        `env:"RECONCILE_CRON" envDefault:"@every 15m"`
	ReconcileMinAge time.Duration `env:"RECONCILE_MIN_AGE" envDefault:"10m"`
	PlanCheckCron   string        `env:"PLAN_CHECK_CRON" envDefault:"@hourly"`
	BatchStaleAfter time.Duration `env:"BATCH_STALE_AFTER" envDefault:"24h"`
}

// InferenceConfig holds the batch inference service settings
type InferenceConfig struct {
	APIKey           string `env:"INFERENCE_API_KEY"`
	BaseURL          string `env:"INFERENCE_BASE_URL" envDefault:"https://api.anthropic.com"`
	Model            string `env:"INFERENCE_MODEL" envDefault:"claude-3-5-haiku-latest"`
	MaxTokens        int    `env:"INFERENCE_MAX_TOKENS" envDefault:"16"`
	MaxBatchRequests int    `env:"INFERENCE_MAX_BATCH_REQUESTS" envDefault:"500"`
}

// UpstreamConfig holds the campaign platform API settings
type UpstreamConfig struct {
	BaseURL               string `env:"UPSTREAM_BASE_URL" envDefault:"https://server.smartlead.ai/api/v1"`
	EnrichmentConcurrency int    `env:"ENRICHMENT_CONCURRENCY" envDefault:"5"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks required settings and value ranges
func (c *Config) validate() error {
	switch {
	case c.Database.Host == "":
		return fmt.Errorf("DB_HOST is required")
	case c.Database.Port == 0:
		return fmt.Errorf("DB_PORT is required")
	case c.Database.User == "":
		return fmt.Errorf("DB_USER is required")
	case c.Database.Password == "":
		return fmt.Errorf("DB_PASSWORD is required")
	case c.Database.DBName == "":
		return fmt.Errorf("DB_NAME is required")
	case c.JWT.Secret == "":
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Collector.BatchSize < 1 {
		return fmt.Errorf("invalid COLLECTOR_BATCH_SIZE: %d", c.Collector.BatchSize)
	}
	if c.Collector.FlushTimeout <= 0 {
		return fmt.Errorf("invalid COLLECTOR_FLUSH_TIMEOUT: %s", c.Collector.FlushTimeout)
	}
	if c.Scheduler.FetchLimit < 1 {
		return fmt.Errorf("invalid SCHEDULER_FETCH_LIMIT: %d", c.Scheduler.FetchLimit)
	}
	if c.Inference.MaxBatchRequests < 1 {
		return fmt.Errorf("invalid INFERENCE_MAX_BATCH_REQUESTS: %d", c.Inference.MaxBatchRequests)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Scheduler.SweepCron); err != nil {
		return fmt.Errorf("invalid SWEEP_CRON: %w", err)
	}
	if _, err := parser.Parse(c.Scheduler.ReconcileCron); err != nil {
		return fmt.Errorf("invalid RECONCILE_CRON: %w", err)
	}
	if _, err := parser.Parse(c.Scheduler.PlanCheckCron); err != nil {
		return fmt.Errorf("invalid PLAN_CHECK_CRON: %w", err)
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}

	return nil
}

// DSN returns the database connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}
