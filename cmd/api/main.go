package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"
	_ "github.com/leadpulse/backend/docs"
	"github.com/leadpulse/backend/internal/clients/upstream"
	"github.com/leadpulse/backend/internal/handlers"
	"github.com/leadpulse/backend/internal/repositories"
	"github.com/leadpulse/backend/internal/services"
	"github.com/leadpulse/backend/libs/auth/middleware"
	"github.com/leadpulse/backend/libs/auth/service"
	"github.com/leadpulse/backend/libs/config"
	"github.com/leadpulse/backend/libs/logger"
	loggerMiddleware "github.com/leadpulse/backend/libs/logger/middleware"
	sharedMiddleware "github.com/leadpulse/backend/libs/middlewares"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// @title LeadPulse API
// @version 1.0
// @description Lead-reply ingestion, task queue and batch intent scoring
// @termsOfService http://swagger.io/terms/

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for service-to-service authentication
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Required for admin endpoints.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting LeadPulse API")

	// Connect to database
	db, err := connectDB(cfg.DSN())
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(db); err != nil {
		logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Asynq client for manual sweep triggers
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	tokenGenerator := service.NewTokenGenerator(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	brandRepo := repositories.NewBrandRepository(db)
	leadRepo := repositories.NewLeadRepository(db)
	taskRepo := repositories.NewTaskRepository(db)
	batchRepo := repositories.NewBatchRepository(db)

	// Initialize services
	accountResolver, err := services.NewAccountResolver(accountRepo, cfg.CredentialKey, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize account resolver", zap.Error(err))
	}
	upstreamClient := upstream.NewClient(cfg.Upstream.BaseURL, &http.Client{Timeout: 30 * time.Second})
	quotaGate := services.NewQuotaGate(brandRepo, logger.Logger)
	leadEnqueuer := services.NewLeadEnqueuer(leadRepo, taskRepo, upstreamClient, cfg.Upstream.EnrichmentConcurrency, logger.Logger)
	ingestionService := services.NewIngestionService(accountResolver, quotaGate, leadEnqueuer, logger.Logger)
	collector := services.NewBatchCollector(ingestionService, cfg.Collector.BatchSize, cfg.Collector.FlushTimeout, logger.Logger)
	taskService := services.NewTaskService(taskRepo, brandRepo, logger.Logger)
	batchService := services.NewBatchService(batchRepo)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(collector, logger.Logger)
	taskHandler := handlers.NewTaskHandler(taskService, logger.Logger)
	adminHandler := handlers.NewAdminHandler(taskService, batchService, asynqClient, logger.Logger)

	// Initialize auth middleware
	apiKeyMiddleware := middleware.APIKeyMiddleware(cfg.APIKey)
	adminMiddleware := middleware.RoleMiddleware(tokenGenerator, middleware.RoleAdmin)

	// Setup router
	r := chi.NewRouter()

	r.Use(sharedMiddleware.RequestIDMiddleware)
	r.Use(loggerMiddleware.LoggerMiddleware(logger.Logger))
	r.Use(sharedMiddleware.RecoveryMiddleware(logger.Logger))
	r.Use(sharedMiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(sharedMiddleware.RequestSizeLimitMiddleware(10 * 1024 * 1024)) // 10MB

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", cfg.Server.Port)),
	))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
		} else if err := rdb.Ping(r.Context()).Err(); err != nil {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Webhooks come from the campaign platform without credentials
		r.Group(func(r chi.Router) {
			r.Use(sharedMiddleware.RateLimitByIP(600, time.Minute))
			webhookHandler.RegisterRoutes(r)
		})

		// Service endpoints (API Key protected)
		r.Group(func(r chi.Router) {
			r.Use(sharedMiddleware.RateLimitByIP(100, time.Minute))
			r.Use(apiKeyMiddleware)
			taskHandler.RegisterRoutes(r)
		})

		// Admin endpoints (JWT protected)
		r.Group(func(r chi.Router) {
			r.Use(sharedMiddleware.RateLimitByIP(100, time.Minute))
			r.Use(adminMiddleware)
			adminHandler.RegisterRoutes(r)
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Flush whatever the webhooks buffered after the listener stopped accepting
	if err := collector.Close(shutdownCtx); err != nil {
		logger.Logger.Error("Collector did not drain before shutdown", zap.Int("pending", collector.Pending()), zap.Error(err))
	}

	logger.Logger.Info("Server exited")
}

// connectDB connects to the database
func connectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{
		MigrationsTable: "leadpulse_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Resolve the migrations folder from the repo root or from cmd/api
	migrationPath := "file://migrations"
	if _, err := os.Stat("migrations"); os.IsNotExist(err) {
		if _, err := os.Stat("../../migrations"); err == nil {
			migrationPath = "file://../../migrations"
		}
	}

	m, err := migrate.NewWithDatabaseInstance(migrationPath, "mysql", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
