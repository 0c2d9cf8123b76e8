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

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/hibiken/asynq"
	"github.com/leadpulse/backend/internal/clients/inference"
	"github.com/leadpulse/backend/internal/clients/upstream"
	"github.com/leadpulse/backend/internal/jobs"
	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/repositories"
	"github.com/leadpulse/backend/internal/services"
	"github.com/leadpulse/backend/libs/config"
	"github.com/leadpulse/backend/libs/logger"
	"go.uber.org/zap"
	"gopkg.in/mail.v2"
)

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

	logger.Logger.Info("Starting LeadPulse Worker")

	// Connect to database
	db, err := connectDB(cfg.DSN())
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

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

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	brandRepo := repositories.NewBrandRepository(db)
	leadRepo := repositories.NewLeadRepository(db)
	taskRepo := repositories.NewTaskRepository(db)
	batchRepo := repositories.NewBatchRepository(db)

	// External clients
	httpClient := &http.Client{Timeout: 60 * time.Second}
	inferenceClient := inference.NewClient(cfg.Inference.BaseURL, cfg.Inference.APIKey, cfg.Inference.Model, cfg.Inference.MaxTokens, httpClient)
	upstreamClient := upstream.NewClient(cfg.Upstream.BaseURL, httpClient)
	mailer := mail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)

	// Initialize services
	accountResolver, err := services.NewAccountResolver(accountRepo, cfg.CredentialKey, logger.Logger)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize account resolver", zap.Error(err))
	}
	notifier := services.NewStaleBatchNotifier(mailer, cfg.SMTP.From, cfg.AlertEmail, logger.Logger)
	tracker := services.NewBatchTracker(inferenceClient, taskRepo, batchRepo, leadRepo, notifier, cfg.Scheduler.BatchStaleAfter, logger.Logger)

	scheduler := services.NewQueueScheduler(
		taskRepo,
		tracker,
		cfg.Scheduler.FetchLimit,
		cfg.Scheduler.ClaimTimeout,
		cfg.Inference.MaxBatchRequests,
		logger.Logger,
	)
	scheduler.RegisterExecutor(models.TaskTypePlanCheck, services.NewPlanCheckExecutor(brandRepo, logger.Logger))
	scheduler.RegisterExecutor(models.TaskTypeConversationParse, services.NewConversationParseExecutor(leadRepo))
	scheduler.RegisterExecutor(models.TaskTypeLeadSync, services.NewLeadSyncExecutor(leadRepo, accountResolver, upstreamClient))

	reconciler := services.NewReconcileService(leadRepo, brandRepo, taskRepo, cfg.Scheduler.ReconcileMinAge, logger.Logger)
	planChecks := services.NewPlanCheckService(brandRepo, taskRepo, logger.Logger)

	// Create Asynq server. Two slots let a reconciliation run beside a long sweep.
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				jobs.QueueName: 1,
			},
		},
	)

	worker := NewWorker(logger.Logger, scheduler, reconciler, planChecks)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypeQueueSweep, worker.HandleQueueSweep)
	mux.HandleFunc(jobs.TypeLeadReconcile, worker.HandleLeadReconcile)
	mux.HandleFunc(jobs.TypePlanCheck, worker.HandlePlanCheck)

	go func() {
		if err := srv.Run(mux); err != nil {
			logger.Logger.Fatal("Failed to start worker", zap.Error(err))
		}
	}()

	logger.Logger.Info("Worker started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down worker...")
	srv.Shutdown()
	logger.Logger.Info("Worker exited")
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
