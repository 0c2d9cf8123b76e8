package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/leadpulse/backend/internal/jobs"
	"github.com/leadpulse/backend/libs/config"
	"github.com/leadpulse/backend/libs/logger"
	"go.uber.org/zap"
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

	logger.Logger.Info("Starting LeadPulse Scheduler")

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

	// Create Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	scheduler := NewScheduler(rdb, asynqClient, logger.Logger, []Trigger{
		{Name: "queue sweep", Spec: cfg.Scheduler.SweepCron, NewTask: jobs.NewQueueSweepTask, UniqueFor: time.Minute},
		{Name: "lead reconciliation", Spec: cfg.Scheduler.ReconcileCron, NewTask: jobs.NewLeadReconcileTask, UniqueFor: cfg.Scheduler.ReconcileMinAge},
		{Name: "plan check", Spec: cfg.Scheduler.PlanCheckCron, NewTask: jobs.NewPlanCheckTask, UniqueFor: time.Hour},
	})

	if err := scheduler.Start(); err != nil {
		logger.Logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer func() {
		logger.Logger.Info("Shutting down scheduler...")
		scheduler.Stop()
		logger.Logger.Info("Scheduler exited")
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
