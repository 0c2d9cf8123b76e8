package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/leadpulse/backend/internal/jobs"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	heartbeatKey      = "leadpulse:scheduler:heartbeat"
	heartbeatInterval = 30 * time.Second
)

// HeartbeatStore records that the trigger process is alive
type HeartbeatStore interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Trigger is one cron entry that enqueues an asynq task. The task stays unique for UniqueFor
// so a slow worker never accumulates a backlog of identical triggers.
type Trigger struct {
	Name      string
	Spec      string
	NewTask   func() *asynq.Task
	UniqueFor time.Duration
}

// Scheduler enqueues sweep triggers on cron schedules
type Scheduler struct {
	redis    HeartbeatStore
	enqueuer jobs.Enqueuer
	logger   *zap.Logger
	cron     *cron.Cron
	ticker   *time.Ticker
	stopChan chan struct{}
	triggers []Trigger
}

// NewScheduler creates a new scheduler instance
func NewScheduler(rdb HeartbeatStore, enqueuer jobs.Enqueuer, logger *zap.Logger, triggers []Trigger) *Scheduler {
	return &Scheduler{
		redis:    rdb,
		enqueuer: enqueuer,
		logger:   logger,
		cron:     cron.New(),
		ticker:   time.NewTicker(heartbeatInterval),
		stopChan: make(chan struct{}),
		triggers: triggers,
	}
}

// Start registers the cron entries and starts the scheduler
func (s *Scheduler) Start() error {
	for _, tr := range s.triggers {
		tr := tr
		if _, err := s.cron.AddFunc(tr.Spec, func() {
			s.trigger(tr.NewTask(), tr.UniqueFor)
		}); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", tr.Name, err)
		}
		s.logger.Info("Trigger scheduled", zap.String("name", tr.Name), zap.String("spec", tr.Spec))
	}

	s.cron.Start()
	go s.run()
	s.logger.Info("Scheduler started", zap.Int("triggers", len(s.triggers)))
	return nil
}

// Stop stops the scheduler and waits for running cron jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.ticker.Stop()
	close(s.stopChan)
	s.logger.Info("Scheduler stopped")
}

// run writes the heartbeat until stopped
func (s *Scheduler) run() {
	ctx := context.Background()
	s.beat(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.beat(ctx)
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) beat(ctx context.Context) {
	if err := s.redis.Set(ctx, heartbeatKey, time.Now().Unix(), 2*heartbeatInterval).Err(); err != nil {
		s.logger.Warn("Failed to write scheduler heartbeat", zap.Error(err))
	}
}

// trigger enqueues one sweep trigger
func (s *Scheduler) trigger(task *asynq.Task, uniqueFor time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queued, err := jobs.Enqueue(ctx, s.enqueuer, task, uniqueFor)
	if err != nil {
		s.logger.Error("Failed to enqueue trigger", zap.String("type", task.Type()), zap.Error(err))
		return
	}
	if !queued {
		s.logger.Debug("Trigger already pending", zap.String("type", task.Type()))
		return
	}
	s.logger.Debug("Trigger enqueued", zap.String("type", task.Type()))
}
