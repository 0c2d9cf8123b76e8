package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadpulse/backend/internal/models"
	"go.uber.org/zap"
)

// ErrCollectorClosed is returned by Add after Close has been called
var ErrCollectorClosed = errors.New("batch collector is closed")

// backlogWarnSize is the number of drained batches waiting for the flush goroutine at which a
// slow downstream is reported
const backlogWarnSize = 16

// BatchProcessor consumes drained collector buffers
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, entries []models.BufferedEvent) IngestionStats
}

// BatchCollector buffers webhook events per account and hands them to a BatchProcessor when
// the buffer reaches batchSize entries or flushTimeout after the first entry since the last
// flush, whichever comes first. The buffer lives in this process only: separate API
// instances flush independently.
type BatchCollector struct {
	processor    BatchProcessor
	batchSize    int
	flushTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu         sync.Mutex
	buffers    map[string][]models.BufferedEvent
	order      []string
	total      int
	generation uint64
	timer      *time.Timer
	closed     bool
	backlog    [][]models.BufferedEvent

	ready     chan struct{}
	done      chan struct{}
	flushCtx  context.Context
	cancelCtx context.CancelFunc
}

// NewBatchCollector creates a collector and starts its flush goroutine
func NewBatchCollector(processor BatchProcessor, batchSize int, flushTimeout time.Duration, logger *zap.Logger) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &BatchCollector{
		processor:    processor,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		logger:       logger,
		now:          time.Now,
		buffers:      make(map[string][]models.BufferedEvent),
		ready:        make(chan struct{}, 1),
		done:         make(chan struct{}),
		flushCtx:     ctx,
		cancelCtx:    cancel,
	}
	go c.run()
	return c
}

// Add buffers one event for accountID and returns the buffered entry
func (c *BatchCollector) Add(accountID string, event models.LeadEvent) (models.BufferedEvent, error) {
	entry := models.BufferedEvent{
		EntryID:    uuid.NewString(),
		AccountID:  accountID,
		ReceivedAt: c.now(),
		Event:      event,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return models.BufferedEvent{}, ErrCollectorClosed
	}

	if _, ok := c.buffers[accountID]; !ok {
		c.order = append(c.order, accountID)
	}
	c.buffers[accountID] = append(c.buffers[accountID], entry)
	c.total++

	switch {
	case c.total >= c.batchSize:
		c.enqueueLocked(c.drainLocked())
	case c.total == 1:
		gen := c.generation
		c.timer = time.AfterFunc(c.flushTimeout, func() { c.flushOnTimeout(gen) })
	}

	return entry, nil
}

// Pending returns the number of buffered entries not yet handed to the processor
func (c *BatchCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Close stops accepting events, flushes what is buffered and waits for the flush goroutine
// to finish or ctx to expire
func (c *BatchCollector) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.total > 0 {
		c.enqueueLocked(c.drainLocked())
	}
	c.signal()
	c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.cancelCtx()
		return fmt.Errorf("batch collector did not drain: %w", ctx.Err())
	}
}

func (c *BatchCollector) flushOnTimeout(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A newer flush already drained the entries this timer was armed for
	if c.closed || gen != c.generation || c.total == 0 {
		return
	}
	c.enqueueLocked(c.drainLocked())
}

// enqueueLocked hands a drained batch to the flush goroutine without waiting for it, so Add
// never blocks on downstream work. c.mu must be held.
func (c *BatchCollector) enqueueLocked(batch []models.BufferedEvent) {
	c.backlog = append(c.backlog, batch)
	if len(c.backlog) == backlogWarnSize {
		c.logger.Warn("collector batches are waiting on a slow downstream", zap.Int("batches", len(c.backlog)))
	}
	c.signal()
}

func (c *BatchCollector) signal() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Backlog returns the number of drained batches not yet taken by the flush goroutine
func (c *BatchCollector) Backlog() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.backlog)
}

// drainLocked empties the buffer in account arrival order and invalidates any armed timer.
// c.mu must be held.
func (c *BatchCollector) drainLocked() []models.BufferedEvent {
	batch := make([]models.BufferedEvent, 0, c.total)
	for _, accountID := range c.order {
		batch = append(batch, c.buffers[accountID]...)
	}

	c.buffers = make(map[string][]models.BufferedEvent)
	c.order = nil
	c.total = 0
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	return batch
}

// run processes drained batches in order until the collector is closed and the backlog is empty
func (c *BatchCollector) run() {
	defer close(c.done)
	for {
		c.mu.Lock()
		for len(c.backlog) == 0 && !c.closed {
			c.mu.Unlock()
			<-c.ready
			c.mu.Lock()
		}
		if len(c.backlog) == 0 {
			c.mu.Unlock()
			return
		}
		batch := c.backlog[0]
		c.backlog[0] = nil
		c.backlog = c.backlog[1:]
		c.mu.Unlock()

		c.process(batch)
	}
}

func (c *BatchCollector) process(batch []models.BufferedEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while processing collector batch",
				zap.Any("panic", r),
				zap.Int("entries", len(batch)),
			)
		}
	}()

	c.logger.Debug("flushing collector batch", zap.Int("entries", len(batch)))
	c.processor.ProcessBatch(c.flushCtx, batch)
}
