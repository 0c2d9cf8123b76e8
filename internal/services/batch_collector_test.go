package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leadpulse/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingProcessor collects every flushed batch
type recordingProcessor struct {
	mu      sync.Mutex
	batches [][]models.BufferedEvent
	panics  bool
}

func (p *recordingProcessor) ProcessBatch(ctx context.Context, entries []models.BufferedEvent) IngestionStats {
	p.mu.Lock()
	p.batches = append(p.batches, entries)
	panics := p.panics
	p.mu.Unlock()
	if panics {
		panic("processor exploded")
	}
	return IngestionStats{Received: len(entries)}
}

func (p *recordingProcessor) sizes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	sizes := make([]int, 0, len(p.batches))
	for _, b := range p.batches {
		sizes = append(sizes, len(b))
	}
	return sizes
}

func closeCollector(t *testing.T, c *BatchCollector) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
}

func TestBatchCollector_FlushesAtBatchSize(t *testing.T) {
	processor := &recordingProcessor{}
	collector := NewBatchCollector(processor, 50, time.Hour, zap.NewNop())

	for i := 0; i < 60; i++ {
		_, err := collector.Add("acc-1", models.LeadEvent{LeadEmail: fmt.Sprintf("lead%d@example.com", i)})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return len(processor.sizes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{50}, processor.sizes())
	assert.Equal(t, 10, collector.Pending())

	closeCollector(t, collector)
	assert.Equal(t, []int{50, 10}, processor.sizes())
	assert.Zero(t, collector.Pending())
}

func TestBatchCollector_FlushesOnTimeout(t *testing.T) {
	processor := &recordingProcessor{}
	collector := NewBatchCollector(processor, 50, 20*time.Millisecond, zap.NewNop())
	defer closeCollector(t, collector)

	for i := 0; i < 3; i++ {
		_, err := collector.Add("acc-1", models.LeadEvent{LeadEmail: fmt.Sprintf("lead%d@example.com", i)})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return collector.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(processor.sizes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{3}, processor.sizes())
}

func TestBatchCollector_GroupsByAccountInArrivalOrder(t *testing.T) {
	processor := &recordingProcessor{}
	collector := NewBatchCollector(processor, 4, time.Hour, zap.NewNop())
	defer closeCollector(t, collector)

	adds := []struct{ account, email string }{
		{"acc-b", "b1@example.com"},
		{"acc-a", "a1@example.com"},
		{"acc-b", "b2@example.com"},
		{"acc-a", "a2@example.com"},
	}
	for _, a := range adds {
		entry, err := collector.Add(a.account, models.LeadEvent{LeadEmail: a.email})
		require.NoError(t, err)
		assert.NotEmpty(t, entry.EntryID)
		assert.Equal(t, a.account, entry.AccountID)
	}

	require.Eventually(t, func() bool { return len(processor.sizes()) == 1 }, time.Second, 5*time.Millisecond)

	processor.mu.Lock()
	defer processor.mu.Unlock()
	var emails []string
	for _, e := range processor.batches[0] {
		emails = append(emails, e.Event.LeadEmail)
	}
	assert.Equal(t, []string{"b1@example.com", "b2@example.com", "a1@example.com", "a2@example.com"}, emails)
}

func TestBatchCollector_AddAfterClose(t *testing.T) {
	processor := &recordingProcessor{}
	collector := NewBatchCollector(processor, 10, time.Hour, zap.NewNop())

	closeCollector(t, collector)
	_, err := collector.Add("acc-1", models.LeadEvent{LeadEmail: "late@example.com"})

	assert.ErrorIs(t, err, ErrCollectorClosed)
	assert.Empty(t, processor.sizes())
	assert.NoError(t, collector.Close(context.Background()))
}

func TestBatchCollector_SurvivesProcessorPanic(t *testing.T) {
	processor := &recordingProcessor{panics: true}
	collector := NewBatchCollector(processor, 1, time.Hour, zap.NewNop())

	_, err := collector.Add("acc-1", models.LeadEvent{LeadEmail: "one@example.com"})
	require.NoError(t, err)
	_, err = collector.Add("acc-1", models.LeadEvent{LeadEmail: "two@example.com"})
	require.NoError(t, err)

	closeCollector(t, collector)
	assert.Equal(t, []int{1, 1}, processor.sizes())
}

// blockingProcessor holds every batch until release is closed
type blockingProcessor struct {
	recordingProcessor
	release chan struct{}
}

func (p *blockingProcessor) ProcessBatch(ctx context.Context, entries []models.BufferedEvent) IngestionStats {
	<-p.release
	return p.recordingProcessor.ProcessBatch(ctx, entries)
}

func TestBatchCollector_AddDoesNotWaitForSlowProcessor(t *testing.T) {
	processor := &blockingProcessor{release: make(chan struct{})}
	collector := NewBatchCollector(processor, 1, time.Hour, zap.NewNop())

	added := make(chan struct{})
	go func() {
		defer close(added)
		for i := 0; i < 100; i++ {
			_, err := collector.Add("acc-1", models.LeadEvent{LeadEmail: fmt.Sprintf("lead%d@example.com", i)})
			assert.NoError(t, err)
		}
	}()

	select {
	case <-added:
	case <-time.After(2 * time.Second):
		close(processor.release)
		t.Fatal("Add blocked behind the flush goroutine")
	}
	// One batch is held by the processor, the rest wait in the backlog
	assert.Eventually(t, func() bool { return collector.Backlog() == 99 }, time.Second, 5*time.Millisecond)

	close(processor.release)
	closeCollector(t, collector)
	assert.Len(t, processor.sizes(), 100)
	assert.Zero(t, collector.Backlog())
}
