package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leadpulse/backend/internal/models"
	"go.uber.org/zap"
	"gopkg.in/mail.v2"
)

// MailSender delivers alert messages. *mail.Dialer satisfies it.
type MailSender interface {
	DialAndSend(m ...*mail.Message) error
}

// staleBatchNotifier flags batches the external service has not ended. It never changes
// batch or task state: a stale batch stays processing until the service reports it ended.
type staleBatchNotifier struct {
	sender MailSender
	from   string
	to     string
	logger *zap.Logger

	mu       sync.Mutex
	notified map[string]struct{}
}

// NewStaleBatchNotifier creates a notifier. With an empty recipient it only logs.
func NewStaleBatchNotifier(sender MailSender, from, to string, logger *zap.Logger) *staleBatchNotifier {
	return &staleBatchNotifier{
		sender:   sender,
		from:     from,
		to:       to,
		logger:   logger,
		notified: make(map[string]struct{}),
	}
}

// ReportStale logs a warning and sends one alert e-mail per batch handle per process
func (n *staleBatchNotifier) ReportStale(ctx context.Context, batch models.Batch, age time.Duration) {
	n.mu.Lock()
	_, seen := n.notified[batch.BatchHandle]
	n.notified[batch.BatchHandle] = struct{}{}
	n.mu.Unlock()

	fields := []zap.Field{
		zap.String("batch_handle", batch.BatchHandle),
		zap.Int("batch_id", batch.ID),
		zap.Int("brand_id", batch.BrandID),
		zap.Int("tasks", len(batch.TaskIDs)),
		zap.Duration("age", age),
	}
	if seen {
		n.logger.Debug("batch still processing past stale threshold", fields...)
		return
	}
	n.logger.Warn("batch still processing past stale threshold", fields...)

	if n.sender == nil || n.to == "" {
		return
	}

	m := mail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to)
	m.SetHeader("Subject", fmt.Sprintf("Inference batch %s has not finished", batch.BatchHandle))
	m.SetBody("text/plain", fmt.Sprintf(
		"Batch %s (brand %d, %d tasks) was submitted %s ago and is still processing.\n"+
			"Its tasks remain in processing until the inference service reports the batch ended.\n",
		batch.BatchHandle, batch.BrandID, len(batch.TaskIDs), age.Round(time.Minute),
	))

	if err := n.sender.DialAndSend(m); err != nil {
		n.logger.Error("failed to send stale batch alert", zap.String("batch_handle", batch.BatchHandle), zap.Error(err))
		n.mu.Lock()
		delete(n.notified, batch.BatchHandle)
		n.mu.Unlock()
	}
}
