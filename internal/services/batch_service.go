package services

import (
	"context"
	"fmt"

	"github.com/leadpulse/backend/internal/models"
)

// BatchReadRepository is the batch store used by the admin API
type BatchReadRepository interface {
	GetByID(ctx context.Context, id int) (*models.Batch, error)
	GetAll(ctx context.Context, page, count int, status models.BatchStatus) ([]models.BatchListItem, error)
}

type batchService struct {
	repo BatchReadRepository
}

// NewBatchService creates a new batch service
func NewBatchService(repo BatchReadRepository) *batchService {
	return &batchService{repo: repo}
}

// GetByID returns one batch
func (s *batchService) GetByID(ctx context.Context, id int) (*models.Batch, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of batches, optionally filtered by status
func (s *batchService) List(ctx context.Context, page, count int, status models.BatchStatus) ([]models.BatchListItem, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown batch status %q", ErrInvalidTaskRequest, status)
	}
	page, count = normalizePage(page, count)
	return s.repo.GetAll(ctx, page, count, status)
}
