package repositories

import (
	"context"
	"errors"

	"github.com/upb/llm-relay/models"
)

// ErrNotFound is returned when a lookup matches no rows
var ErrNotFound = errors.New("not found")

// NoopCompletionLogRepository discards every entry. It is used when no database is configured.
type NoopCompletionLogRepository struct{}

// NewNoopRepositories returns repositories that persist nothing
func NewNoopRepositories() *Repositories {
	return &Repositories{CompletionLogs: NoopCompletionLogRepository{}}
}

func (NoopCompletionLogRepository) Insert(ctx context.Context, log *models.CompletionLog) error {
	return nil
}

func (NoopCompletionLogRepository) InsertBatch(ctx context.Context, logs []*models.CompletionLog) error {
	return nil
}

func (NoopCompletionLogRepository) GetByRequestID(ctx context.Context, requestID string) (*models.CompletionLog, error) {
	return nil, ErrNotFound
}

func (NoopCompletionLogRepository) ListByUsername(ctx context.Context, username string, limit, offset int) ([]*models.CompletionLog, error) {
	return []*models.CompletionLog{}, nil
}
