package repositories

import (
	"context"

	"github.com/upb/llm-relay/models"
)

// CompletionLogRepository persists completion log entries
type CompletionLogRepository interface {
	// Insert inserts a single completion log entry
	Insert(ctx context.Context, log *models.CompletionLog) error

	// InsertBatch inserts several entries atomically
	InsertBatch(ctx context.Context, logs []*models.CompletionLog) error

	// GetByRequestID retrieves the entry written for a request
	GetByRequestID(ctx context.Context, requestID string) (*models.CompletionLog, error)

	// ListByUsername retrieves a user's most recent entries, newest first
	ListByUsername(ctx context.Context, username string, limit, offset int) ([]*models.CompletionLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	CompletionLogs CompletionLogRepository
}
