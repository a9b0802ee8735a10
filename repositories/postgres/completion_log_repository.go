package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/llm-relay/models"
	"github.com/upb/llm-relay/repositories"
)

const insertCompletionLog = `
	INSERT INTO completion_logs (
		id, request_id, username, status, selection, provider, model, fell_back,
		prompt_length, history_length, response_length, latency_ms,
		error_kind, error_message, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
	)
`

const selectCompletionLog = `
	SELECT id, request_id, username, status, selection, provider, model, fell_back,
	       prompt_length, history_length, response_length, latency_ms,
	       error_kind, error_message, created_at
	FROM completion_logs
`

// CompletionLogRepository implements the repositories.CompletionLogRepository interface
type CompletionLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCompletionLogRepository creates a new completion log repository
func NewCompletionLogRepository(db *DB, logger *zap.Logger) repositories.CompletionLogRepository {
	return &CompletionLogRepository{
		db:     db,
		logger: logger,
	}
}

// executor is satisfied by both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertArgs(log *models.CompletionLog) []interface{} {
	return []interface{}{
		log.ID,
		log.RequestID,
		log.Username,
		log.Status,
		log.Selection,
		log.Provider,
		log.Model,
		log.FellBack,
		log.PromptLength,
		log.HistoryLength,
		log.ResponseLength,
		log.LatencyMs,
		log.ErrorKind,
		log.ErrorMessage,
		log.CreatedAt,
	}
}

func (r *CompletionLogRepository) insert(ctx context.Context, exec executor, log *models.CompletionLog) error {
	if _, err := exec.ExecContext(ctx, insertCompletionLog, insertArgs(log)...); err != nil {
		return fmt.Errorf("failed to insert completion log: %w", err)
	}
	return nil
}

// Insert inserts a new completion log entry
func (r *CompletionLogRepository) Insert(ctx context.Context, log *models.CompletionLog) error {
	if err := r.insert(ctx, r.db.DB, log); err != nil {
		return err
	}

	r.logger.Debug("completion log inserted",
		zap.String("id", log.ID.String()),
		zap.String("request_id", log.RequestID),
	)
	return nil
}

// InsertBatch inserts all entries in one transaction
func (r *CompletionLogRepository) InsertBatch(ctx context.Context, logs []*models.CompletionLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, log := range logs {
		if err := r.insert(ctx, tx, log); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("original_error", err),
				)
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("completion log batch inserted", zap.Int("count", len(logs)))
	return nil
}

// GetByRequestID retrieves the entry written for a request
func (r *CompletionLogRepository) GetByRequestID(ctx context.Context, requestID string) (*models.CompletionLog, error) {
	query := selectCompletionLog + `
		WHERE request_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	log, err := scanCompletionLog(r.db.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("completion log for request %s: %w", requestID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get completion log: %w", err)
	}

	return log, nil
}

// ListByUsername retrieves a user's entries with pagination, newest first
func (r *CompletionLogRepository) ListByUsername(ctx context.Context, username string, limit, offset int) ([]*models.CompletionLog, error) {
	query := selectCompletionLog + `
		WHERE username = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, username, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list completion logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.CompletionLog, 0)
	for rows.Next() {
		log, err := scanCompletionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completion logs: %w", err)
	}

	return logs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCompletionLog(row rowScanner) (*models.CompletionLog, error) {
	log := &models.CompletionLog{}
	var provider, model sql.NullString

	err := row.Scan(
		&log.ID,
		&log.RequestID,
		&log.Username,
		&log.Status,
		&log.Selection,
		&provider,
		&model,
		&log.FellBack,
		&log.PromptLength,
		&log.HistoryLength,
		&log.ResponseLength,
		&log.LatencyMs,
		&log.ErrorKind,
		&log.ErrorMessage,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	log.Provider = provider.String
	log.Model = model.String
	return log, nil
}
