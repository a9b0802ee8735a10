// Package audit persists completion logs off the request path.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-relay/models"
	"github.com/upb/llm-relay/repositories"
)

var (
	ErrNotStarted = errors.New("audit service not started")
	ErrStopped    = errors.New("audit service stopped")
	ErrBufferFull = errors.New("audit buffer full")
)

// AuditService writes completion logs asynchronously through a worker pool
type AuditService struct {
	repo         repositories.CompletionLogRepository
	logger       *zap.Logger
	entries      chan *models.CompletionLog
	workerCount  int
	bufferSize   int
	batchSize    int
	writeTimeout time.Duration
	wg           sync.WaitGroup
	mu           sync.RWMutex
	started      bool
	stopped      bool
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize   int           // Size of the entry buffer channel
	WorkerCount  int           // Number of concurrent workers
	BatchSize    int           // Max entries written per transaction
	WriteTimeout time.Duration // Per-batch database timeout
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		BatchSize:    20,
		WriteTimeout: 5 * time.Second,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repositories.CompletionLogRepository, logger *zap.Logger, config Config) *AuditService {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuditService{
		repo:         repo,
		logger:       logger,
		entries:      make(chan *models.CompletionLog, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		batchSize:    config.BatchSize,
		writeTimeout: config.WriteTimeout,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting entries and waits for queued ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	pending := len(s.entries)
	close(s.entries)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_entries", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Log queues an entry without blocking. A full buffer drops the entry.
func (s *AuditService) Log(entry *models.CompletionLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.acceptingLocked(); err != nil {
		return err
	}

	select {
	case s.entries <- entry:
		return nil
	default:
		s.logger.Warn("audit buffer full, dropping completion log",
			zap.String("request_id", entry.RequestID),
			zap.String("status", string(entry.Status)))
		return ErrBufferFull
	}
}

// LogBlocking waits until the entry is queued or ctx is done
func (s *AuditService) LogBlocking(ctx context.Context, entry *models.CompletionLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.acceptingLocked(); err != nil {
		return err
	}

	select {
	case s.entries <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AuditService) acceptingLocked() error {
	if !s.started {
		return ErrNotStarted
	}
	if s.stopped {
		return ErrStopped
	}
	return nil
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	batch := make([]*models.CompletionLog, 0, s.batchSize)
	for entry := range s.entries {
		batch = append(batch, entry)
		batch = s.fill(batch)

		if err := s.write(batch); err != nil {
			s.logger.Error("failed to write completion logs",
				zap.Int("worker_id", id),
				zap.Int("count", len(batch)),
				zap.Error(err))
		}
		batch = batch[:0]
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// fill drains already queued entries into batch up to the batch size
func (s *AuditService) fill(batch []*models.CompletionLog) []*models.CompletionLog {
	for len(batch) < s.batchSize {
		select {
		case entry, ok := <-s.entries:
			if !ok {
				return batch
			}
			batch = append(batch, entry)
		default:
			return batch
		}
	}
	return batch
}

func (s *AuditService) write(batch []*models.CompletionLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if len(batch) == 1 {
		return s.repo.Insert(ctx, batch[0])
	}
	return s.repo.InsertBatch(ctx, batch)
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:     s.bufferSize,
		PendingEntries: len(s.entries),
		WorkerCount:    s.workerCount,
		Started:        s.started,
		Stopped:        s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize     int
	PendingEntries int
	WorkerCount    int
	Started        bool
	Stopped        bool
}
