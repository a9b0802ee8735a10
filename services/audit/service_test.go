package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/upb/llm-relay/models"
)

// MockCompletionLogRepository is a mock implementation of CompletionLogRepository
type MockCompletionLogRepository struct {
	mock.Mock
	mu      sync.Mutex
	written []*models.CompletionLog
}

func (m *MockCompletionLogRepository) Insert(ctx context.Context, log *models.CompletionLog) error {
	args := m.Called(ctx, log)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.written = append(m.written, log)
	m.mu.Unlock()
	return nil
}

func (m *MockCompletionLogRepository) InsertBatch(ctx context.Context, logs []*models.CompletionLog) error {
	args := m.Called(ctx, logs)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.written = append(m.written, logs...)
	m.mu.Unlock()
	return nil
}

func (m *MockCompletionLogRepository) GetByRequestID(ctx context.Context, requestID string) (*models.CompletionLog, error) {
	args := m.Called(ctx, requestID)
	if log := args.Get(0); log != nil {
		return log.(*models.CompletionLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCompletionLogRepository) ListByUsername(ctx context.Context, username string, limit, offset int) ([]*models.CompletionLog, error) {
	args := m.Called(ctx, username, limit, offset)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.CompletionLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCompletionLogRepository) Written() []*models.CompletionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.CompletionLog, len(m.written))
	copy(out, m.written)
	return out
}

func newEntry(i int) *models.CompletionLog {
	return models.NewCompletionLog(fmt.Sprintf("req-%d", i), "alice", "auto")
}

func TestAuditService_StartStop(t *testing.T) {
	mockRepo := new(MockCompletionLogRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.True(t, service.GetStats().Stopped)

	// second stop is a no-op
	assert.NoError(t, service.Stop(time.Second))
}

func TestAuditService_DefaultsApplied(t *testing.T) {
	service := NewAuditService(new(MockCompletionLogRepository), nil, Config{})
	stats := service.GetStats()

	assert.Equal(t, DefaultConfig().BufferSize, stats.BufferSize)
	assert.Equal(t, DefaultConfig().WorkerCount, stats.WorkerCount)
}

func TestAuditService_NotStarted(t *testing.T) {
	service := NewAuditService(new(MockCompletionLogRepository), zap.NewNop(), DefaultConfig())

	assert.ErrorIs(t, service.Log(newEntry(1)), ErrNotStarted)
	assert.ErrorIs(t, service.LogBlocking(context.Background(), newEntry(1)), ErrNotStarted)
	assert.ErrorIs(t, service.Stop(time.Second), ErrNotStarted)
}

func TestAuditService_LogAfterStop(t *testing.T) {
	service := NewAuditService(new(MockCompletionLogRepository), zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())
	require.NoError(t, service.Stop(time.Second))

	assert.ErrorIs(t, service.Log(newEntry(1)), ErrStopped)
}

func TestAuditService_Log(t *testing.T) {
	mockRepo := new(MockCompletionLogRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("InsertBatch", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())

	entry := newEntry(1)
	entry.MarkAsCompleted("openai", false, 10, 5*time.Millisecond)
	require.NoError(t, service.Log(entry))

	// Stop drains the queue
	require.NoError(t, service.Stop(5*time.Second))

	written := mockRepo.Written()
	require.Len(t, written, 1)
	assert.Equal(t, "req-1", written[0].RequestID)
	assert.Equal(t, models.CompletionStatusCompleted, written[0].Status)
}

func TestAuditService_LogBlocking(t *testing.T) {
	mockRepo := new(MockCompletionLogRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("InsertBatch", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())

	require.NoError(t, service.LogBlocking(context.Background(), newEntry(1)))
	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, mockRepo.Written(), 1)
}

func TestAuditService_ConcurrentLogging(t *testing.T) {
	mockRepo := new(MockCompletionLogRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("InsertBatch", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1000, WorkerCount: 4, BatchSize: 8})
	require.NoError(t, service.Start())

	goroutineCount := 10
	entriesPerGoroutine := 20
	var wg sync.WaitGroup

	for i := 0; i < goroutineCount; i++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < entriesPerGoroutine; j++ {
				assert.NoError(t, service.Log(newEntry(g*100+j)))
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.Written(), goroutineCount*entriesPerGoroutine)
}

func TestAuditService_BufferFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	mockRepo := new(MockCompletionLogRepository)

	entered := make(chan struct{}, 10)
	release := make(chan struct{})
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		entered <- struct{}{}
		<-release
	})

	service := NewAuditService(mockRepo, zap.New(core), Config{BufferSize: 2, WorkerCount: 1, BatchSize: 1})
	require.NoError(t, service.Start())

	// the single worker picks this up and blocks in Insert
	require.NoError(t, service.Log(newEntry(1)))
	<-entered

	require.NoError(t, service.Log(newEntry(2)))
	require.NoError(t, service.Log(newEntry(3)))
	assert.ErrorIs(t, service.Log(newEntry(4)), ErrBufferFull)
	assert.Equal(t, 1, logs.FilterMessage("audit buffer full, dropping completion log").Len())

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.Written(), 3)
}

func TestAuditService_WriteErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	mockRepo := new(MockCompletionLogRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down"))

	service := NewAuditService(mockRepo, zap.New(core), Config{BufferSize: 10, WorkerCount: 1, BatchSize: 1})
	require.NoError(t, service.Start())

	require.NoError(t, service.Log(newEntry(1)))
	require.NoError(t, service.Stop(5*time.Second))

	assert.Empty(t, mockRepo.Written())
	assert.Equal(t, 1, logs.FilterMessage("failed to write completion logs").Len())
}

func TestAuditService_BatchesQueuedEntries(t *testing.T) {
	mockRepo := new(MockCompletionLogRepository)
	mockRepo.On("InsertBatch", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1, BatchSize: 5})

	// queue before the worker starts so the first read finds a full buffer
	service.started = true
	for i := 0; i < 5; i++ {
		require.NoError(t, service.Log(newEntry(i)))
	}
	service.started = false
	require.NoError(t, service.Start())
	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, mockRepo.Written(), 5)
	mockRepo.AssertNumberOfCalls(t, "InsertBatch", 1)
	mockRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}
