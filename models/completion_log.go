package models

import (
	"time"

	"github.com/google/uuid"
)

// CompletionStatus represents the outcome of a completion request
type CompletionStatus string

const (
	CompletionStatusCompleted CompletionStatus = "completed"
	CompletionStatusFailed    CompletionStatus = "failed"
)

// CompletionLog records one routed completion request.
// Prompt and response text are not stored, only their lengths.
type CompletionLog struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	RequestID string           `json:"request_id" db:"request_id"`
	Username  string           `json:"username" db:"username"`
	Status    CompletionStatus `json:"status" db:"status"`

	// Routing
	Selection string `json:"selection" db:"selection"` // openai, gemini, auto
	Provider  string `json:"provider" db:"provider"`   // provider that answered, empty on failure
	Model     string `json:"model" db:"model"`
	FellBack  bool   `json:"fell_back" db:"fell_back"`

	// Metrics
	PromptLength   int `json:"prompt_length" db:"prompt_length"`
	HistoryLength  int `json:"history_length" db:"history_length"`
	ResponseLength int `json:"response_length" db:"response_length"`
	LatencyMs      int `json:"latency_ms" db:"latency_ms"`

	// Error handling
	ErrorKind    *string `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the CompletionLog model
func (CompletionLog) TableName() string {
	return "completion_logs"
}

// NewCompletionLog creates a new CompletionLog instance
func NewCompletionLog(requestID, username, selection string) *CompletionLog {
	return &CompletionLog{
		ID:        uuid.New(),
		RequestID: requestID,
		Username:  username,
		Selection: selection,
		CreatedAt: time.Now().UTC(),
	}
}

// MarkAsCompleted records a successful response
func (cl *CompletionLog) MarkAsCompleted(provider string, fellBack bool, responseLength int, latency time.Duration) {
	cl.Status = CompletionStatusCompleted
	cl.Provider = provider
	cl.FellBack = fellBack
	cl.ResponseLength = responseLength
	cl.LatencyMs = int(latency.Milliseconds())
}

// MarkAsFailed records a terminal failure
func (cl *CompletionLog) MarkAsFailed(errorKind, errorMessage string, latency time.Duration) {
	cl.Status = CompletionStatusFailed
	cl.ErrorKind = &errorKind
	cl.ErrorMessage = &errorMessage
	cl.LatencyMs = int(latency.Milliseconds())
}

// IsSuccessful returns true if the completion produced a response
func (cl *CompletionLog) IsSuccessful() bool {
	return cl.Status == CompletionStatusCompleted
}
