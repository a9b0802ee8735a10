package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies a provider variant
type Kind string

const (
	// KindOpenAI is the always-available baseline provider (ProviderA)
	KindOpenAI Kind = "openai"

	// KindGemini is the preferred provider that may be geo-restricted (ProviderB)
	KindGemini Kind = "gemini"
)

// ParseKind parses a provider name. The empty string is not a valid kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindOpenAI:
		return KindOpenAI, nil
	case KindGemini:
		return KindGemini, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// Provider represents a unified LLM completion capability
type Provider interface {
	// Name returns the provider name used in logs and responses
	Name() string

	// Kind returns the provider variant
	Kind() Kind

	// HasCredential reports whether the provider's required credential is configured
	HasCredential() bool

	// Complete sends the prompt with its history and returns the response text
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
}

// Role of a conversation turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message represents a single turn in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role Role `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// CompletionRequest is what every adapter receives
type CompletionRequest struct {
	// Prompt is the current request text
	Prompt string

	// History holds the prior turns, oldest first. May be empty.
	History []Message

	// Model overrides the adapter's configured model when set
	Model string

	// ForceJSON asks the provider to prefer structured JSON output
	ForceJSON bool
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Model used when the request does not override it
	Model string

	// Timeout bounds a single Complete call
	Timeout time.Duration
}

// DefaultTimeout bounds a provider call when no timeout is configured
const DefaultTimeout = 30 * time.Second

// Common error codes used in ProviderError
const (
	CodeMissingCredential = "MISSING_CREDENTIAL"
	CodeRequestFailed     = "REQUEST_FAILED"
	CodeHTTPError         = "HTTP_ERROR"
	CodeEmptyResponse     = "EMPTY_RESPONSE"
	CodeTimeout           = "TIMEOUT"
	CodeClientInit        = "CLIENT_INIT"
)

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// ErrorCode returns the provider error code carried by err, or "" if none
func ErrorCode(err error) string {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code
	}
	return ""
}
