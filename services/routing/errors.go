package routing

import (
	"errors"
	"fmt"

	"github.com/upb/llm-relay/services/providers"
)

var (
	// ErrAdapterUnavailable is returned when a provider was skipped or its failure was suppressed
	ErrAdapterUnavailable = errors.New("provider unavailable")

	// ErrAdapterFailure is returned when an unguarded provider call failed
	ErrAdapterFailure = errors.New("provider call failed")

	// ErrNoFallbackConfigured is returned when the preferred provider failed and no fallback may run
	ErrNoFallbackConfigured = errors.New("no fallback provider configured")

	// ErrEmptyResponse is returned when a provider answered with blank text
	ErrEmptyResponse = errors.New("provider returned an empty response")
)

// FailureKind classifies a routing failure
type FailureKind int

const (
	FailureUnavailable FailureKind = iota + 1
	FailureAdapter
	FailureNoFallback
	FailureEmptyResponse
)

// String returns the failure kind name used in logs and the completion log
func (k FailureKind) String() string {
	switch k {
	case FailureUnavailable:
		return "adapter_unavailable"
	case FailureAdapter:
		return "adapter_failure"
	case FailureNoFallback:
		return "no_fallback_configured"
	case FailureEmptyResponse:
		return "empty_response"
	default:
		return "unknown"
	}
}

func (k FailureKind) sentinel() error {
	switch k {
	case FailureUnavailable:
		return ErrAdapterUnavailable
	case FailureAdapter:
		return ErrAdapterFailure
	case FailureNoFallback:
		return ErrNoFallbackConfigured
	case FailureEmptyResponse:
		return ErrEmptyResponse
	default:
		return nil
	}
}

// Error is the terminal failure returned by the router
type Error struct {
	// Kind classifies the failure
	Kind FailureKind

	// Provider is the provider whose outcome ended the request, if any
	Provider providers.Kind

	// Err is the adapter error, when one was returned
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Kind.sentinel()
	if msg == nil {
		msg = errors.New("routing failed")
	}
	switch {
	case e.Provider != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Provider, msg, e.Err)
	case e.Provider != "":
		return fmt.Sprintf("%s: %s", e.Provider, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg.Error()
	}
}

// Unwrap returns the adapter error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the failure kind
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf returns the failure kind carried by err, or 0 if err did not come from the router
func KindOf(err error) FailureKind {
	var routeErr *Error
	if errors.As(err, &routeErr) {
		return routeErr.Kind
	}
	return 0
}

// IsNoProviderAvailable reports whether err means no provider could serve the request
func IsNoProviderAvailable(err error) bool {
	switch KindOf(err) {
	case FailureNoFallback, FailureUnavailable:
		return true
	default:
		return false
	}
}
