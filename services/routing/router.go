// Package routing decides which LLM provider answers a request and how to
// react when the preferred one fails.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/llm-relay/services/providers"
)

// Request is a single completion request as seen by the router
type Request struct {
	Prompt    string
	History   []providers.Message
	Model     string
	ForceJSON bool
}

// Outcome describes a successful routing
type Outcome struct {
	// Text is the trimmed response
	Text string

	// Provider is the provider that produced Text
	Provider providers.Kind

	// FellBack is true when the preferred provider was skipped or failed
	FellBack bool
}

// Router routes requests between the baseline provider (OpenAI) and the
// preferred provider (Gemini). It holds no mutable state and is safe for
// concurrent use.
type Router struct {
	policy    Policy
	baseline  providers.Provider
	preferred providers.Provider // nil when Gemini is not registered
	logger    *zap.Logger
}

// NewRouter creates a router. The OpenAI provider must be registered;
// a missing Gemini provider is treated as unavailable on every call.
func NewRouter(policy Policy, registry *providers.Registry, logger *zap.Logger) (*Router, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, errors.New("provider registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseline, err := registry.Get(providers.KindOpenAI)
	if err != nil {
		return nil, fmt.Errorf("baseline provider %s: %w", providers.KindOpenAI, err)
	}

	var preferred providers.Provider
	if registry.Has(providers.KindGemini) {
		preferred, _ = registry.Get(providers.KindGemini)
	}

	return &Router{
		policy:    policy,
		baseline:  baseline,
		preferred: preferred,
		logger:    logger,
	}, nil
}

// Policy returns the router's policy
func (r *Router) Policy() Policy {
	return r.policy
}

// Route returns the first successful response text, trimmed
func (r *Router) Route(ctx context.Context, req Request) (string, error) {
	out, err := r.Dispatch(ctx, req)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// Dispatch runs the routing policy and reports which provider answered
func (r *Router) Dispatch(ctx context.Context, req Request) (*Outcome, error) {
	switch r.policy.Primary {
	case SelectOpenAI:
		r.logger.Debug("routing to baseline provider", zap.String("selection", string(r.policy.Primary)))
		return r.callBaseline(ctx, req, false)

	case SelectGemini:
		if text, ok := r.tryPreferred(ctx, req); ok {
			return &Outcome{Text: text, Provider: providers.KindGemini}, nil
		}
		if !r.policy.fallbackEnabled() {
			r.logger.Debug("preferred provider unavailable and fallback disabled",
				zap.Bool("allow_fallback", r.policy.AllowFallback),
				zap.String("fallback", string(r.policy.Fallback)),
			)
			return nil, &Error{Kind: FailureNoFallback, Provider: providers.KindGemini}
		}
		r.logger.Debug("falling back to baseline provider", zap.String("selection", string(r.policy.Primary)))
		return r.callBaseline(ctx, req, true)

	case SelectAuto:
		if text, ok := r.tryPreferred(ctx, req); ok {
			return &Outcome{Text: text, Provider: providers.KindGemini}, nil
		}
		r.logger.Debug("falling back to baseline provider", zap.String("selection", string(r.policy.Primary)))
		return r.callBaseline(ctx, req, true)

	default:
		return nil, fmt.Errorf("unsupported provider selection %q", r.policy.Primary)
	}
}

// callBaseline is the unguarded call: failures propagate to the caller
func (r *Router) callBaseline(ctx context.Context, req Request, fellBack bool) (*Outcome, error) {
	text, err := r.baseline.Complete(ctx, &providers.CompletionRequest{
		Prompt:    req.Prompt,
		History:   req.History,
		Model:     req.Model,
		ForceJSON: req.ForceJSON,
	})
	if err != nil {
		kind := FailureAdapter
		if providers.ErrorCode(err) == providers.CodeEmptyResponse {
			kind = FailureEmptyResponse
		}
		return nil, &Error{Kind: kind, Provider: providers.KindOpenAI, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &Error{Kind: FailureEmptyResponse, Provider: providers.KindOpenAI}
	}

	return &Outcome{Text: text, Provider: providers.KindOpenAI, FellBack: fellBack}, nil
}

// tryPreferred is the guarded call. It never returns an error: any failure is
// logged once and reported as unavailable.
func (r *Router) tryPreferred(ctx context.Context, req Request) (string, bool) {
	if r.preferred == nil {
		r.logger.Debug("preferred provider not registered")
		return "", false
	}
	if r.policy.RegionBlock && !r.preferred.HasCredential() {
		r.logger.Debug("preferred provider skipped: region block without credential")
		return "", false
	}

	// The preferred provider always uses its configured model
	text, err := r.preferred.Complete(ctx, &providers.CompletionRequest{
		Prompt:    req.Prompt,
		History:   req.History,
		ForceJSON: req.ForceJSON,
	})
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			err = ErrEmptyResponse
		}
	}
	if err != nil {
		r.logger.Warn("preferred provider failed, treating as unavailable",
			zap.String("provider", r.preferred.Name()),
			zap.String("code", providers.ErrorCode(err)),
			zap.Error(err),
		)
		return "", false
	}

	return text, true
}
