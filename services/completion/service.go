// Package completion runs a completion request through the provider router
// and records the outcome.
package completion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/llm-relay/models"
	"github.com/upb/llm-relay/services"
	"github.com/upb/llm-relay/services/providers"
	"github.com/upb/llm-relay/services/routing"
)

// Dispatcher routes a request to a provider
type Dispatcher interface {
	Dispatch(ctx context.Context, req routing.Request) (*routing.Outcome, error)
	Policy() routing.Policy
}

// LogSink accepts completion logs for asynchronous persistence
type LogSink interface {
	Log(entry *models.CompletionLog) error
}

// CompletionRequest is a completion request from an authenticated user
type CompletionRequest struct {
	RequestID string
	Username  string
	Prompt    string
	History   []providers.Message
	Model     string
	ForceJSON bool
}

// CompletionResult is returned to the client
type CompletionResult struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	FellBack  bool   `json:"fell_back"`
	LatencyMs int    `json:"latency_ms"`
}

// CompletionService orchestrates routing and completion logging
type CompletionService struct {
	router Dispatcher
	sink   LogSink
	models map[providers.Kind]string
	now    func() time.Time
	logger *zap.Logger
}

// NewCompletionService creates a completion service. defaultModels maps each
// provider to the model it uses when the request does not override it; sink
// may be nil.
func NewCompletionService(router Dispatcher, sink LogSink, defaultModels map[providers.Kind]string, logger *zap.Logger) *CompletionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionService{
		router: router,
		sink:   sink,
		models: defaultModels,
		now:    time.Now,
		logger: logger,
	}
}

// ProcessCompletion routes the request and returns the response text
func (s *CompletionService) ProcessCompletion(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	selection := string(s.router.Policy().Primary)

	entry := models.NewCompletionLog(req.RequestID, req.Username, selection)
	entry.PromptLength = len(req.Prompt)
	entry.HistoryLength = len(req.History)

	logger := s.logger.With(
		zap.String("request_id", req.RequestID),
		zap.String("username", req.Username),
		zap.String("selection", selection),
	)

	start := s.now()
	outcome, err := s.router.Dispatch(ctx, routing.Request{
		Prompt:    req.Prompt,
		History:   req.History,
		Model:     req.Model,
		ForceJSON: req.ForceJSON,
	})
	latency := s.now().Sub(start)

	if err != nil {
		kind := routing.KindOf(err)
		entry.MarkAsFailed(kind.String(), err.Error(), latency)
		s.record(logger, entry)

		logger.Error("completion failed",
			zap.String("failure", kind.String()),
			zap.Duration("latency", latency),
			zap.Error(err))
		return nil, mapRoutingError(err)
	}

	model := s.resolveModel(outcome.Provider, req.Model)
	entry.Model = model
	entry.MarkAsCompleted(string(outcome.Provider), outcome.FellBack, len(outcome.Text), latency)
	s.record(logger, entry)

	logger.Info("completion served",
		zap.String("provider", string(outcome.Provider)),
		zap.String("model", model),
		zap.Bool("fell_back", outcome.FellBack),
		zap.Duration("latency", latency))

	return &CompletionResult{
		ID:        req.RequestID,
		Text:      outcome.Text,
		Provider:  string(outcome.Provider),
		Model:     model,
		FellBack:  outcome.FellBack,
		LatencyMs: entry.LatencyMs,
	}, nil
}

// resolveModel mirrors the adapters: only OpenAI honours the request override
func (s *CompletionService) resolveModel(kind providers.Kind, override string) string {
	if kind == providers.KindOpenAI && override != "" {
		return override
	}
	return s.models[kind]
}

func (s *CompletionService) record(logger *zap.Logger, entry *models.CompletionLog) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Log(entry); err != nil {
		logger.Warn("completion log dropped", zap.Error(err))
	}
}

func mapRoutingError(err error) error {
	if routing.IsNoProviderAvailable(err) {
		return services.WrapUnavailable(services.ErrNoProviderAvailable.Message, err)
	}
	domainErr := services.NewDomainError(services.ErrorTypeExternal, services.ErrProviderError.Message, err)
	if code := providers.ErrorCode(err); code != "" {
		domainErr.WithDetail("code", code)
	}
	return domainErr
}
