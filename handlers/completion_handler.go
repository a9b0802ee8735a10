package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-relay/middleware"
	"github.com/upb/llm-relay/services/completion"
	"github.com/upb/llm-relay/services/providers"
	"github.com/upb/llm-relay/utils"
)

// CompletionRequest is the body of POST /api/v1/completions
type CompletionRequest struct {
	Prompt    string        `json:"prompt" validate:"notblank,max=32000"`
	History   []ChatMessage `json:"history,omitempty" validate:"max=100,dive"`
	Model     string        `json:"model,omitempty" validate:"max=100"`
	ForceJSON bool          `json:"force_json,omitempty"`
}

// ChatMessage is one prior conversation turn
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"max=32000"`
}

// CompletionService defines the interface for completion operations
type CompletionService interface {
	ProcessCompletion(ctx context.Context, req completion.CompletionRequest) (*completion.CompletionResult, error)
}

// CompletionHandler handles completion HTTP requests
type CompletionHandler struct {
	service CompletionService
	logger  *zap.Logger
}

// NewCompletionHandler creates a new CompletionHandler
func NewCompletionHandler(service CompletionService, logger *zap.Logger) *CompletionHandler {
	return &CompletionHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCompletion handles POST /api/v1/completions
func (h *CompletionHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	username := middleware.GetUsernameFromContext(ctx)
	if username == "" {
		h.logger.Error("missing claims in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CompletionRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.service.ProcessCompletion(ctx, completion.CompletionRequest{
		RequestID: requestID,
		Username:  username,
		Prompt:    req.Prompt,
		History:   toMessages(req.History),
		Model:     req.Model,
		ForceJSON: req.ForceJSON,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write completion response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

func toMessages(history []ChatMessage) []providers.Message {
	if len(history) == 0 {
		return nil
	}
	out := make([]providers.Message, len(history))
	for i, m := range history {
		out[i] = providers.Message{Role: providers.Role(m.Role), Content: m.Content}
	}
	return out
}
