package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/upb/llm-relay/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-3.5-turbo"
)

// OpenAIAdapter implements the Provider interface for OpenAI-compatible chat completions
type OpenAIAdapter struct {
	config providers.ProviderConfig
	client openaisdk.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter.
// The SDK's own retries are disabled; a single Complete call makes at most one request.
func NewOpenAIAdapter(config providers.ProviderConfig, opts ...option.RequestOption) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = providers.DefaultTimeout
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	}
	clientOpts = append(clientOpts, opts...)

	return &OpenAIAdapter{
		config: config,
		client: openaisdk.NewClient(clientOpts...),
	}
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Kind returns the provider kind
func (a *OpenAIAdapter) Kind() providers.Kind {
	return providers.KindOpenAI
}

// HasCredential reports whether an API key is configured
func (a *OpenAIAdapter) HasCredential() bool {
	return a.config.APIKey != ""
}

// Model returns the configured default model
func (a *OpenAIAdapter) Model() string {
	return a.config.Model
}

// Complete performs a single chat completion request
func (a *OpenAIAdapter) Complete(ctx context.Context, req *providers.CompletionRequest) (string, error) {
	if !a.HasCredential() {
		return "", providers.NewProviderError(a.Name(), providers.CodeMissingCredential, "OPENAI_API_KEY is not set", 0, false, nil)
	}

	params := a.buildParams(req)

	text, err := providers.Offload(ctx, a.config.Timeout, func(ctx context.Context) (string, error) {
		completion, err := a.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		if len(completion.Choices) == 0 {
			return "", providers.NewProviderError(a.Name(), providers.CodeEmptyResponse, "response contained no choices", 0, false, nil)
		}
		return completion.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", a.handleError(err)
	}

	return strings.TrimSpace(text), nil
}

// buildParams converts the unified request to OpenAI chat completion parameters
func (a *OpenAIAdapter) buildParams(req *providers.CompletionRequest) openaisdk.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = a.config.Model
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    model,
		Messages: BuildMessages(req.History, req.Prompt),
	}

	if req.ForceJSON {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	return params
}

// BuildMessages maps history turns to chat messages and appends the prompt as the final user turn
func BuildMessages(history []providers.Message, prompt string) []openaisdk.ChatCompletionMessageParamUnion {
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(history)+1)
	for _, msg := range history {
		switch msg.Role {
		case providers.RoleSystem:
			messages = append(messages, openaisdk.SystemMessage(msg.Content))
		case providers.RoleAssistant:
			messages = append(messages, openaisdk.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openaisdk.UserMessage(msg.Content))
		}
	}
	return append(messages, openaisdk.UserMessage(prompt))
}

// handleError converts SDK errors into provider errors
func (a *OpenAIAdapter) handleError(err error) error {
	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		return provErr
	}

	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		retryable := apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
		message := apiErr.Message
		if message == "" {
			message = http.StatusText(apiErr.StatusCode)
		}
		return providers.NewProviderError(a.Name(), providers.CodeHTTPError, message, apiErr.StatusCode, retryable, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return providers.NewProviderError(a.Name(), providers.CodeTimeout, "request timed out", 0, true, err)
	}

	return providers.NewProviderError(a.Name(), providers.CodeRequestFailed, "request failed", 0, true, err)
}

var _ providers.Provider = (*OpenAIAdapter)(nil)
