// Package gemini adapts Google Gemini to the unified provider interface.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/upb/llm-relay/services/providers"
)

const defaultModel = "gemini-1.5-flash"

// contentGenerator is the subset of *genai.Models the adapter calls
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAdapter implements the Provider interface for Google Gemini
type GeminiAdapter struct {
	config    providers.ProviderConfig
	generator contentGenerator
	initErr   error
}

// NewGeminiAdapter creates a new Gemini adapter. A client is only built when an
// API key is configured; client construction errors surface on Complete.
func NewGeminiAdapter(ctx context.Context, config providers.ProviderConfig) *GeminiAdapter {
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = providers.DefaultTimeout
	}

	adapter := &GeminiAdapter{config: config}
	if config.APIKey == "" {
		return adapter
	}

	timeout := config.Timeout
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: config.BaseURL,
			Timeout: &timeout,
		},
	})
	if err != nil {
		adapter.initErr = err
		return adapter
	}
	adapter.generator = client.Models

	return adapter
}

// newWithGenerator builds an adapter around an existing generator
func newWithGenerator(config providers.ProviderConfig, generator contentGenerator) *GeminiAdapter {
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = providers.DefaultTimeout
	}
	return &GeminiAdapter{config: config, generator: generator}
}

// Name returns the provider name
func (a *GeminiAdapter) Name() string {
	return "gemini"
}

// Kind returns the provider kind
func (a *GeminiAdapter) Kind() providers.Kind {
	return providers.KindGemini
}

// HasCredential reports whether GEMINI_API_KEY is configured
func (a *GeminiAdapter) HasCredential() bool {
	return a.config.APIKey != ""
}

// Model returns the configured model
func (a *GeminiAdapter) Model() string {
	return a.config.Model
}

// Complete sends the flattened conversation as a single text prompt
func (a *GeminiAdapter) Complete(ctx context.Context, req *providers.CompletionRequest) (string, error) {
	if !a.HasCredential() {
		return "", providers.NewProviderError(a.Name(), providers.CodeMissingCredential, "GEMINI_API_KEY is not set", 0, false, nil)
	}
	if a.initErr != nil {
		return "", providers.NewProviderError(a.Name(), providers.CodeClientInit, "failed to create client", 0, false, a.initErr)
	}

	model := req.Model
	if model == "" {
		model = a.config.Model
	}

	contents := []*genai.Content{genai.NewContentFromText(BuildPrompt(req.Prompt, req.History), genai.RoleUser)}

	var genConfig *genai.GenerateContentConfig
	if req.ForceJSON {
		genConfig = &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	}

	text, err := providers.Offload(ctx, a.config.Timeout, func(ctx context.Context) (string, error) {
		resp, err := a.generator.GenerateContent(ctx, model, contents, genConfig)
		if err != nil {
			return "", err
		}
		if resp == nil {
			return "", nil
		}
		return resp.Text(), nil
	})
	if err != nil {
		return "", a.handleError(err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", providers.NewProviderError(a.Name(), providers.CodeEmptyResponse, "empty response from Gemini", 0, false, nil)
	}

	return text, nil
}

// BuildPrompt flattens chat history into a single role-tagged text prompt
func BuildPrompt(prompt string, history []providers.Message) string {
	parts := make([]string, 0, len(history)+1)
	for _, msg := range history {
		switch msg.Role {
		case providers.RoleSystem:
			parts = append(parts, fmt.Sprintf("[System]\n%s\n", msg.Content))
		case providers.RoleAssistant:
			parts = append(parts, fmt.Sprintf("[Assistant]\n%s\n", msg.Content))
		default:
			parts = append(parts, fmt.Sprintf("[User]\n%s\n", msg.Content))
		}
	}
	parts = append(parts, "[Current Request]\n"+prompt)
	return strings.Join(parts, "\n\n")
}

// handleError converts genai errors into provider errors
func (a *GeminiAdapter) handleError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		retryable := apiErr.Code >= 500 || apiErr.Code == http.StatusTooManyRequests
		return providers.NewProviderError(a.Name(), providers.CodeHTTPError, apiErr.Message, apiErr.Code, retryable, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return providers.NewProviderError(a.Name(), providers.CodeTimeout, "request timed out", 0, true, err)
	}

	return providers.NewProviderError(a.Name(), providers.CodeRequestFailed, "request failed", 0, true, err)
}

var _ providers.Provider = (*GeminiAdapter)(nil)
