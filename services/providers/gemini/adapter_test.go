package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/upb/llm-relay/services/providers"
)

type fakeGenerator struct {
	calls    int
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
	block    chan struct{}
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.contents = contents
	f.config = config
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Run("prompt only", func(t *testing.T) {
		assert.Equal(t, "[Current Request]\nhello", BuildPrompt("hello", nil))
	})

	t.Run("with history", func(t *testing.T) {
		history := []providers.Message{
			{Role: providers.RoleSystem, Content: "You are terse."},
			{Role: providers.RoleUser, Content: "Hi"},
			{Role: providers.RoleAssistant, Content: "Hello"},
			{Role: "", Content: "No role"},
		}

		want := "[System]\nYou are terse.\n" +
			"\n\n[User]\nHi\n" +
			"\n\n[Assistant]\nHello\n" +
			"\n\n[User]\nNo role\n" +
			"\n\n[Current Request]\nWhat now?"

		assert.Equal(t, want, BuildPrompt("What now?", history))
	})

	t.Run("empty prompt", func(t *testing.T) {
		assert.Equal(t, "[Current Request]\n", BuildPrompt("", nil))
	})
}

func TestGeminiAdapter_Complete(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("  answer \n")}
	adapter := newWithGenerator(providers.ProviderConfig{APIKey: "g-key", Model: "gemini-2.0-flash"}, gen)

	text, err := adapter.Complete(context.Background(), &providers.CompletionRequest{
		Prompt:  "question",
		History: []providers.Message{{Role: providers.RoleUser, Content: "earlier"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "answer", text)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "gemini-2.0-flash", gen.model)
	assert.Nil(t, gen.config)
	require.Len(t, gen.contents, 1)
	require.Len(t, gen.contents[0].Parts, 1)
	assert.Equal(t, "[User]\nearlier\n\n\n[Current Request]\nquestion", gen.contents[0].Parts[0].Text)
}

func TestGeminiAdapter_Complete_ForceJSON(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{"ok":true}`)}
	adapter := newWithGenerator(providers.ProviderConfig{APIKey: "g-key"}, gen)

	text, err := adapter.Complete(context.Background(), &providers.CompletionRequest{Prompt: "json please", ForceJSON: true})

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	require.NotNil(t, gen.config)
	assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
	assert.Equal(t, defaultModel, gen.model)
}

func TestGeminiAdapter_Complete_Errors(t *testing.T) {
	tests := []struct {
		name          string
		gen           *fakeGenerator
		wantCode      string
		wantStatus    int
		wantRetryable bool
	}{
		{
			name:     "whitespace-only response",
			gen:      &fakeGenerator{resp: textResponse("   \n")},
			wantCode: providers.CodeEmptyResponse,
		},
		{
			name:     "no candidates",
			gen:      &fakeGenerator{resp: &genai.GenerateContentResponse{}},
			wantCode: providers.CodeEmptyResponse,
		},
		{
			name:     "nil response",
			gen:      &fakeGenerator{},
			wantCode: providers.CodeEmptyResponse,
		},
		{
			name:          "api error",
			gen:           &fakeGenerator{err: genai.APIError{Code: http.StatusForbidden, Message: "location not supported", Status: "PERMISSION_DENIED"}},
			wantCode:      providers.CodeHTTPError,
			wantStatus:    http.StatusForbidden,
			wantRetryable: false,
		},
		{
			name:          "transport error",
			gen:           &fakeGenerator{err: errors.New("dial tcp: connection refused")},
			wantCode:      providers.CodeRequestFailed,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newWithGenerator(providers.ProviderConfig{APIKey: "g-key"}, tt.gen)

			_, err := adapter.Complete(context.Background(), &providers.CompletionRequest{Prompt: "hi"})

			var provErr *providers.ProviderError
			require.ErrorAs(t, err, &provErr)
			assert.Equal(t, tt.wantCode, provErr.Code)
			assert.Equal(t, tt.wantStatus, provErr.StatusCode)
			assert.Equal(t, tt.wantRetryable, provErr.Retryable)
			assert.Equal(t, 1, tt.gen.calls)
		})
	}
}

func TestGeminiAdapter_Complete_MissingKey(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("unused")}
	adapter := newWithGenerator(providers.ProviderConfig{}, gen)

	assert.False(t, adapter.HasCredential())

	_, err := adapter.Complete(context.Background(), &providers.CompletionRequest{Prompt: "hi"})
	assert.Equal(t, providers.CodeMissingCredential, providers.ErrorCode(err))
	assert.Equal(t, 0, gen.calls)
}

func TestGeminiAdapter_Complete_Timeout(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	defer close(gen.block)

	adapter := newWithGenerator(providers.ProviderConfig{APIKey: "g-key", Timeout: 20 * time.Millisecond}, gen)

	_, err := adapter.Complete(context.Background(), &providers.CompletionRequest{Prompt: "hi"})
	assert.Equal(t, providers.CodeTimeout, providers.ErrorCode(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewGeminiAdapter_WithoutKey(t *testing.T) {
	adapter := NewGeminiAdapter(context.Background(), providers.ProviderConfig{})

	assert.Equal(t, "gemini", adapter.Name())
	assert.Equal(t, providers.KindGemini, adapter.Kind())
	assert.Equal(t, defaultModel, adapter.Model())
	assert.False(t, adapter.HasCredential())
	assert.Nil(t, adapter.generator)
}

func TestNewGeminiAdapter_WithKey(t *testing.T) {
	adapter := NewGeminiAdapter(context.Background(), providers.ProviderConfig{
		APIKey:  "g-key",
		BaseURL: "http://127.0.0.1:1",
		Model:   "gemini-2.0-flash",
	})

	require.NoError(t, adapter.initErr)
	assert.NotNil(t, adapter.generator)
	assert.True(t, adapter.HasCredential())
	assert.Equal(t, "gemini-2.0-flash", adapter.Model())
}
