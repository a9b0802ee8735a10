package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/llm-relay/config"
	"github.com/upb/llm-relay/repositories"
	"github.com/upb/llm-relay/services"
	"github.com/upb/llm-relay/services/providers"
	"github.com/upb/llm-relay/services/routing"
)

func TestNewDependencies(t *testing.T) {
	t.Run("without database", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)
		defer deps.Close(ctx)

		// Verify infrastructure
		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.RepoFactory)
		assert.IsType(t, repositories.NoopCompletionLogRepository{}, deps.CompletionLogs)

		// Only the baseline provider is registered for the openai selection
		require.NotNil(t, deps.ProviderRegistry)
		assert.Equal(t, []providers.Kind{providers.KindOpenAI}, deps.ProviderRegistry.Kinds())
		assert.Equal(t, routing.SelectOpenAI, deps.Router.Policy().Primary)

		// Services and handlers are wired
		assert.True(t, deps.AuditService.GetStats().Started)
		assert.Equal(t, []string{"alice"}, deps.AuthService.Usernames())
		assert.NotNil(t, deps.CompletionService)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.HealthHandler)
		assert.NotNil(t, deps.AuthHandler)
		assert.NotNil(t, deps.CompletionHandler)
	})

	t.Run("auto selection registers gemini without a key", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Routing.Provider = config.ProviderAuto

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.Equal(t, 2, deps.ProviderRegistry.Count())
		assert.Equal(t, map[string]bool{"openai": true, "gemini": false}, deps.ProviderRegistry.Summary())
	})

	t.Run("invalid routing policy", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Routing.Fallback = "anthropic"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize providers")
	})

	t.Run("missing secret key", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.SecretKey = ""

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize services")
	})

	t.Run("database connection failure", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping database dial in short mode")
		}
		cfg := testConfig(t)
		cfg.Database = &config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "relay",
			Password: "relay",
			Database: "relay_test",
			SSLMode:  "disable",
		}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestDependenciesClose(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, deps.Close(ctx))
	assert.True(t, deps.AuditService.GetStats().Stopped)

	// Second close is a no-op
	assert.NoError(t, deps.Close(ctx))
}

func TestAuthTokenValidatorAdapter(t *testing.T) {
	cfg := testConfig(t)
	auth, err := services.NewAuthService(cfg.Auth, zaptest.NewLogger(t))
	require.NoError(t, err)

	adapter := &authTokenValidatorAdapter{auth: auth}

	token, expiresAt, err := auth.IssueToken("alice")
	require.NoError(t, err)

	claims, err := adapter.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Sub)
	assert.Equal(t, expiresAt.Unix(), claims.Exp)
	assert.LessOrEqual(t, claims.Iat, claims.Exp)

	_, err = adapter.ValidateToken(context.Background(), "not-a-token")
	assert.Error(t, err)
}

func TestNeedsGemini(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		apiKey   string
		want     bool
	}{
		{name: "openai without key", provider: config.ProviderOpenAI, want: false},
		{name: "openai with gemini key", provider: config.ProviderOpenAI, apiKey: "k", want: true},
		{name: "gemini selection", provider: config.ProviderGemini, want: true},
		{name: "auto selection", provider: config.ProviderAuto, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Routing.Provider = tt.provider
			cfg.Providers.Gemini.APIKey = tt.apiKey
			assert.Equal(t, tt.want, needsGemini(cfg))
		})
	}
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:*"},
		},
		Auth: config.AuthConfig{
			SecretKey:         "test-secret",
			Algorithm:         "HS256",
			AccessTokenExpiry: time.Hour,
			Users:             "alice:wonderland",
			CookieName:        "token",
		},
		Routing: config.RoutingConfig{
			Provider:      config.ProviderOpenAI,
			Fallback:      config.ProviderOpenAI,
			AllowFallback: true,
			RegionBlock:   true,
		},
		Providers: config.ProvidersConfig{
			OpenAI: config.OpenAIConfig{
				APIKey:  "test-key",
				BaseURL: "http://127.0.0.1:1/v1",
				Model:   "gpt-3.5-turbo",
				Timeout: 5 * time.Second,
			},
			Gemini: config.GeminiConfig{
				Model:   "gemini-1.5-flash",
				Timeout: 5 * time.Second,
			},
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "json",
		},
	}
}
