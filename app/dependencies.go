package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-relay/config"
	"github.com/upb/llm-relay/handlers"
	"github.com/upb/llm-relay/middleware"
	"github.com/upb/llm-relay/repositories"
	"github.com/upb/llm-relay/repositories/postgres"
	"github.com/upb/llm-relay/services"
	"github.com/upb/llm-relay/services/audit"
	"github.com/upb/llm-relay/services/completion"
	"github.com/upb/llm-relay/services/providers"
	"github.com/upb/llm-relay/services/providers/gemini"
	"github.com/upb/llm-relay/services/providers/openai"
	"github.com/upb/llm-relay/services/routing"
)

// auditStopTimeout bounds how long Close waits for queued completion logs
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB // nil when DATABASE_URL is not set

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	CompletionLogs repositories.CompletionLogRepository

	// Providers and routing
	ProviderRegistry *providers.Registry
	Router           *routing.Router

	// Services
	AuditService      *audit.AuditService
	AuthService       *services.AuthService
	CompletionService *completion.CompletionService

	// HTTP
	AuthMiddleware    *middleware.AuthMiddleware
	HealthHandler     *handlers.HealthHandler
	AuthHandler       *handlers.AuthHandler
	CompletionHandler *handlers.CompletionHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize PostgreSQL (optional)
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize provider registry and router
	if err := deps.initProviders(ctx, cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("ai_provider", cfg.Routing.Provider),
		zap.Bool("completion_log_enabled", deps.DB != nil))
	return deps, nil
}

// initDatabase opens the completion log store when one is configured
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if cfg.Database == nil {
		d.Logger.Info("DATABASE_URL not set, completion logs will not be persisted")
		d.CompletionLogs = repositories.NewNoopRepositories().CompletionLogs
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(ctx, *cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.CompletionLogs = factory.NewRepositories().CompletionLogs

	d.Logger.Info("repositories initialized")
	return nil
}

// initProviders registers the provider variants and builds the router
func (d *Dependencies) initProviders(ctx context.Context, cfg *config.Config) error {
	registry := providers.NewRegistry()

	// OpenAI is the baseline and is always registered. Without a key its
	// calls fail fast with a missing credential error.
	openAIProvider := openai.NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:  cfg.Providers.OpenAI.APIKey,
		BaseURL: cfg.Providers.OpenAI.BaseURL,
		Model:   cfg.Providers.OpenAI.Model,
		Timeout: cfg.Providers.OpenAI.Timeout,
	})
	if err := registry.Register(openAIProvider); err != nil {
		return fmt.Errorf("register openai: %w", err)
	}
	if !openAIProvider.HasCredential() {
		d.Logger.Warn("OPENAI_API_KEY not set, baseline provider calls will fail")
	}
	d.Logger.Info("registered provider",
		zap.String("provider", openAIProvider.Name()),
		zap.String("model", openAIProvider.Model()))

	if needsGemini(cfg) {
		geminiProvider := gemini.NewGeminiAdapter(ctx, providers.ProviderConfig{
			APIKey:  cfg.Providers.Gemini.APIKey,
			BaseURL: cfg.Providers.Gemini.BaseURL,
			Model:   cfg.Providers.Gemini.Model,
			Timeout: cfg.Providers.Gemini.Timeout,
		})
		if err := registry.Register(geminiProvider); err != nil {
			return fmt.Errorf("register gemini: %w", err)
		}
		d.Logger.Info("registered provider",
			zap.String("provider", geminiProvider.Name()),
			zap.String("model", geminiProvider.Model()),
			zap.Bool("credential", geminiProvider.HasCredential()))
	}

	policy, err := routing.NewPolicy(cfg.Routing.Provider, cfg.Routing.Fallback,
		cfg.Routing.AllowFallback, cfg.Routing.RegionBlock)
	if err != nil {
		return fmt.Errorf("invalid routing policy: %w", err)
	}

	router, err := routing.NewRouter(policy, registry, d.Logger.Named("router"))
	if err != nil {
		return err
	}

	d.ProviderRegistry = registry
	d.Router = router
	return nil
}

// needsGemini reports whether the preferred provider should be registered
func needsGemini(cfg *config.Config) bool {
	if cfg.Providers.Gemini.APIKey != "" {
		return true
	}
	switch cfg.Routing.Provider {
	case config.ProviderGemini, config.ProviderAuto:
		return true
	}
	return false
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	d.AuditService = audit.NewAuditService(d.CompletionLogs, d.Logger.Named("audit"), audit.DefaultConfig())
	if err := d.AuditService.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	authService, err := services.NewAuthService(cfg.Auth, d.Logger)
	if err != nil {
		_ = d.AuditService.Stop(auditStopTimeout)
		return fmt.Errorf("failed to create auth service: %w", err)
	}
	d.AuthService = authService

	defaultModels := map[providers.Kind]string{
		providers.KindOpenAI: cfg.Providers.OpenAI.Model,
		providers.KindGemini: cfg.Providers.Gemini.Model,
	}
	d.CompletionService = completion.NewCompletionService(d.Router, d.AuditService, defaultModels, d.Logger)

	d.Logger.Info("services initialized", zap.Strings("users", authService.Usernames()))
	return nil
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	d.AuthMiddleware = middleware.NewAuthMiddleware(
		&authTokenValidatorAdapter{auth: d.AuthService},
		cfg.Auth.CookieName,
		d.Logger,
	)

	// A nil *postgres.DB must not become a non-nil interface value
	var db handlers.HealthChecker
	if d.DB != nil {
		db = d.DB
	}
	d.HealthHandler = handlers.NewHealthHandler(db, d.ProviderRegistry, d.Logger)
	d.AuthHandler = handlers.NewAuthHandler(d.AuthService, handlers.CookieConfig{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.CookieSecure,
	}, d.Logger)
	d.CompletionHandler = handlers.NewCompletionHandler(d.CompletionService, d.Logger)
}

// authTokenValidatorAdapter adapts services.AuthService to middleware.TokenValidator
type authTokenValidatorAdapter struct {
	auth *services.AuthService
}

func (a *authTokenValidatorAdapter) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	parsed, err := a.auth.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{
		Sub: parsed.Username,
		Exp: parsed.ExpiresAt.Unix(),
		Iat: parsed.IssuedAt.Unix(),
	}, nil
}

func (d *Dependencies) closeDatabase() {
	if d.RepoFactory == nil {
		return
	}
	if err := d.RepoFactory.Close(); err != nil {
		d.Logger.Warn("failed to close database", zap.Error(err))
	}
}

// Close gracefully shuts down all dependencies.
// Queued completion logs are flushed before the database is closed.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.AuditService != nil {
		timeout := auditStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.AuditService.Stop(timeout); err != nil && !errors.Is(err, audit.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
