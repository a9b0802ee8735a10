package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/upb/llm-relay/config"
	"github.com/upb/llm-relay/models"
)

// Default account created when AUTH_USERS is empty
const (
	DefaultUsername = "admin"
	DefaultPassword = "admin123"
)

// TokenClaims is the JWT payload issued by the AuthService
type TokenClaims struct {
	jwt.RegisteredClaims
}

// ParsedClaims represents validated token claims
type ParsedClaims struct {
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuthService authenticates configured users and issues signed tokens
type AuthService struct {
	users  map[string]*models.User
	secret []byte
	method jwt.SigningMethod
	expiry time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewAuthService builds the user table from cfg.Users and prepares the signer
func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) (*AuthService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}

	method := jwt.GetSigningMethod(cfg.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	creds, err := ParseUsers(cfg.Users)
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		logger.Warn("AUTH_USERS not set, using default account",
			zap.String("username", DefaultUsername))
		creds = map[string]string{DefaultUsername: DefaultPassword}
	}

	users := make(map[string]*models.User, len(creds))
	for username, password := range creds {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %w", username, err)
		}
		users[username] = models.NewUser(username, string(hash))
	}

	expiry := cfg.AccessTokenExpiry
	if expiry <= 0 {
		expiry = 600 * time.Minute
	}

	logger.Info("auth service initialized", zap.Int("users", len(users)))

	return &AuthService{
		users:  users,
		secret: []byte(cfg.SecretKey),
		method: method,
		expiry: expiry,
		now:    time.Now,
		logger: logger,
	}, nil
}

// ParseUsers parses "user1:pass1,user2:pass2". Blank entries are skipped.
func ParseUsers(raw string) (map[string]string, error) {
	users := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		username, password, ok := strings.Cut(entry, ":")
		username = strings.TrimSpace(username)
		if !ok || username == "" || password == "" {
			return nil, fmt.Errorf("invalid AUTH_USERS entry %q: expected username:password", entry)
		}
		users[username] = password
	}
	return users, nil
}

// Usernames returns the configured usernames in sorted order
func (s *AuthService) Usernames() []string {
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Authenticate checks a username/password pair
func (s *AuthService) Authenticate(username, password string) (*models.User, error) {
	user, ok := s.users[username]
	if !ok || !user.IsActive() {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken signs a token for username that expires after the configured expiry
func (s *AuthService) IssueToken(username string) (string, time.Time, error) {
	return s.IssueTokenWithExpiry(username, s.expiry)
}

// IssueTokenWithExpiry signs a token for username with an explicit lifetime.
// The username is not checked against the user table.
func (s *AuthService) IssueTokenWithExpiry(username string, expiry time.Duration) (string, time.Time, error) {
	return SignToken(s.method, s.secret, username, s.now(), expiry)
}

// SignToken creates a signed token with sub and exp claims
func SignToken(method jwt.SigningMethod, secret []byte, username string, now time.Time, expiry time.Duration) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, fmt.Errorf("username is required")
	}
	expiresAt := now.Add(expiry)
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature, algorithm, expiry and subject
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*ParsedClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, NewDomainError(ErrorTypeUnauthorized, ErrInvalidToken.Message, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	user, ok := s.users[claims.Subject]
	if !ok || !user.IsActive() {
		s.logger.Debug("token subject is not a known user", zap.String("sub", claims.Subject))
		return nil, ErrInvalidToken
	}

	parsed := &ParsedClaims{Username: claims.Subject}
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}
	return parsed, nil
}
