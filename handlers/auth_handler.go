package handlers

import (
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-relay/internal/observability"
	"github.com/upb/llm-relay/middleware"
	"github.com/upb/llm-relay/models"
	"github.com/upb/llm-relay/utils"
)

// Authenticator checks credentials and issues tokens
type Authenticator interface {
	Authenticate(username, password string) (*models.User, error)
	IssueToken(username string) (string, time.Time, error)
}

// CookieConfig controls the auth cookie set on login
type CookieConfig struct {
	Name   string
	Secure bool
}

// LoginRequest is the body of POST /api/login
type LoginRequest struct {
	Username string `json:"username" validate:"notblank,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username"`
}

// CurrentUserResponse is the response body for GET /api/me
type CurrentUserResponse struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthHandler handles login and logout
type AuthHandler struct {
	auth   Authenticator
	cookie CookieConfig
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth Authenticator, cookie CookieConfig, logger *zap.Logger) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = middleware.DefaultCookieName
	}
	return &AuthHandler{
		auth:   auth,
		cookie: cookie,
		logger: logger,
	}
}

// HandleLogin handles POST /api/login. Credentials may be sent as a form or as JSON.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context(), h.logger)

	req, err := h.parseLogin(w, r)
	if err != nil {
		logger.Warn("failed to parse login request", zap.Error(err))
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	user, err := h.auth.Authenticate(req.Username, req.Password)
	if err != nil {
		logger.Warn("login failed", zap.String("username", req.Username))
		HandleServiceError(w, err, h.logger)
		return
	}

	token, expiresAt, err := h.auth.IssueToken(user.Username)
	if err != nil {
		logger.Error("failed to issue token", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to issue token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	logger.Info("user logged in", zap.String("username", user.Username))

	_ = utils.WriteOK(w, LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		Username:    user.Username,
	})
}

// HandleLogout handles POST /api/logout by expiring the auth cookie
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{Message: "logged out"})
}

// HandleMe handles GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}
	_ = utils.WriteOK(w, CurrentUserResponse{
		Username:  claims.Sub,
		ExpiresAt: time.Unix(claims.Exp, 0).UTC(),
	})
}

func (h *AuthHandler) parseLogin(w http.ResponseWriter, r *http.Request) (*LoginRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case mediaType == "application/x-www-form-urlencoded", strings.HasPrefix(mediaType, "multipart/"):
		r.Body = http.MaxBytesReader(w, r.Body, utils.MaxBodyBytes)
		if err := r.ParseMultipartForm(utils.MaxBodyBytes); err != nil && err != http.ErrNotMultipart {
			return nil, err
		}
		return &LoginRequest{
			Username: strings.TrimSpace(r.PostFormValue("username")),
			Password: r.PostFormValue("password"),
		}, nil

	default:
		var req LoginRequest
		if err := utils.DecodeJSON(w, r, &req); err != nil {
			return nil, err
		}
		req.Username = strings.TrimSpace(req.Username)
		return &req, nil
	}
}
