package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-relay/middleware"
	"github.com/upb/llm-relay/models"
	"github.com/upb/llm-relay/services"
)

// MockAuthenticator is a mock implementation of Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(username, password string) (*models.User, error) {
	args := m.Called(username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAuthenticator) IssueToken(username string) (string, time.Time, error) {
	args := m.Called(username)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func findCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestHandleLogin(t *testing.T) {
	logger := zap.NewNop()
	expiresAt := time.Now().Add(10 * time.Hour).UTC().Truncate(time.Second)

	t.Run("json body", func(t *testing.T) {
		auth := new(MockAuthenticator)
		auth.On("Authenticate", "alice", "wonderland").Return(models.NewUser("alice", "hash"), nil)
		auth.On("IssueToken", "alice").Return("signed-token", expiresAt, nil)
		handler := NewAuthHandler(auth, CookieConfig{}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":" alice ","password":"wonderland"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.HandleLogin(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		cookie := findCookie(t, w, middleware.DefaultCookieName)
		assert.Equal(t, "signed-token", cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.False(t, cookie.Secure)
		assert.Equal(t, "/", cookie.Path)

		var response struct {
			Data LoginResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "signed-token", response.Data.AccessToken)
		assert.Equal(t, "bearer", response.Data.TokenType)
		assert.Equal(t, "alice", response.Data.Username)
		assert.True(t, expiresAt.Equal(response.Data.ExpiresAt))

		auth.AssertExpectations(t)
	})

	t.Run("form body with secure cookie", func(t *testing.T) {
		auth := new(MockAuthenticator)
		auth.On("Authenticate", "bob", "builder").Return(models.NewUser("bob", "hash"), nil)
		auth.On("IssueToken", "bob").Return("bob-token", expiresAt, nil)
		handler := NewAuthHandler(auth, CookieConfig{Name: "relay_token", Secure: true}, logger)

		form := url.Values{"username": {"bob"}, "password": {"builder"}}
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()

		handler.HandleLogin(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		cookie := findCookie(t, w, "relay_token")
		assert.Equal(t, "bob-token", cookie.Value)
		assert.True(t, cookie.Secure)
		auth.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		auth := new(MockAuthenticator)
		auth.On("Authenticate", "alice", "nope").Return(nil, services.ErrInvalidCredentials)
		handler := NewAuthHandler(auth, CookieConfig{}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"alice","password":"nope"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.HandleLogin(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "incorrect username or password")
		assert.Empty(t, w.Result().Cookies())
		auth.AssertNotCalled(t, "IssueToken", mock.Anything)
	})

	t.Run("missing fields", func(t *testing.T) {
		auth := new(MockAuthenticator)
		handler := NewAuthHandler(auth, CookieConfig{}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"  "}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.HandleLogin(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "username")
		assert.Contains(t, body, "password")
		auth.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	})

	t.Run("malformed json", func(t *testing.T) {
		handler := NewAuthHandler(new(MockAuthenticator), CookieConfig{}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.HandleLogin(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("token signing failure", func(t *testing.T) {
		auth := new(MockAuthenticator)
		auth.On("Authenticate", "alice", "wonderland").Return(models.NewUser("alice", "hash"), nil)
		auth.On("IssueToken", "alice").Return("", time.Time{}, errors.New("sign failed"))
		handler := NewAuthHandler(auth, CookieConfig{}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"alice","password":"wonderland"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.HandleLogin(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Empty(t, w.Result().Cookies())
	})
}

func TestHandleLogout(t *testing.T) {
	handler := NewAuthHandler(new(MockAuthenticator), CookieConfig{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	w := httptest.NewRecorder()

	handler.HandleLogout(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	cookie := findCookie(t, w, middleware.DefaultCookieName)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
	assert.Contains(t, w.Body.String(), "logged out")
}

func TestHandleMe(t *testing.T) {
	handler := NewAuthHandler(new(MockAuthenticator), CookieConfig{}, zap.NewNop())

	t.Run("authenticated", func(t *testing.T) {
		exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req = req.WithContext(middleware.WithClaims(req.Context(), &middleware.Claims{Sub: "alice", Exp: exp.Unix()}))
		w := httptest.NewRecorder()

		handler.HandleMe(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Data CurrentUserResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "alice", response.Data.Username)
		assert.True(t, exp.Equal(response.Data.ExpiresAt))
	})

	t.Run("anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleMe(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
