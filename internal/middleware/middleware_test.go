package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hongminglow/youfin-be/internal/auth"
	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/storage"
)

type fakeUsers map[string]models.User

func (f fakeUsers) GetUser(_ context.Context, id string) (models.User, error) {
	u, ok := f[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return u, nil
}

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"}, http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://LOCALHOST:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://LOCALHOST:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggingAssignsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var seen string
	h := Logging(zap.New(core), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, zap.WarnLevel, entry.Level)
	require.Equal(t, int64(http.StatusTeapot), entry.ContextMap()["status"])
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(2, time.Minute, "too many requests")
	h := l.Middleware(http.HandlerFunc(ok))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, call("10.0.0.1:1234"))
	require.Equal(t, http.StatusOK, call("10.0.0.1:1235"))
	require.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1236"))
	require.Equal(t, http.StatusOK, call("10.0.0.2:1234"))
}

func TestAuthenticator(t *testing.T) {
	tokens := auth.NewTokenManager("secret", "youfin-test", time.Hour)
	parent := models.User{ID: "p1", Role: models.RoleParent}
	child := models.User{ID: "c1", Role: models.RoleChild}
	a := NewAuthenticator(tokens, fakeUsers{"p1": parent, "c1": child})

	var got models.User
	protected := a.RequireRole(func(w http.ResponseWriter, r *http.Request) {
		got, _ = CurrentUser(r.Context())
		w.WriteHeader(http.StatusOK)
	}, models.RoleParent)

	serve := func(req *http.Request) int {
		rec := httptest.NewRecorder()
		protected(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusUnauthorized, serve(httptest.NewRequest(http.MethodGet, "/", nil)))

	parentToken, err := tokens.Generate(parent)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+parentToken)
	require.Equal(t, http.StatusOK, serve(req))
	require.Equal(t, "p1", got.ID)

	childToken, err := tokens.Generate(child)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: childToken})
	require.Equal(t, http.StatusForbidden, serve(req))

	ghostToken, err := tokens.Generate(models.User{ID: "gone"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+ghostToken)
	require.Equal(t, http.StatusUnauthorized, serve(req))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(ok)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
