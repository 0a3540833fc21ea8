package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hongminglow/youfin-be/internal/auth"
	"github.com/hongminglow/youfin-be/internal/http/respond"
	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/storage"
)

// SessionCookie is the cookie that carries the session token.
const SessionCookie = "token"

type userKey struct{}

// UserLoader resolves the subject of a session token.
type UserLoader interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

// WithUser stores the authenticated user on ctx.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// CurrentUser returns the user placed on ctx by Authenticator.
func CurrentUser(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey{}).(models.User)
	return user, ok
}

// Authenticator validates session tokens from the Authorization header or cookie.
type Authenticator struct {
	tokens *auth.TokenManager
	users  UserLoader
}

func NewAuthenticator(tokens *auth.TokenManager, users UserLoader) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Require rejects requests without a valid session for an existing user.
func (a *Authenticator) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			respond.Error(w, http.StatusUnauthorized, "not authorized to access this route")
			return
		}
		claims, err := a.tokens.Parse(raw)
		if err != nil {
			respond.Error(w, http.StatusUnauthorized, "not authorized to access this route")
			return
		}
		user, err := a.users.GetUser(r.Context(), claims.Subject)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				zap.L().Error("load session user", zap.String("user_id", claims.Subject), zap.Error(err))
			}
			respond.Error(w, http.StatusUnauthorized, "not authorized to access this route")
			return
		}
		next(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

// RequireRole is Require plus a role check; other roles get 403.
func (a *Authenticator) RequireRole(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return a.Require(func(w http.ResponseWriter, r *http.Request) {
		user, _ := CurrentUser(r.Context())
		for _, role := range roles {
			if user.Role == role {
				next(w, r)
				return
			}
		}
		respond.Error(w, http.StatusForbidden, "user role "+user.Role+" is not authorized to access this route")
	})
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
