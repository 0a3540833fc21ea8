package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/youfin-be/internal/auth"
	"github.com/hongminglow/youfin-be/internal/mail"
	"github.com/hongminglow/youfin-be/internal/middleware"
	"github.com/hongminglow/youfin-be/internal/models"
)

// Sessions issues signed tokens and mirrors them into the session cookie.
type Sessions struct {
	tokens    *auth.TokenManager
	cookieTTL time.Duration
	secure    bool
}

// NewSessions builds a session issuer. secure marks the cookie HTTPS-only.
func NewSessions(tokens *auth.TokenManager, cookieTTL time.Duration, secure bool) *Sessions {
	return &Sessions{tokens: tokens, cookieTTL: cookieTTL, secure: secure}
}

func (s *Sessions) issue(w http.ResponseWriter, user models.User) (string, error) {
	token, err := s.tokens.Generate(user)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(s.cookieTTL),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func (s *Sessions) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "none",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sendBestEffort delivers msg and reports whether it went out; failures are only logged.
func sendBestEffort(ctx context.Context, mailer mail.Mailer, msg mail.Message) bool {
	if err := mailer.Send(ctx, msg); err != nil {
		zap.L().Warn("email delivery failed",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return false
	}
	return true
}
