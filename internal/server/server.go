package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/youfin-be/internal/ai"
	"github.com/hongminglow/youfin-be/internal/auth"
	"github.com/hongminglow/youfin-be/internal/config"
	"github.com/hongminglow/youfin-be/internal/http/handlers"
	"github.com/hongminglow/youfin-be/internal/mail"
	"github.com/hongminglow/youfin-be/internal/middleware"
	"github.com/hongminglow/youfin-be/internal/storage"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, store storage.Store, mailer mail.Mailer, logger *zap.Logger) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           Handler(cfg, store, mailer, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{inner: httpServer}
}

// Handler builds the full middleware chain around the API routes.
func Handler(cfg config.Config, store storage.Store, mailer mail.Mailer, logger *zap.Logger) http.Handler {
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	guard := middleware.NewAuthenticator(tokens, store)
	sessions := handlers.NewSessions(tokens, cfg.CookieTTL, !cfg.IsDevelopment())
	emails := mail.NewComposer(cfg.FrontendURL)
	advisor := ai.NewAdvisor(ai.NewClient(cfg.HuggingFaceKey, cfg.HuggingFaceBaseURL))

	credentials := middleware.NewRateLimiter(cfg.AuthRateLimit, time.Minute,
		"too many authentication attempts, please try again later")
	api := middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow,
		"too many requests from this IP, please try again later")

	mux := http.NewServeMux()
	handlers.NewHealthHandler(time.Now(), cfg.Environment).Register(mux)
	handlers.NewAuthHandler(store, sessions, guard, mailer, emails, &cfg).LimitCredentials(credentials).Register(mux)
	handlers.NewUserHandler(store, guard, &cfg).Register(mux)
	handlers.NewBusinessHandler(store, guard, advisor, &cfg).Register(mux)
	handlers.NewSpendingHandler(store, guard, mailer, emails, &cfg).Register(mux)
	handlers.NewAIHandler(store, guard, advisor).Register(mux)

	logger.Info("routes registered",
		zap.String("environment", cfg.Environment),
		zap.Stringer("api_rate_limit", api),
		zap.Stringer("auth_rate_limit", credentials),
	)

	return middleware.Logging(logger,
		middleware.SecurityHeaders(
			middleware.CORS(cfg.CORSOrigins,
				limitAPI(api, mux))))
}

// limitAPI applies l to /api routes only.
func limitAPI(l *middleware.RateLimiter, next http.Handler) http.Handler {
	limited := l.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
