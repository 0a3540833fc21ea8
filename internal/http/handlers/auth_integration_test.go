package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hongminglow/youfin-be/internal/auth"
	"github.com/hongminglow/youfin-be/internal/config"
	"github.com/hongminglow/youfin-be/internal/mail"
	"github.com/hongminglow/youfin-be/internal/middleware"
	"github.com/hongminglow/youfin-be/internal/models/dto"
	"github.com/hongminglow/youfin-be/internal/storage/postgres"
)

// TestAuthIntegration exercises the register/login endpoints against a live Postgres database.
func TestAuthIntegration(t *testing.T) {
	if os.Getenv("RUN_POSTGRES_INTEGRATION") != "true" {
		t.Skip("set RUN_POSTGRES_INTEGRATION=true to run this integration test")
	}

	loadDotEnv()
	dbURL := mustGetEnv(t, "DATABASE_URL")

	ctx := context.Background()
	store, err := postgres.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	defer store.Close()

	cfg := config.Config{
		Environment: "development",
		JWTSecret:   mustGetEnv(t, "JWT_SECRET"),
		JWTIssuer:   mustGetEnv(t, "JWT_ISSUER"),
		JWTTTL:      mustGetTTL(t),
		CookieTTL:   24 * time.Hour,
		FrontendURL: "http://localhost:5173",
		AutoVerify:  true,
	}
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	guard := middleware.NewAuthenticator(tokens, store)

	mux := http.NewServeMux()
	authHandler := NewAuthHandler(store, NewSessions(tokens, cfg.CookieTTL, false), guard,
		mail.NewLogMailer(zap.NewNop()), mail.NewComposer(cfg.FrontendURL), &cfg)
	authHandler.Register(mux)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	stamp := time.Now().UnixNano()
	email := fmt.Sprintf("apitest_%d@example.com", stamp)
	password := fmt.Sprintf("Pass!%d", stamp)

	registered := postAuth(t, ts.URL+"/api/auth/register", http.StatusCreated, map[string]string{
		"firstName": "Api",
		"lastName":  "Test",
		"email":     email,
		"password":  password,
		"role":      "parent",
	})
	if registered.User.Email != email {
		t.Fatalf("register mismatch: got %+v", registered.User)
	}

	loggedIn := postAuth(t, ts.URL+"/api/auth/login", http.StatusOK, map[string]string{
		"email":    email,
		"password": password,
	})
	if loggedIn.User.ID != registered.User.ID {
		t.Fatalf("login returned wrong user id: want %s got %s", registered.User.ID, loggedIn.User.ID)
	}
	if strings.TrimSpace(loggedIn.Token) == "" {
		t.Fatal("login response missing token")
	}

	t.Logf("created user %s (id=%s) and successfully logged in", email, registered.User.ID)
}

func postAuth(t *testing.T, url string, wantStatus int, payload map[string]string) dto.LoginResponse {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		t.Fatalf("%s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var out struct {
		Data dto.LoginResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out.Data
}

func mustGetEnv(t *testing.T, key string) string {
	t.Helper()
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		t.Fatalf("%s is required", key)
	}
	return val
}

func mustGetTTL(t *testing.T) time.Duration {
	t.Helper()
	minutesStr := mustGetEnv(t, "JWT_TTL_MINUTES")
	minutes, err := strconv.Atoi(minutesStr)
	if err != nil || minutes <= 0 {
		t.Fatalf("invalid JWT_TTL_MINUTES value: %q", minutesStr)
	}
	return time.Duration(minutes) * time.Minute
}

func loadDotEnv() {
	paths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
		"../../../../.env",
	}
	for _, path := range paths {
		_ = godotenv.Overload(path)
	}
}
