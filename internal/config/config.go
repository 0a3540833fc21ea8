package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Storage drivers understood by Load.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Environment string
	Port        string

	StorageDriver string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	JWTSecret       string
	JWTIssuer       string
	JWTTTL          time.Duration
	CookieTTL       time.Duration
	FrontendURL     string
	CORSOrigins     []string
	AutoVerify      bool
	ApprovalLimit   decimal.Decimal
	RateLimitMax    int
	RateLimitWindow time.Duration
	AuthRateLimit   int

	SMTP SMTPConfig

	HuggingFaceKey     string
	HuggingFaceBaseURL string
}

// SMTPConfig configures outbound email. An empty Host means emails are only logged.
type SMTPConfig struct {
	Host     string
	Port     int
	Secure   bool
	Username string
	Password string
	From     string
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	env := strings.ToLower(fallback(os.Getenv("APP_ENV"), "development"))
	frontend := fallback(os.Getenv("FRONTEND_URL"), "http://localhost:5173")

	cfg := Config{
		Environment:        env,
		Port:               fallback(os.Getenv("PORT"), "8000"),
		StorageDriver:      strings.ToLower(fallback(os.Getenv("STORAGE_DRIVER"), DriverPostgres)),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MongoURI:           strings.TrimSpace(os.Getenv("MONGODB_URI")),
		MongoDatabase:      fallback(os.Getenv("MONGODB_DATABASE"), "youfin"),
		JWTSecret:          strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:          fallback(os.Getenv("JWT_ISSUER"), "youfin-backend"),
		FrontendURL:        strings.TrimRight(frontend, "/"),
		CORSOrigins:        parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), frontend+",http://localhost:3000")),
		AutoVerify:         getBool("AUTO_VERIFY", env == "development"),
		RateLimitMax:       getInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow:    getDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		AuthRateLimit:      getInt("AUTH_RATE_LIMIT_MAX", 10),
		HuggingFaceKey:     strings.TrimSpace(os.Getenv("HUGGINGFACE_API_KEY")),
		HuggingFaceBaseURL: fallback(os.Getenv("HUGGINGFACE_BASE_URL"), "https://api-inference.huggingface.co"),
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
			Port:     getInt("SMTP_PORT", 587),
			Secure:   getBool("SMTP_SECURE", false),
			Username: strings.TrimSpace(os.Getenv("SMTP_USER")),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     fallback(os.Getenv("EMAIL_FROM"), "noreply@youfin.app"),
		},
	}

	minutes := fallback(os.Getenv("JWT_TTL_MINUTES"), "1440")
	if ttlMinutes, err := strconv.Atoi(minutes); err == nil && ttlMinutes > 0 {
		cfg.JWTTTL = time.Duration(ttlMinutes) * time.Minute
	} else {
		cfg.JWTTTL = 24 * time.Hour
	}

	days := getInt("JWT_COOKIE_EXPIRE", 1)
	if days <= 0 {
		days = 1
	}
	cfg.CookieTTL = time.Duration(days) * 24 * time.Hour

	limit, err := decimal.NewFromString(fallback(os.Getenv("SPENDING_APPROVAL_THRESHOLD"), "20"))
	if err != nil || limit.IsNegative() {
		return Config{}, fmt.Errorf("invalid SPENDING_APPROVAL_THRESHOLD %q", os.Getenv("SPENDING_APPROVAL_THRESHOLD"))
	}
	cfg.ApprovalLimit = limit

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	switch cfg.StorageDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required")
		}
	case DriverMongo:
		if cfg.MongoURI == "" {
			return Config{}, errors.New("MONGODB_URI is required")
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 100
	}
	if cfg.AuthRateLimit <= 0 {
		cfg.AuthRateLimit = 10
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// IsDevelopment reports whether the process runs with APP_ENV=development.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
