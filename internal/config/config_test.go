package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/youfin")
	t.Setenv("APP_ENV", "")
	t.Setenv("FRONTEND_URL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("AUTO_VERIFY", "")
	t.Setenv("JWT_TTL_MINUTES", "")
	t.Setenv("SPENDING_APPROVAL_THRESHOLD", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsDevelopment())
	require.True(t, cfg.AutoVerify)
	require.Equal(t, DriverPostgres, cfg.StorageDriver)
	require.Equal(t, 24*time.Hour, cfg.JWTTTL)
	require.Equal(t, 24*time.Hour, cfg.CookieTTL)
	require.Equal(t, "20", cfg.ApprovalLimit.String())
	require.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.CORSOrigins)
	require.Equal(t, ":8000", cfg.HTTPAddress())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORAGE_DRIVER", DriverMemory)

	_, err := Load()
	require.EqualError(t, err, "JWT_SECRET is required")
}

func TestLoadDriverRequirements(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MONGODB_URI", "")

	t.Setenv("STORAGE_DRIVER", DriverPostgres)
	_, err := Load()
	require.EqualError(t, err, "DATABASE_URL is required")

	t.Setenv("STORAGE_DRIVER", DriverMongo)
	_, err = Load()
	require.EqualError(t, err, "MONGODB_URI is required")

	t.Setenv("STORAGE_DRIVER", "sqlite")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("STORAGE_DRIVER", DriverMemory)
	_, err = Load()
	require.NoError(t, err)
}

func TestLoadProductionDisablesAutoVerify(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", DriverMemory)
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTO_VERIFY", "")
	t.Setenv("SPENDING_APPROVAL_THRESHOLD", "35.50")

	cfg, err := Load()
	require.NoError(t, err)
	require.False(t, cfg.IsDevelopment())
	require.False(t, cfg.AutoVerify)
	require.Equal(t, "35.5", cfg.ApprovalLimit.String())
}

func TestParseCSV(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, parseCSV(" a, ,b "))
	require.Equal(t, []string{"*"}, parseCSV(" , "))
}
