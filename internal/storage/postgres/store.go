package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hongminglow/youfin-be/internal/storage"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

// Store provides Postgres-backed persistence for users, businesses and spending.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new Store and runs migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			business JSONB,
			date_of_birth TIMESTAMPTZ,
			parent_id TEXT REFERENCES users(id),
			two_factor_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			two_factor_secret TEXT NOT NULL DEFAULT '',
			two_factor_temp_secret TEXT NOT NULL DEFAULT '',
			two_factor_otp_url TEXT NOT NULL DEFAULT '',
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			verification_token TEXT NOT NULL DEFAULT '',
			verification_expires TIMESTAMPTZ,
			reset_token TEXT NOT NULL DEFAULT '',
			reset_expires TIMESTAMPTZ,
			last_login TIMESTAMPTZ,
			allowance_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
			allowance_frequency TEXT NOT NULL DEFAULT 'weekly',
			allowance_last_paid TIMESTAMPTZ,
			limit_daily NUMERIC(14,2) NOT NULL DEFAULT 0,
			limit_weekly NUMERIC(14,2) NOT NULL DEFAULT 0,
			limit_monthly NUMERIC(14,2) NOT NULL DEFAULT 0,
			budget NUMERIC(14,2) NOT NULL DEFAULT 0,
			spent NUMERIC(14,2) NOT NULL DEFAULT 0,
			avatar TEXT NOT NULL DEFAULT 'default-avatar.png',
			theme TEXT NOT NULL DEFAULT 'dark',
			notifications BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_unique_idx ON users (email);`,
		`CREATE INDEX IF NOT EXISTS users_parent_idx ON users (parent_id);`,
		`CREATE INDEX IF NOT EXISTS users_verification_token_idx ON users (verification_token) WHERE verification_token <> '';`,
		`CREATE INDEX IF NOT EXISTS users_reset_token_idx ON users (reset_token) WHERE reset_token <> '';`,
		`CREATE TABLE IF NOT EXISTS goals (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			target_amount NUMERIC(14,2) NOT NULL,
			current_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
			deadline TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS goals_user_idx ON goals (user_id);`,
		`CREATE TABLE IF NOT EXISTS businesses (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			lng DOUBLE PRECISION NOT NULL,
			lat DOUBLE PRECISION NOT NULL,
			address JSONB NOT NULL DEFAULT '{}',
			description TEXT NOT NULL DEFAULT '',
			budget_category TEXT NOT NULL DEFAULT '',
			raiffeisen_info TEXT NOT NULL DEFAULT '',
			operating_hours JSONB,
			rating DOUBLE PRECISION NOT NULL DEFAULT 0,
			price_level INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS businesses_type_idx ON businesses (type);`,
		`CREATE TABLE IF NOT EXISTS offers (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL REFERENCES businesses(id),
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			discount TEXT NOT NULL DEFAULT '',
			valid_until TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			claimed_by TEXT NOT NULL DEFAULT '',
			claimed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS offers_business_idx ON offers (business_id);`,
		`CREATE TABLE IF NOT EXISTS spending (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			business_id TEXT NOT NULL REFERENCES businesses(id),
			amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			lng DOUBLE PRECISION NOT NULL,
			lat DOUBLE PRECISION NOT NULL,
			payment_method TEXT NOT NULL DEFAULT 'cash',
			is_approved_by_parent BOOLEAN NOT NULL DEFAULT FALSE,
			tags TEXT[] NOT NULL DEFAULT '{}',
			receipt_url TEXT NOT NULL DEFAULT '',
			receipt_uploaded_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS spending_user_ts_idx ON spending (user_id, ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

// haversineSQL computes metres between (lng, lat) columns and the $1/$2 point.
const haversineSQL = `6371000 * 2 * asin(LEAST(1, sqrt(
	power(sin(radians(lat - $2) / 2), 2) +
	cos(radians($2)) * cos(radians(lat)) * power(sin(radians(lng - $1) / 2), 2)
)))`

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return storage.ErrAlreadyExists
		case "23503":
			// foreign key target missing
			return storage.ErrNotFound
		}
	}
	return err
}

// exists reports whether a row with the given id exists in table.
func (s *Store) exists(ctx context.Context, table, id string) (bool, error) {
	var found bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := s.pool.QueryRow(ctx, query, id).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}
