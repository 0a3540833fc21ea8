package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/storage"
)

const spendingColumns = `id, user_id, business_id, amount, description, category, ts, lng, lat,
	payment_method, is_approved_by_parent, tags, receipt_url, receipt_uploaded_at`

// CreateSpending inserts an expense row.
func (s *Store) CreateSpending(ctx context.Context, sp models.Spending) (models.Spending, error) {
	sp.ID = uuid.NewString()
	if sp.Timestamp.IsZero() {
		sp.Timestamp = time.Now().UTC()
	}
	if sp.Tags == nil {
		sp.Tags = []string{}
	}
	var receiptURL string
	var receiptAt *time.Time
	if sp.Receipt != nil {
		receiptURL, receiptAt = sp.Receipt.URL, sp.Receipt.UploadedAt
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO spending (`+spendingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sp.ID, sp.UserID, sp.BusinessID, sp.Amount, sp.Description, sp.Category, sp.Timestamp,
		sp.Location.Lng, sp.Location.Lat, sp.PaymentMethod, sp.IsApprovedByParent, sp.Tags,
		receiptURL, receiptAt)
	if err != nil {
		return models.Spending{}, translate(err)
	}
	sp.Business = nil
	return sp, nil
}

func (s *Store) GetSpending(ctx context.Context, id string) (models.Spending, error) {
	return scanSpending(s.pool.QueryRow(ctx, `SELECT `+spendingColumns+` FROM spending WHERE id = $1`, id))
}

func (s *Store) ListSpendingByUser(ctx context.Context, userID string, limit int) ([]models.Spending, error) {
	query := `SELECT ` + spendingColumns + ` FROM spending WHERE user_id = $1 ORDER BY ts DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.querySpending(ctx, query, args...)
}

// TotalsByCategory sums amounts per category in [from, to], largest first.
func (s *Store) TotalsByCategory(ctx context.Context, userID string, from, to time.Time) ([]models.CategoryTotal, error) {
	rows, err := s.pool.Query(ctx, `SELECT category, SUM(amount) FROM spending
		WHERE user_id = $1 AND ts >= $2 AND ts <= $3
		GROUP BY category ORDER BY 2 DESC, 1`, userID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.CategoryTotal, error) {
		var t models.CategoryTotal
		err := row.Scan(&t.Category, &t.Total)
		return t, err
	})
}

// DailyTotals sums amounts per UTC calendar day since the given instant.
func (s *Store) DailyTotals(ctx context.Context, userID string, since time.Time) ([]models.DailyTotal, error) {
	rows, err := s.pool.Query(ctx, `SELECT to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, SUM(amount)
		FROM spending WHERE user_id = $1 AND ts >= $2
		GROUP BY day ORDER BY day`, userID, since)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DailyTotal, error) {
		var t models.DailyTotal
		err := row.Scan(&t.Date, &t.Total)
		return t, err
	})
}

func (s *Store) NearbySpending(ctx context.Context, p models.Point, maxMeters float64) ([]models.Spending, error) {
	query := `SELECT ` + spendingColumns + ` FROM (
			SELECT *, ` + haversineSQL + ` AS distance FROM spending
		) sp
		WHERE distance <= $3
		ORDER BY distance`
	return s.querySpending(ctx, query, p.Lng, p.Lat, maxMeters)
}

// ApproveSpending flips the approval flag only if it is still false.
func (s *Store) ApproveSpending(ctx context.Context, id string) (models.Spending, error) {
	sp, err := scanSpending(s.pool.QueryRow(ctx, `UPDATE spending SET is_approved_by_parent = TRUE
		WHERE id = $1 AND NOT is_approved_by_parent
		RETURNING `+spendingColumns, id))
	if err == nil {
		return sp, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.Spending{}, err
	}
	found, err := s.exists(ctx, "spending", id)
	if err != nil {
		return models.Spending{}, err
	}
	if found {
		return models.Spending{}, storage.ErrConflict
	}
	return models.Spending{}, storage.ErrNotFound
}

func (s *Store) querySpending(ctx context.Context, query string, args ...any) ([]models.Spending, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Spending, error) {
		return scanSpending(row)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Spending{}
	}
	return out, nil
}

func scanSpending(row pgx.Row) (models.Spending, error) {
	var sp models.Spending
	var receiptURL string
	var receiptAt *time.Time
	err := row.Scan(&sp.ID, &sp.UserID, &sp.BusinessID, &sp.Amount, &sp.Description, &sp.Category,
		&sp.Timestamp, &sp.Location.Lng, &sp.Location.Lat, &sp.PaymentMethod, &sp.IsApprovedByParent,
		&sp.Tags, &receiptURL, &receiptAt)
	if err != nil {
		return models.Spending{}, translate(err)
	}
	if receiptURL != "" {
		sp.Receipt = &models.Receipt{URL: receiptURL, UploadedAt: receiptAt}
	}
	return sp, nil
}
