package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/storage"
)

const businessColumns = `id, name, type, lng, lat, address, description, budget_category,
	raiffeisen_info, operating_hours, rating, price_level, created_at`

const offerColumns = `id, title, description, discount, valid_until, is_active, claimed_by, claimed_at`

// CreateBusiness inserts a business and any offers it carries in one transaction.
func (s *Store) CreateBusiness(ctx context.Context, business models.Business) (models.Business, error) {
	business.ID = uuid.NewString()
	business.CreatedAt = time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Business{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO businesses (`+businessColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		business.ID, business.Name, business.Type, business.Location.Lng, business.Location.Lat,
		business.Address, business.Description, business.BudgetCategory, business.RaiffeisenInfo,
		business.OperatingHours, business.Rating, business.PriceLevel, business.CreatedAt)
	if err != nil {
		return models.Business{}, translate(err)
	}
	for i := range business.Offers {
		business.Offers[i].ID = uuid.NewString()
		if err := insertOffer(ctx, tx, business.ID, business.Offers[i]); err != nil {
			return models.Business{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Business{}, err
	}
	if business.Offers == nil {
		business.Offers = []models.Offer{}
	}
	return business, nil
}

func (s *Store) GetBusiness(ctx context.Context, id string) (models.Business, error) {
	list, err := s.queryBusinesses(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id)
	if err != nil {
		return models.Business{}, err
	}
	if len(list) == 0 {
		return models.Business{}, storage.ErrNotFound
	}
	return list[0], nil
}

func (s *Store) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	return s.queryBusinesses(ctx, `SELECT `+businessColumns+` FROM businesses ORDER BY name`)
}

func (s *Store) ListBusinessesByType(ctx context.Context, businessType string) ([]models.Business, error) {
	return s.queryBusinesses(ctx, `SELECT `+businessColumns+` FROM businesses WHERE type = $1 ORDER BY name`, businessType)
}

// NearbyBusinesses filters by haversine distance and orders closest first.
func (s *Store) NearbyBusinesses(ctx context.Context, p models.Point, maxMeters float64) ([]models.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM (
			SELECT *, ` + haversineSQL + ` AS distance FROM businesses
		) b
		WHERE distance <= $3
		ORDER BY distance`
	return s.queryBusinesses(ctx, query, p.Lng, p.Lat, maxMeters)
}

func (s *Store) ListWithActiveOffers(ctx context.Context, now time.Time) ([]models.Business, error) {
	return s.queryBusinesses(ctx, `SELECT `+businessColumns+` FROM businesses b
		WHERE EXISTS (SELECT 1 FROM offers o WHERE o.business_id = b.id AND o.is_active AND o.valid_until > $1)
		ORDER BY name`, now)
}

func (s *Store) AddOffer(ctx context.Context, businessID string, offer models.Offer) (models.Offer, error) {
	offer.ID = uuid.NewString()
	if err := insertOffer(ctx, s.pool, businessID, offer); err != nil {
		return models.Offer{}, err
	}
	return offer, nil
}

// ClaimOffer runs a conditional update so only one caller can claim a live offer.
func (s *Store) ClaimOffer(ctx context.Context, businessID, offerID, userID string, now time.Time) (models.Offer, error) {
	row := s.pool.QueryRow(ctx, `UPDATE offers SET is_active = FALSE, claimed_by = $3, claimed_at = $4
		WHERE id = $2 AND business_id = $1 AND is_active AND valid_until > $4
		RETURNING `+offerColumns, businessID, offerID, userID, now.UTC())
	offer, err := scanOffer(row)
	if err == nil {
		return offer, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.Offer{}, err
	}
	var found bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM offers WHERE id = $2 AND business_id = $1)`,
		businessID, offerID).Scan(&found); err != nil {
		return models.Offer{}, err
	}
	if found {
		return models.Offer{}, storage.ErrConflict
	}
	return models.Offer{}, storage.ErrNotFound
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertOffer(ctx context.Context, db execer, businessID string, offer models.Offer) error {
	_, err := db.Exec(ctx, `INSERT INTO offers (id, business_id, title, description, discount, valid_until, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		offer.ID, businessID, offer.Title, offer.Description, offer.Discount, offer.ValidUntil, offer.IsActive)
	return translate(err)
}

func (s *Store) queryBusinesses(ctx context.Context, query string, args ...any) ([]models.Business, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Business, error) {
		return scanBusiness(row)
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return []models.Business{}, nil
	}
	return out, s.attachOffers(ctx, out)
}

// attachOffers loads the offers of every business in one query.
func (s *Store) attachOffers(ctx context.Context, list []models.Business) error {
	ids := make([]string, len(list))
	index := make(map[string]int, len(list))
	for i, b := range list {
		ids[i] = b.ID
		index[b.ID] = i
		list[i].Offers = []models.Offer{}
	}
	rows, err := s.pool.Query(ctx, `SELECT business_id, `+offerColumns+`
		FROM offers WHERE business_id = ANY($1) ORDER BY created_at`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var businessID string
		var o models.Offer
		if err := rows.Scan(&businessID, &o.ID, &o.Title, &o.Description, &o.Discount,
			&o.ValidUntil, &o.IsActive, &o.ClaimedBy, &o.ClaimedAt); err != nil {
			return err
		}
		i := index[businessID]
		list[i].Offers = append(list[i].Offers, o)
	}
	return rows.Err()
}

func scanBusiness(row pgx.Row) (models.Business, error) {
	var b models.Business
	err := row.Scan(&b.ID, &b.Name, &b.Type, &b.Location.Lng, &b.Location.Lat, &b.Address,
		&b.Description, &b.BudgetCategory, &b.RaiffeisenInfo, &b.OperatingHours,
		&b.Rating, &b.PriceLevel, &b.CreatedAt)
	if err != nil {
		return models.Business{}, translate(err)
	}
	return b, nil
}

func scanOffer(row pgx.Row) (models.Offer, error) {
	var o models.Offer
	if err := row.Scan(&o.ID, &o.Title, &o.Description, &o.Discount, &o.ValidUntil,
		&o.IsActive, &o.ClaimedBy, &o.ClaimedAt); err != nil {
		return models.Offer{}, translate(err)
	}
	return o, nil
}
