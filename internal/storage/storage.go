package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hongminglow/youfin-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ErrConflict indicates a conditional update lost because the record already changed state.
var ErrConflict = errors.New("record state conflict")

// UserStore captures persistence operations on accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	// FindByVerificationToken matches the hashed token and ignores expired ones.
	FindByVerificationToken(ctx context.Context, tokenHash string, now time.Time) (models.User, error)
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (models.User, error)
	UpdateUser(ctx context.Context, user models.User) (models.User, error)
	ListChildren(ctx context.Context, parentID string) ([]models.User, error)
	LinkChild(ctx context.Context, parentID, childID string) error
	AddSpent(ctx context.Context, userID string, amount decimal.Decimal) error
	AddGoal(ctx context.Context, userID string, goal models.Goal) (models.Goal, error)
	UpdateGoalProgress(ctx context.Context, userID, goalID string, amount decimal.Decimal) (models.Goal, error)
}

// BusinessStore captures persistence operations on the business directory.
type BusinessStore interface {
	CreateBusiness(ctx context.Context, business models.Business) (models.Business, error)
	GetBusiness(ctx context.Context, id string) (models.Business, error)
	ListBusinesses(ctx context.Context) ([]models.Business, error)
	ListBusinessesByType(ctx context.Context, businessType string) ([]models.Business, error)
	// NearbyBusinesses returns businesses within maxMeters of p, closest first.
	NearbyBusinesses(ctx context.Context, p models.Point, maxMeters float64) ([]models.Business, error)
	ListWithActiveOffers(ctx context.Context, now time.Time) ([]models.Business, error)
	AddOffer(ctx context.Context, businessID string, offer models.Offer) (models.Offer, error)
	// ClaimOffer deactivates a live offer for userID. A lost race or dead offer yields ErrConflict.
	ClaimOffer(ctx context.Context, businessID, offerID, userID string, now time.Time) (models.Offer, error)
}

// SpendingStore captures persistence operations on expenses.
type SpendingStore interface {
	CreateSpending(ctx context.Context, spending models.Spending) (models.Spending, error)
	GetSpending(ctx context.Context, id string) (models.Spending, error)
	// ListSpendingByUser returns newest first; limit <= 0 means no limit.
	ListSpendingByUser(ctx context.Context, userID string, limit int) ([]models.Spending, error)
	TotalsByCategory(ctx context.Context, userID string, from, to time.Time) ([]models.CategoryTotal, error)
	DailyTotals(ctx context.Context, userID string, since time.Time) ([]models.DailyTotal, error)
	NearbySpending(ctx context.Context, p models.Point, maxMeters float64) ([]models.Spending, error)
	// ApproveSpending flips isApprovedByParent from false to true, or returns ErrConflict.
	ApproveSpending(ctx context.Context, id string) (models.Spending, error)
}

// Store is the full persistence surface a driver provides.
type Store interface {
	UserStore
	BusinessStore
	SpendingStore
	Close()
}
