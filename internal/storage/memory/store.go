// Package memory is a process-local storage driver used in development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps every record in maps guarded by a single lock.
type Store struct {
	mu         sync.RWMutex
	users      map[string]models.User
	emails     map[string]string
	businesses map[string]models.Business
	spending   map[string]models.Spending
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]models.User),
		emails:     make(map[string]string),
		businesses: make(map[string]models.Business),
		spending:   make(map[string]models.Spending),
	}
}

// Close is a no-op.
func (s *Store) Close() {}

func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := s.emails[email]; ok {
		return models.User{}, storage.ErrAlreadyExists
	}
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = cloneUser(user)
	s.emails[email] = user.ID
	return cloneUser(user), nil
}

func (s *Store) GetUser(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return cloneUser(user), nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) FindByVerificationToken(_ context.Context, tokenHash string, now time.Time) (models.User, error) {
	return s.findUser(func(u models.User) bool {
		return tokenHash != "" && u.VerificationToken == tokenHash &&
			u.VerificationExpires != nil && u.VerificationExpires.After(now)
	})
}

func (s *Store) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (models.User, error) {
	return s.findUser(func(u models.User) bool {
		return tokenHash != "" && u.ResetToken == tokenHash &&
			u.ResetExpires != nil && u.ResetExpires.After(now)
	})
}

func (s *Store) findUser(match func(models.User) bool) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

// UpdateUser replaces the stored user. Email, children and spent are not
// changed here; they have dedicated operations.
func (s *Store) UpdateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	user.Email = current.Email
	user.Children = current.Children
	user.Spent = current.Spent
	user.Goals = current.Goals
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (s *Store) ListChildren(_ context.Context, parentID string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.User{}
	for _, u := range s.users {
		if u.ParentID == parentID && u.IsChild() {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) LinkChild(_ context.Context, parentID, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.users[parentID]
	if !ok {
		return storage.ErrNotFound
	}
	if parent.HasChild(childID) {
		return nil
	}
	parent.Children = append(append([]string(nil), parent.Children...), childID)
	parent.UpdatedAt = time.Now().UTC()
	s.users[parentID] = parent
	return nil
}

func (s *Store) AddSpent(_ context.Context, userID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.Spent = u.Spent.Add(amount)
	s.users[userID] = u
	return nil
}

func (s *Store) AddGoal(_ context.Context, userID string, goal models.Goal) (models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return models.Goal{}, storage.ErrNotFound
	}
	goal.ID = uuid.NewString()
	u.Goals = append(append([]models.Goal(nil), u.Goals...), goal)
	s.users[userID] = u
	return goal, nil
}

func (s *Store) UpdateGoalProgress(_ context.Context, userID, goalID string, amount decimal.Decimal) (models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return models.Goal{}, storage.ErrNotFound
	}
	goals := append([]models.Goal(nil), u.Goals...)
	for i := range goals {
		if goals[i].ID == goalID {
			goals[i].CurrentAmount = goals[i].CurrentAmount.Add(amount)
			u.Goals = goals
			s.users[userID] = u
			return goals[i], nil
		}
	}
	return models.Goal{}, storage.ErrNotFound
}

func (s *Store) CreateBusiness(_ context.Context, business models.Business) (models.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	business.ID = uuid.NewString()
	business.CreatedAt = time.Now().UTC()
	for i := range business.Offers {
		if business.Offers[i].ID == "" {
			business.Offers[i].ID = uuid.NewString()
		}
	}
	s.businesses[business.ID] = cloneBusiness(business)
	return cloneBusiness(business), nil
}

func (s *Store) GetBusiness(_ context.Context, id string) (models.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.businesses[id]
	if !ok {
		return models.Business{}, storage.ErrNotFound
	}
	return cloneBusiness(b), nil
}

func (s *Store) ListBusinesses(_ context.Context) ([]models.Business, error) {
	return s.filterBusinesses(func(models.Business) bool { return true }), nil
}

func (s *Store) ListBusinessesByType(_ context.Context, businessType string) ([]models.Business, error) {
	return s.filterBusinesses(func(b models.Business) bool { return b.Type == businessType }), nil
}

func (s *Store) ListWithActiveOffers(_ context.Context, now time.Time) ([]models.Business, error) {
	return s.filterBusinesses(func(b models.Business) bool { return len(b.ActiveOffers(now)) > 0 }), nil
}

func (s *Store) filterBusinesses(keep func(models.Business) bool) []models.Business {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Business{}
	for _, b := range s.businesses {
		if keep(b) {
			out = append(out, cloneBusiness(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) NearbyBusinesses(_ context.Context, p models.Point, maxMeters float64) ([]models.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type ranked struct {
		b    models.Business
		dist float64
	}
	var hits []ranked
	for _, b := range s.businesses {
		if d := models.DistanceMeters(p, b.Location); d <= maxMeters {
			hits = append(hits, ranked{b: cloneBusiness(b), dist: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	out := make([]models.Business, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.b)
	}
	return out, nil
}

func (s *Store) AddOffer(_ context.Context, businessID string, offer models.Offer) (models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.businesses[businessID]
	if !ok {
		return models.Offer{}, storage.ErrNotFound
	}
	offer.ID = uuid.NewString()
	b.Offers = append(append([]models.Offer(nil), b.Offers...), offer)
	s.businesses[businessID] = b
	return offer, nil
}

func (s *Store) ClaimOffer(_ context.Context, businessID, offerID, userID string, now time.Time) (models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.businesses[businessID]
	if !ok {
		return models.Offer{}, storage.ErrNotFound
	}
	offers := append([]models.Offer(nil), b.Offers...)
	for i := range offers {
		if offers[i].ID != offerID {
			continue
		}
		if !offers[i].Live(now) {
			return models.Offer{}, storage.ErrConflict
		}
		claimedAt := now.UTC()
		offers[i].IsActive = false
		offers[i].ClaimedBy = userID
		offers[i].ClaimedAt = &claimedAt
		b.Offers = offers
		s.businesses[businessID] = b
		return offers[i], nil
	}
	return models.Offer{}, storage.ErrNotFound
}

func (s *Store) CreateSpending(_ context.Context, spending models.Spending) (models.Spending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spending.ID = uuid.NewString()
	if spending.Timestamp.IsZero() {
		spending.Timestamp = time.Now().UTC()
	}
	spending.Business = nil
	s.spending[spending.ID] = cloneSpending(spending)
	return cloneSpending(spending), nil
}

func (s *Store) GetSpending(_ context.Context, id string) (models.Spending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.spending[id]
	if !ok {
		return models.Spending{}, storage.ErrNotFound
	}
	return cloneSpending(sp), nil
}

func (s *Store) ListSpendingByUser(_ context.Context, userID string, limit int) ([]models.Spending, error) {
	out := s.userSpending(userID, time.Time{}, time.Time{})
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TotalsByCategory(_ context.Context, userID string, from, to time.Time) ([]models.CategoryTotal, error) {
	totals := map[string]decimal.Decimal{}
	for _, sp := range s.userSpending(userID, from, to) {
		totals[sp.Category] = totals[sp.Category].Add(sp.Amount)
	}
	out := make([]models.CategoryTotal, 0, len(totals))
	for category, total := range totals {
		out = append(out, models.CategoryTotal{Category: category, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *Store) DailyTotals(_ context.Context, userID string, since time.Time) ([]models.DailyTotal, error) {
	totals := map[string]decimal.Decimal{}
	for _, sp := range s.userSpending(userID, since, time.Time{}) {
		day := sp.Timestamp.UTC().Format(time.DateOnly)
		totals[day] = totals[day].Add(sp.Amount)
	}
	out := make([]models.DailyTotal, 0, len(totals))
	for day, total := range totals {
		out = append(out, models.DailyTotal{Date: day, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// userSpending filters by owner and an optional [from, to] window; zero bounds are open.
func (s *Store) userSpending(userID string, from, to time.Time) []models.Spending {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Spending
	for _, sp := range s.spending {
		if sp.UserID != userID {
			continue
		}
		if !from.IsZero() && sp.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && sp.Timestamp.After(to) {
			continue
		}
		out = append(out, cloneSpending(sp))
	}
	return out
}

func (s *Store) NearbySpending(_ context.Context, p models.Point, maxMeters float64) ([]models.Spending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Spending{}
	for _, sp := range s.spending {
		if models.DistanceMeters(p, sp.Location) <= maxMeters {
			out = append(out, cloneSpending(sp))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return models.DistanceMeters(p, out[i].Location) < models.DistanceMeters(p, out[j].Location)
	})
	return out, nil
}

func (s *Store) ApproveSpending(_ context.Context, id string) (models.Spending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp, ok := s.spending[id]
	if !ok {
		return models.Spending{}, storage.ErrNotFound
	}
	if sp.IsApprovedByParent {
		return models.Spending{}, storage.ErrConflict
	}
	sp.IsApprovedByParent = true
	s.spending[id] = sp
	return cloneSpending(sp), nil
}

func cloneUser(u models.User) models.User {
	u.Children = append([]string(nil), u.Children...)
	u.Goals = append([]models.Goal(nil), u.Goals...)
	if u.Business != nil {
		b := *u.Business
		u.Business = &b
	}
	return u
}

func cloneBusiness(b models.Business) models.Business {
	b.Offers = append([]models.Offer{}, b.Offers...)
	if b.OperatingHours != nil {
		hours := make(map[string]models.OpeningHours, len(b.OperatingHours))
		for day, h := range b.OperatingHours {
			hours[day] = h
		}
		b.OperatingHours = hours
	}
	return b
}

func cloneSpending(sp models.Spending) models.Spending {
	sp.Tags = append([]string(nil), sp.Tags...)
	if sp.Receipt != nil {
		r := *sp.Receipt
		sp.Receipt = &r
	}
	return sp
}
