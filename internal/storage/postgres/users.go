package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/storage"
)

const userColumns = `u.id, u.first_name, u.last_name, u.username, u.email, u.password_hash, u.role,
	u.business, u.date_of_birth, u.parent_id,
	u.two_factor_enabled, u.two_factor_secret, u.two_factor_temp_secret, u.two_factor_otp_url,
	u.is_verified, u.verification_token, u.verification_expires, u.reset_token, u.reset_expires, u.last_login,
	u.allowance_amount, u.allowance_frequency, u.allowance_last_paid,
	u.limit_daily, u.limit_weekly, u.limit_monthly, u.budget, u.spent,
	u.avatar, u.theme, u.notifications, u.created_at, u.updated_at,
	ARRAY(SELECT c.id FROM users c WHERE c.parent_id = u.id ORDER BY c.created_at)`

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO users (
			id, first_name, last_name, username, email, password_hash, role,
			business, date_of_birth, parent_id,
			is_verified, verification_token, verification_expires,
			allowance_amount, allowance_frequency, limit_daily, limit_weekly, limit_monthly,
			budget, avatar, theme, notifications
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id;`
	user.ID = uuid.NewString()
	user.Email = strings.ToLower(user.Email)
	if user.Avatar == "" {
		user.Avatar = models.DefaultAvatar
	}
	if user.Preferences.Theme == "" {
		user.Preferences = models.DefaultPreferences()
	}
	if user.Allowance.Frequency == "" {
		user.Allowance.Frequency = "weekly"
	}
	var id string
	err := s.pool.QueryRow(ctx, query,
		user.ID, user.FirstName, user.LastName, user.Username, user.Email, user.PasswordHash, user.Role,
		user.Business, user.DateOfBirth, nullable(user.ParentID),
		user.IsVerified, user.VerificationToken, user.VerificationExpires,
		user.Allowance.Amount, user.Allowance.Frequency,
		user.SpendingLimit.Daily, user.SpendingLimit.Weekly, user.SpendingLimit.Monthly,
		user.Budget, user.Avatar, user.Preferences.Theme, user.Preferences.Notifications,
	).Scan(&id)
	if err != nil {
		return models.User{}, translate(err)
	}
	return s.GetUser(ctx, id)
}

// GetUser fetches a user and their goals by id.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id)
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email = $1`, strings.ToLower(email))
}

func (s *Store) FindByVerificationToken(ctx context.Context, tokenHash string, now time.Time) (models.User, error) {
	if tokenHash == "" {
		return models.User{}, storage.ErrNotFound
	}
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users u
		WHERE u.verification_token = $1 AND u.verification_expires > $2`, tokenHash, now)
}

func (s *Store) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (models.User, error) {
	if tokenHash == "" {
		return models.User{}, storage.ErrNotFound
	}
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users u
		WHERE u.reset_token = $1 AND u.reset_expires > $2`, tokenHash, now)
}

func (s *Store) queryUser(ctx context.Context, query string, args ...any) (models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return models.User{}, err
	}
	goals, err := s.listGoals(ctx, user.ID)
	if err != nil {
		return models.User{}, err
	}
	user.Goals = goals
	return user, nil
}

// UpdateUser writes the mutable profile, security and allowance fields.
func (s *Store) UpdateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		UPDATE users SET
			first_name = $2, last_name = $3, username = $4, password_hash = $5, business = $6,
			two_factor_enabled = $7, two_factor_secret = $8, two_factor_temp_secret = $9, two_factor_otp_url = $10,
			is_verified = $11, verification_token = $12, verification_expires = $13,
			reset_token = $14, reset_expires = $15, last_login = $16,
			allowance_amount = $17, allowance_frequency = $18, allowance_last_paid = $19,
			limit_daily = $20, limit_weekly = $21, limit_monthly = $22, budget = $23,
			avatar = $24, theme = $25, notifications = $26, updated_at = NOW()
		WHERE id = $1;`
	tag, err := s.pool.Exec(ctx, query,
		user.ID, user.FirstName, user.LastName, user.Username, user.PasswordHash, user.Business,
		user.TwoFactor.Enabled, user.TwoFactor.Secret, user.TwoFactor.TempSecret, user.TwoFactor.OTPURL,
		user.IsVerified, user.VerificationToken, user.VerificationExpires,
		user.ResetToken, user.ResetExpires, user.LastLogin,
		user.Allowance.Amount, user.Allowance.Frequency, user.Allowance.LastPaid,
		user.SpendingLimit.Daily, user.SpendingLimit.Weekly, user.SpendingLimit.Monthly, user.Budget,
		user.Avatar, user.Preferences.Theme, user.Preferences.Notifications,
	)
	if err != nil {
		return models.User{}, translate(err)
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, storage.ErrNotFound
	}
	return s.GetUser(ctx, user.ID)
}

// ListChildren returns the child accounts linked to parentID.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users u
		WHERE u.parent_id = $1 AND u.role = 'child' ORDER BY u.created_at`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// LinkChild attaches childID to parentID. Children are derived from parent_id.
func (s *Store) LinkChild(ctx context.Context, parentID, childID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET parent_id = $1, updated_at = NOW()
		WHERE id = $2 AND EXISTS (SELECT 1 FROM users p WHERE p.id = $1)`, parentID, childID)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddSpent increments the user's spent total in place.
func (s *Store) AddSpent(ctx context.Context, userID string, amount decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET spent = spent + $2, updated_at = NOW() WHERE id = $1`, userID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AddGoal(ctx context.Context, userID string, goal models.Goal) (models.Goal, error) {
	goal.ID = uuid.NewString()
	_, err := s.pool.Exec(ctx, `INSERT INTO goals (id, user_id, name, target_amount, current_amount, deadline)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		goal.ID, userID, goal.Name, goal.TargetAmount, goal.CurrentAmount, goal.Deadline)
	if err != nil {
		return models.Goal{}, translate(err)
	}
	return goal, nil
}

func (s *Store) UpdateGoalProgress(ctx context.Context, userID, goalID string, amount decimal.Decimal) (models.Goal, error) {
	row := s.pool.QueryRow(ctx, `UPDATE goals SET current_amount = current_amount + $3
		WHERE id = $2 AND user_id = $1
		RETURNING id, name, target_amount, current_amount, deadline`, userID, goalID, amount)
	goal, err := scanGoal(row)
	if err != nil {
		return models.Goal{}, translate(err)
	}
	return goal, nil
}

func (s *Store) listGoals(ctx context.Context, userID string) ([]models.Goal, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, target_amount, current_amount, deadline
		FROM goals WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []models.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}
	return goals, rows.Err()
}

func scanGoal(row pgx.Row) (models.Goal, error) {
	var g models.Goal
	if err := row.Scan(&g.ID, &g.Name, &g.TargetAmount, &g.CurrentAmount, &g.Deadline); err != nil {
		return models.Goal{}, err
	}
	return g, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	var parentID *string
	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Username, &user.Email, &user.PasswordHash, &user.Role,
		&user.Business, &user.DateOfBirth, &parentID,
		&user.TwoFactor.Enabled, &user.TwoFactor.Secret, &user.TwoFactor.TempSecret, &user.TwoFactor.OTPURL,
		&user.IsVerified, &user.VerificationToken, &user.VerificationExpires, &user.ResetToken, &user.ResetExpires, &user.LastLogin,
		&user.Allowance.Amount, &user.Allowance.Frequency, &user.Allowance.LastPaid,
		&user.SpendingLimit.Daily, &user.SpendingLimit.Weekly, &user.SpendingLimit.Monthly, &user.Budget, &user.Spent,
		&user.Avatar, &user.Preferences.Theme, &user.Preferences.Notifications, &user.CreatedAt, &user.UpdatedAt,
		&user.Children,
	)
	if err != nil {
		return models.User{}, translate(err)
	}
	if parentID != nil {
		user.ParentID = *parentID
	}
	return user, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
