package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hongminglow/youfin-be/internal/auth"
	"github.com/hongminglow/youfin-be/internal/config"
	"github.com/hongminglow/youfin-be/internal/http/respond"
	"github.com/hongminglow/youfin-be/internal/middleware"
	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/models/dto"
	"github.com/hongminglow/youfin-be/internal/storage"
)

// SeedPassword is the password of the demo accounts created by the seed endpoint.
const SeedPassword = "Password123!"

// UserHandler serves profiles, child accounts and savings goals.
type UserHandler struct {
	store storage.UserStore
	guard *middleware.Authenticator
	cfg   *config.Config
	now   func() time.Time
}

func NewUserHandler(store storage.UserStore, guard *middleware.Authenticator, cfg *config.Config) *UserHandler {
	return &UserHandler{store: store, guard: guard, cfg: cfg, now: time.Now}
}

// Register attaches user routes to the mux.
func (h *UserHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users/seed", h.handleSeed)
	mux.HandleFunc("GET /api/users/{id}", h.guard.Require(h.handleGet))
	mux.HandleFunc("PATCH /api/users/{id}", h.guard.Require(h.handleUpdate))
	mux.HandleFunc("POST /api/users/{id}/children", h.guard.RequireRole(h.handleCreateChild, models.RoleParent))
	mux.HandleFunc("GET /api/users/{id}/children", h.guard.Require(h.handleListChildren))
	mux.HandleFunc("POST /api/users/{id}/goals", h.guard.Require(h.handleAddGoal))
	mux.HandleFunc("PATCH /api/users/{id}/goals/{goalId}", h.guard.Require(h.handleGoalProgress))
}

// target loads the user named in the path, answering 404 when missing.
func (h *UserHandler) target(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, err := h.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "user not found")
			return models.User{}, false
		}
		internalError(w, r, "failed to fetch user", err)
		return models.User{}, false
	}
	return user, true
}

func (h *UserHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := h.target(w, r)
	if !ok {
		return
	}
	if !canView(sessionUser(r), user) {
		respond.Error(w, http.StatusForbidden, "not allowed to view this user")
		return
	}
	respond.JSON(w, http.StatusOK, "user", user)
}

func (h *UserHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	viewer := sessionUser(r)
	if viewer.ID != r.PathValue("id") {
		respond.Error(w, http.StatusForbidden, "you can only update your own profile")
		return
	}
	var req dto.UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := viewer
	if req.FirstName != nil {
		if !validName(*req.FirstName) {
			respond.Error(w, http.StatusBadRequest, "first name must be at least 2 characters")
			return
		}
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		if !validName(*req.LastName) {
			respond.Error(w, http.StatusBadRequest, "last name must be at least 2 characters")
			return
		}
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Username != nil {
		user.Username = strings.TrimSpace(*req.Username)
	}
	if req.Avatar != nil {
		user.Avatar = strings.TrimSpace(*req.Avatar)
		if user.Avatar == "" {
			user.Avatar = models.DefaultAvatar
		}
	}
	if req.Budget != nil {
		if req.Budget.IsNegative() {
			respond.Error(w, http.StatusBadRequest, "budget cannot be negative")
			return
		}
		if !wholeCents(*req.Budget) {
			respond.Error(w, http.StatusBadRequest, "budget cannot have more than two decimal places")
			return
		}
		user.Budget = *req.Budget
	}
	if req.Preferences != nil {
		if req.Preferences.Theme != "light" && req.Preferences.Theme != "dark" {
			respond.Error(w, http.StatusBadRequest, "theme must be light or dark")
			return
		}
		user.Preferences = *req.Preferences
	}
	updated, err := h.store.UpdateUser(r.Context(), user)
	if err != nil {
		internalError(w, r, "failed to update user", err)
		return
	}
	respond.JSON(w, http.StatusOK, "user updated", updated)
}

func (h *UserHandler) handleCreateChild(w http.ResponseWriter, r *http.Request) {
	parent := sessionUser(r)
	if parent.ID != r.PathValue("id") {
		respond.Error(w, http.StatusForbidden, "you can only add children to your own account")
		return
	}
	var req dto.CreateChildRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	switch {
	case !validName(req.FirstName) || !validName(req.LastName):
		respond.Error(w, http.StatusBadRequest, "first and last name must be at least 2 characters")
		return
	case !validEmail(email):
		respond.Error(w, http.StatusBadRequest, "please provide a valid email")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	born, err := childBirthDate(req.DateOfBirth, h.now())
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		internalError(w, r, "failed to hash password", err)
		return
	}
	child, err := h.store.CreateUser(r.Context(), models.User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Username:     strings.TrimSpace(req.Username),
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleChild,
		DateOfBirth:  &born,
		ParentID:     parent.ID,
		IsVerified:   true,
		Avatar:       models.DefaultAvatar,
		Preferences:  models.DefaultPreferences(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			respond.Error(w, http.StatusBadRequest, "user already exists")
			return
		}
		internalError(w, r, "failed to create child", err)
		return
	}
	if err := h.store.LinkChild(r.Context(), parent.ID, child.ID); err != nil {
		internalError(w, r, "failed to link child account", err)
		return
	}
	respond.JSON(w, http.StatusCreated, "child account created", child)
}

func (h *UserHandler) handleListChildren(w http.ResponseWriter, r *http.Request) {
	if sessionUser(r).ID != r.PathValue("id") {
		respond.Error(w, http.StatusForbidden, "you can only list your own children")
		return
	}
	children, err := h.store.ListChildren(r.Context(), r.PathValue("id"))
	if err != nil {
		internalError(w, r, "failed to load children", err)
		return
	}
	respond.JSON(w, http.StatusOK, "children", children)
}

func (h *UserHandler) handleAddGoal(w http.ResponseWriter, r *http.Request) {
	user, ok := h.target(w, r)
	if !ok {
		return
	}
	if !canManage(sessionUser(r), user) {
		respond.Error(w, http.StatusForbidden, "not allowed to manage this user's goals")
		return
	}
	var req dto.GoalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch {
	case strings.TrimSpace(req.Name) == "":
		respond.Error(w, http.StatusBadRequest, "goal name is required")
		return
	case !req.TargetAmount.IsPositive():
		respond.Error(w, http.StatusBadRequest, "target amount must be greater than zero")
		return
	case req.CurrentAmount.IsNegative():
		respond.Error(w, http.StatusBadRequest, "current amount cannot be negative")
		return
	case !wholeCents(req.TargetAmount, req.CurrentAmount):
		respond.Error(w, http.StatusBadRequest, "amounts cannot have more than two decimal places")
		return
	}
	goal, err := h.store.AddGoal(r.Context(), user.ID, models.Goal{
		Name:          strings.TrimSpace(req.Name),
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		Deadline:      req.Deadline,
	})
	if err != nil {
		internalError(w, r, "failed to add goal", err)
		return
	}
	respond.JSON(w, http.StatusCreated, "goal added", goal)
}

func (h *UserHandler) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	user, ok := h.target(w, r)
	if !ok {
		return
	}
	if !canManage(sessionUser(r), user) {
		respond.Error(w, http.StatusForbidden, "not allowed to manage this user's goals")
		return
	}
	var req dto.GoalProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch {
	case !req.Amount.IsPositive():
		respond.Error(w, http.StatusBadRequest, "amount must be greater than zero")
		return
	case !wholeCents(req.Amount):
		respond.Error(w, http.StatusBadRequest, "amount cannot have more than two decimal places")
		return
	}
	goal, err := h.store.UpdateGoalProgress(r.Context(), user.ID, r.PathValue("goalId"), req.Amount)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "goal not found")
			return
		}
		internalError(w, r, "failed to update goal", err)
		return
	}
	respond.JSON(w, http.StatusOK, "goal updated", goal)
}

func (h *UserHandler) handleSeed(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.IsDevelopment() {
		respond.Error(w, http.StatusForbidden, "seeding is only available in development")
		return
	}
	if _, err := h.store.FindByEmail(r.Context(), "parent@demo.com"); err == nil {
		respond.Error(w, http.StatusBadRequest, "seed data already present")
		return
	}
	hash, err := auth.HashPassword(SeedPassword)
	if err != nil {
		internalError(w, r, "failed to hash password", err)
		return
	}
	now := h.now().UTC()
	born := now.AddDate(-12, 0, 0)
	deadline := now.AddDate(0, 6, 0)

	base := func(first, email, role string) models.User {
		return models.User{
			FirstName:    first,
			LastName:     "Demo",
			Email:        email,
			PasswordHash: hash,
			Role:         role,
			IsVerified:   true,
			Avatar:       models.DefaultAvatar,
			Preferences:  models.DefaultPreferences(),
		}
	}

	parent := base("Parent", "parent@demo.com", models.RoleParent)
	parent.Budget = decimal.NewFromInt(1000)
	parent, err = h.store.CreateUser(r.Context(), parent)
	if err != nil {
		internalError(w, r, "failed to seed users", err)
		return
	}

	child := base("Child", "child@demo.com", models.RoleChild)
	child.Budget = decimal.NewFromInt(100)
	child.DateOfBirth = &born
	child.ParentID = parent.ID
	child, err = h.store.CreateUser(r.Context(), child)
	if err != nil {
		internalError(w, r, "failed to seed users", err)
		return
	}
	if err := h.store.LinkChild(r.Context(), parent.ID, child.ID); err != nil {
		internalError(w, r, "failed to seed users", err)
		return
	}
	if err := h.store.AddSpent(r.Context(), child.ID, decimal.NewFromInt(30)); err != nil {
		internalError(w, r, "failed to seed users", err)
		return
	}
	if child, err = h.store.GetUser(r.Context(), child.ID); err != nil {
		internalError(w, r, "failed to seed users", err)
		return
	}
	if _, err := h.store.AddGoal(r.Context(), child.ID, models.Goal{
		Name:          "New Phone",
		TargetAmount:  decimal.NewFromInt(500),
		CurrentAmount: decimal.NewFromInt(200),
		Deadline:      &deadline,
	}); err != nil {
		internalError(w, r, "failed to seed users", err)
		return
	}

	business := base("Business", "business@demo.com", models.RoleBusiness)
	business.Business = &models.BusinessProfile{
		Name:        "Demo Business",
		Type:        "food",
		Address:     models.Address{Street: "Rruga Myslym Shyri", City: "Tirana", State: "Tirana", ZipCode: "1001", Country: "Albania"},
		Description: "Demo business account",
	}
	if business, err = h.store.CreateUser(r.Context(), business); err != nil {
		internalError(w, r, "failed to seed users", err)
		return
	}

	respond.JSON(w, http.StatusCreated, "Seed data inserted successfully", []dto.UserResponse{
		dto.NewUserResponse(parent),
		dto.NewUserResponse(child),
		dto.NewUserResponse(business),
	})
}
