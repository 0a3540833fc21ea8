package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/youfin-be/internal/auth"
	"github.com/hongminglow/youfin-be/internal/config"
	"github.com/hongminglow/youfin-be/internal/http/respond"
	"github.com/hongminglow/youfin-be/internal/mail"
	"github.com/hongminglow/youfin-be/internal/middleware"
	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/models/dto"
	"github.com/hongminglow/youfin-be/internal/storage"
)

const (
	verificationTTL = 24 * time.Hour
	resetTTL        = time.Hour
)

// AuthHandler owns registration, login, password recovery and two-factor endpoints.
type AuthHandler struct {
	store    storage.UserStore
	sessions *Sessions
	guard    *middleware.Authenticator
	mailer   mail.Mailer
	emails   *mail.Composer
	cfg      *config.Config
	limiter  *middleware.RateLimiter
	now      func() time.Time
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(store storage.UserStore, sessions *Sessions, guard *middleware.Authenticator, mailer mail.Mailer, emails *mail.Composer, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		store:    store,
		sessions: sessions,
		guard:    guard,
		mailer:   mailer,
		emails:   emails,
		cfg:      cfg,
		now:      time.Now,
	}
}

// LimitCredentials throttles the endpoints that accept credentials.
func (h *AuthHandler) LimitCredentials(l *middleware.RateLimiter) *AuthHandler {
	h.limiter = l
	return h
}

// Register attaches auth routes to the mux.
func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/auth/register", h.throttled(h.handleRegister))
	mux.Handle("POST /api/auth/login", h.throttled(h.handleLogin))
	mux.Handle("POST /api/auth/validate-2fa", h.throttled(h.handleValidate2FA))
	mux.Handle("POST /api/auth/forgot-password", h.throttled(h.handleForgotPassword))
	mux.HandleFunc("POST /api/auth/reset-password/{token}", h.handleResetPassword)
	mux.HandleFunc("GET /api/auth/verify-email/{token}", h.handleVerifyEmail)
	mux.HandleFunc("POST /api/auth/check-email", h.handleCheckEmail)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)

	mux.HandleFunc("GET /api/auth/me", h.guard.Require(h.handleMe))
	mux.HandleFunc("GET /api/auth/children", h.guard.RequireRole(h.handleChildren, models.RoleParent))
	mux.HandleFunc("PATCH /api/auth/update-password", h.guard.Require(h.handleUpdatePassword))
	mux.HandleFunc("PATCH /api/auth/update-allowance", h.guard.RequireRole(h.handleUpdateAllowance, models.RoleParent))
	mux.HandleFunc("PATCH /api/auth/update-spending-limits", h.guard.RequireRole(h.handleUpdateSpendingLimits, models.RoleParent))

	mux.HandleFunc("POST /api/auth/2fa/generate", h.guard.Require(h.handleGenerate2FA))
	mux.HandleFunc("POST /api/auth/2fa/verify", h.guard.Require(h.handleVerify2FA))
	mux.HandleFunc("POST /api/auth/2fa/disable", h.guard.Require(h.handleDisable2FA))
}

func (h *AuthHandler) throttled(fn http.HandlerFunc) http.Handler {
	if h.limiter == nil {
		return fn
	}
	return h.limiter.Middleware(fn)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, parent, err := h.newAccount(r, req)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.store.FindByEmail(r.Context(), user.Email); err == nil {
		respond.Error(w, http.StatusBadRequest, "user already exists")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		internalError(w, r, "failed to create user", err)
		return
	}

	user.PasswordHash, err = auth.HashPassword(req.Password)
	if err != nil {
		internalError(w, r, "failed to hash password", err)
		return
	}
	rawToken, tokenHash, err := auth.NewOneTimeToken()
	if err != nil {
		internalError(w, r, "failed to create verification token", err)
		return
	}
	if h.cfg.AutoVerify {
		user.IsVerified = true
	} else {
		expires := h.now().Add(verificationTTL)
		user.VerificationToken = tokenHash
		user.VerificationExpires = &expires
	}

	created, err := h.store.CreateUser(r.Context(), user)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			respond.Error(w, http.StatusBadRequest, "user already exists")
			return
		}
		internalError(w, r, "failed to create user", err)
		return
	}
	if parent != nil {
		if err := h.store.LinkChild(r.Context(), parent.ID, created.ID); err != nil {
			internalError(w, r, "failed to link child account", err)
			return
		}
	}

	message := "User registered successfully"
	if h.cfg.AutoVerify {
		zap.L().Debug("account auto-verified", zap.String("user_id", created.ID), zap.String("verification_token", rawToken))
	} else if !sendBestEffort(r.Context(), h.mailer, h.emails.Verification(created.Email, rawToken)) {
		message = "Registration successful, but we could not send a verification email; please request a new one later"
	}

	token, err := h.sessions.issue(w, created)
	if err != nil {
		internalError(w, r, "failed to generate token", err)
		return
	}
	respond.Session(w, http.StatusCreated, message, dto.LoginResponse{
		Token: token,
		User:  dto.NewUserResponse(created),
	})
}

// newAccount validates a registration request and builds the user to persist.
// For child accounts it also resolves the parent.
func (h *AuthHandler) newAccount(r *http.Request, req dto.RegisterRequest) (models.User, *models.User, error) {
	email := normalizeEmail(req.Email)
	switch {
	case !validName(req.FirstName):
		return models.User{}, nil, errors.New("first name must be at least 2 characters")
	case !validName(req.LastName):
		return models.User{}, nil, errors.New("last name must be at least 2 characters")
	case !validEmail(email):
		return models.User{}, nil, errors.New("please provide a valid email")
	case req.ConfirmPassword != "" && req.ConfirmPassword != req.Password:
		return models.User{}, nil, errors.New("passwords do not match")
	case !models.ValidRole(req.Role):
		return models.User{}, nil, errors.New("role must be one of business, parent or child")
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return models.User{}, nil, err
	}

	user := models.User{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Username:    strings.TrimSpace(req.Username),
		Email:       email,
		Role:        req.Role,
		Avatar:      models.DefaultAvatar,
		Preferences: models.DefaultPreferences(),
	}

	var parent *models.User
	switch req.Role {
	case models.RoleBusiness:
		a := req.Address
		switch {
		case strings.TrimSpace(req.BusinessName) == "":
			return models.User{}, nil, errors.New("business name is required")
		case !models.ValidBusinessProfileType(req.BusinessType):
			return models.User{}, nil, errors.New("business type must be one of " + strings.Join(models.BusinessProfileTypes, ", "))
		case a.Street == "" || a.City == "" || a.State == "" || a.ZipCode == "" || a.Country == "":
			return models.User{}, nil, errors.New("complete business address is required")
		case len([]rune(req.Description)) > maxDescriptionLength:
			return models.User{}, nil, errors.New("description cannot be more than 500 characters")
		}
		user.Business = &models.BusinessProfile{
			Name:        strings.TrimSpace(req.BusinessName),
			Type:        req.BusinessType,
			Address:     a,
			Description: strings.TrimSpace(req.Description),
		}
	case models.RoleChild:
		born, err := childBirthDate(req.DateOfBirth, h.now())
		if err != nil {
			return models.User{}, nil, err
		}
		if strings.TrimSpace(req.ParentID) == "" {
			return models.User{}, nil, errors.New("parent ID is required for child accounts")
		}
		found, err := h.store.GetUser(r.Context(), strings.TrimSpace(req.ParentID))
		if err != nil || !found.IsParent() {
			return models.User{}, nil, errors.New("parent account not found")
		}
		user.DateOfBirth = &born
		user.ParentID = found.ID
		parent = &found
	}
	return user, parent, nil
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, "please provide an email and password")
		return
	}
	user, err := h.store.FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		internalError(w, r, "failed to fetch user", err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respond.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !user.IsVerified {
		respond.Error(w, http.StatusUnauthorized, "please verify your email before logging in")
		return
	}
	if user.TwoFactor.Enabled {
		respond.JSON(w, http.StatusOK, "two-factor authentication required", dto.TwoFactorChallenge{
			Requires2FA: true,
			UserID:      user.ID,
		})
		return
	}
	h.completeLogin(w, r, user, "login successful")
}

// completeLogin records the login time and issues the session.
func (h *AuthHandler) completeLogin(w http.ResponseWriter, r *http.Request, user models.User, message string) {
	now := h.now().UTC()
	user.LastLogin = &now
	updated, err := h.store.UpdateUser(r.Context(), user)
	if err != nil {
		internalError(w, r, "failed to update user", err)
		return
	}
	token, err := h.sessions.issue(w, updated)
	if err != nil {
		internalError(w, r, "failed to generate token", err)
		return
	}
	respond.Session(w, http.StatusOK, message, dto.LoginResponse{Token: token, User: dto.NewUserResponse(updated)})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, _ *http.Request) {
	h.sessions.clear(w)
	respond.JSON(w, http.StatusOK, "logged out", nil)
}

func (h *AuthHandler) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		respond.Error(w, http.StatusBadRequest, "please provide a valid email")
		return
	}
	_, err := h.store.FindByEmail(r.Context(), email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		internalError(w, r, "failed to check email", err)
		return
	}
	respond.JSON(w, http.StatusOK, "email checked", dto.CheckEmailResponse{Exists: err == nil})
}

func (h *AuthHandler) handleValidate2FA(w http.ResponseWriter, r *http.Request) {
	var req dto.Validate2FARequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Token == "" {
		respond.Error(w, http.StatusBadRequest, "userId and token are required")
		return
	}
	user, err := h.store.GetUser(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "user not found")
			return
		}
		internalError(w, r, "failed to fetch user", err)
		return
	}
	if !user.TwoFactor.Enabled {
		respond.Error(w, http.StatusBadRequest, "two-factor authentication is not enabled")
		return
	}
	if !auth.ValidateTOTP(req.Token, user.TwoFactor.Secret, h.now()) {
		respond.Error(w, http.StatusBadRequest, "invalid two-factor code")
		return
	}
	h.completeLogin(w, r, user, "login successful")
}

func (h *AuthHandler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	hash := auth.HashOneTimeToken(r.PathValue("token"))
	user, err := h.store.FindByVerificationToken(r.Context(), hash, h.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusBadRequest, "invalid or expired verification token")
			return
		}
		internalError(w, r, "failed to verify email", err)
		return
	}
	user.IsVerified = true
	user.VerificationToken = ""
	user.VerificationExpires = nil
	if _, err := h.store.UpdateUser(r.Context(), user); err != nil {
		internalError(w, r, "failed to verify email", err)
		return
	}
	respond.JSON(w, http.StatusOK, "Email verified successfully", nil)
}

func (h *AuthHandler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		respond.Error(w, http.StatusBadRequest, "please provide a valid email")
		return
	}
	user, err := h.store.FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "there is no user with that email")
			return
		}
		internalError(w, r, "failed to fetch user", err)
		return
	}
	raw, hash, err := auth.NewOneTimeToken()
	if err != nil {
		internalError(w, r, "failed to create reset token", err)
		return
	}
	expires := h.now().Add(resetTTL)
	user.ResetToken = hash
	user.ResetExpires = &expires
	if _, err := h.store.UpdateUser(r.Context(), user); err != nil {
		internalError(w, r, "failed to save reset token", err)
		return
	}
	if !sendBestEffort(r.Context(), h.mailer, h.emails.PasswordReset(user.Email, raw)) {
		respond.JSON(w, http.StatusOK, "reset token generated, but the email could not be sent; please try again later", nil)
		return
	}
	respond.JSON(w, http.StatusOK, "password reset email sent", nil)
}

func (h *AuthHandler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hash := auth.HashOneTimeToken(r.PathValue("token"))
	user, err := h.store.FindByResetToken(r.Context(), hash, h.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusBadRequest, "invalid or expired reset token")
			return
		}
		internalError(w, r, "failed to reset password", err)
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		respond.Error(w, http.StatusBadRequest, "passwords do not match")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	user.PasswordHash, err = auth.HashPassword(req.Password)
	if err != nil {
		internalError(w, r, "failed to hash password", err)
		return
	}
	user.ResetToken = ""
	user.ResetExpires = nil
	updated, err := h.store.UpdateUser(r.Context(), user)
	if err != nil {
		internalError(w, r, "failed to reset password", err)
		return
	}
	token, err := h.sessions.issue(w, updated)
	if err != nil {
		internalError(w, r, "failed to generate token", err)
		return
	}
	respond.Session(w, http.StatusOK, "password reset successful", dto.LoginResponse{Token: token, User: dto.NewUserResponse(updated)})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	out := dto.NewUserResponse(user)
	switch {
	case user.IsParent():
		children, err := h.store.ListChildren(r.Context(), user.ID)
		if err != nil {
			internalError(w, r, "failed to load children", err)
			return
		}
		for _, c := range children {
			out.Children = append(out.Children, dto.NewUserResponse(c))
		}
	case user.IsChild() && user.ParentID != "":
		parent, err := h.store.GetUser(r.Context(), user.ParentID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			internalError(w, r, "failed to load parent", err)
			return
		}
		if err == nil {
			p := dto.NewUserResponse(parent)
			out.Parent = &p
		}
	}
	respond.JSON(w, http.StatusOK, "current user", out)
}

func (h *AuthHandler) handleChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.store.ListChildren(r.Context(), sessionUser(r).ID)
	if err != nil {
		internalError(w, r, "failed to load children", err)
		return
	}
	respond.JSON(w, http.StatusOK, "children", children)
}

func (h *AuthHandler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdatePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := sessionUser(r)
	if req.CurrentPassword == "" || req.NewPassword == "" {
		respond.Error(w, http.StatusBadRequest, "current and new password are required")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		respond.Error(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		internalError(w, r, "failed to hash password", err)
		return
	}
	user.PasswordHash = hash
	updated, err := h.store.UpdateUser(r.Context(), user)
	if err != nil {
		internalError(w, r, "failed to update password", err)
		return
	}
	token, err := h.sessions.issue(w, updated)
	if err != nil {
		internalError(w, r, "failed to generate token", err)
		return
	}
	respond.Session(w, http.StatusOK, "password updated", dto.LoginResponse{Token: token, User: dto.NewUserResponse(updated)})
}

// ownChild loads childID and checks it belongs to the session parent.
func (h *AuthHandler) ownChild(w http.ResponseWriter, r *http.Request, childID string) (models.User, bool) {
	parent := sessionUser(r)
	child, err := h.store.GetUser(r.Context(), childID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		internalError(w, r, "failed to fetch child", err)
		return models.User{}, false
	}
	if err != nil || !child.IsChild() || child.ParentID != parent.ID {
		respond.Error(w, http.StatusNotFound, "child not found or not associated with this parent")
		return models.User{}, false
	}
	return child, true
}

func (h *AuthHandler) handleUpdateAllowance(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateAllowanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount.IsNegative() {
		respond.Error(w, http.StatusBadRequest, "allowance amount cannot be negative")
		return
	}
	if !wholeCents(req.Amount) {
		respond.Error(w, http.StatusBadRequest, "allowance amount cannot have more than two decimal places")
		return
	}
	if !models.ValidAllowanceFrequency(req.Frequency) {
		respond.Error(w, http.StatusBadRequest, "frequency must be one of daily, weekly or monthly")
		return
	}
	child, ok := h.ownChild(w, r, req.ChildID)
	if !ok {
		return
	}
	child.Allowance.Amount = req.Amount
	child.Allowance.Frequency = req.Frequency
	updated, err := h.store.UpdateUser(r.Context(), child)
	if err != nil {
		internalError(w, r, "failed to update allowance", err)
		return
	}
	respond.JSON(w, http.StatusOK, "allowance updated", updated)
}

func (h *AuthHandler) handleUpdateSpendingLimits(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateSpendingLimitsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Daily.IsNegative() || req.Weekly.IsNegative() || req.Monthly.IsNegative() {
		respond.Error(w, http.StatusBadRequest, "spending limits cannot be negative")
		return
	}
	if !wholeCents(req.Daily, req.Weekly, req.Monthly) {
		respond.Error(w, http.StatusBadRequest, "spending limits cannot have more than two decimal places")
		return
	}
	child, ok := h.ownChild(w, r, req.ChildID)
	if !ok {
		return
	}
	child.SpendingLimit = models.SpendingLimit{Daily: req.Daily, Weekly: req.Weekly, Monthly: req.Monthly}
	updated, err := h.store.UpdateUser(r.Context(), child)
	if err != nil {
		internalError(w, r, "failed to update spending limits", err)
		return
	}
	respond.JSON(w, http.StatusOK, "spending limits updated", updated)
}

func (h *AuthHandler) handleGenerate2FA(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	enrollment, err := auth.NewEnrollment(user.Email)
	if err != nil {
		internalError(w, r, "failed to generate two-factor secret", err)
		return
	}
	user.TwoFactor.TempSecret = enrollment.Secret
	user.TwoFactor.OTPURL = enrollment.OTPURL
	if _, err := h.store.UpdateUser(r.Context(), user); err != nil {
		internalError(w, r, "failed to save two-factor secret", err)
		return
	}
	sendBestEffort(r.Context(), h.mailer, h.emails.TwoFactorSetup(user.Email))
	respond.JSON(w, http.StatusOK, "scan the QR code with your authenticator app", dto.TwoFactorSetup{
		OTPURL:  enrollment.OTPURL,
		DataURL: enrollment.DataURL,
		Secret:  enrollment.Secret,
	})
}

func (h *AuthHandler) handleVerify2FA(w http.ResponseWriter, r *http.Request) {
	var req dto.TwoFactorCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := sessionUser(r)
	if user.TwoFactor.TempSecret == "" {
		respond.Error(w, http.StatusBadRequest, "two-factor setup has not been started")
		return
	}
	if !auth.ValidateTOTP(req.Token, user.TwoFactor.TempSecret, h.now()) {
		respond.Error(w, http.StatusBadRequest, "invalid two-factor code")
		return
	}
	user.TwoFactor.Secret = user.TwoFactor.TempSecret
	user.TwoFactor.TempSecret = ""
	user.TwoFactor.Enabled = true
	updated, err := h.store.UpdateUser(r.Context(), user)
	if err != nil {
		internalError(w, r, "failed to enable two-factor authentication", err)
		return
	}
	respond.JSON(w, http.StatusOK, "two-factor authentication enabled", dto.NewUserResponse(updated))
}

func (h *AuthHandler) handleDisable2FA(w http.ResponseWriter, r *http.Request) {
	var req dto.TwoFactorCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := sessionUser(r)
	if !user.TwoFactor.Enabled {
		respond.Error(w, http.StatusBadRequest, "two-factor authentication is not enabled")
		return
	}
	if !auth.ValidateTOTP(req.Token, user.TwoFactor.Secret, h.now()) {
		respond.Error(w, http.StatusBadRequest, "invalid two-factor code")
		return
	}
	user.TwoFactor = models.TwoFactorAuth{}
	updated, err := h.store.UpdateUser(r.Context(), user)
	if err != nil {
		internalError(w, r, "failed to disable two-factor authentication", err)
		return
	}
	respond.JSON(w, http.StatusOK, "two-factor authentication disabled", dto.NewUserResponse(updated))
}
