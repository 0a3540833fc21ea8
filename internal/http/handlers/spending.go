package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hongminglow/youfin-be/internal/config"
	"github.com/hongminglow/youfin-be/internal/http/respond"
	"github.com/hongminglow/youfin-be/internal/mail"
	"github.com/hongminglow/youfin-be/internal/middleware"
	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/models/dto"
	"github.com/hongminglow/youfin-be/internal/storage"
)

const (
	defaultSpendingRadius = 1000
	defaultCategoryWindow = 30 * 24 * time.Hour
	defaultDailyWindow    = 7
	maxDailyWindow        = 366
)

// SpendingHandler records expenses, parent approvals and spending reports.
type SpendingHandler struct {
	store  storage.Store
	guard  *middleware.Authenticator
	mailer mail.Mailer
	emails *mail.Composer
	cfg    *config.Config
	now    func() time.Time
}

func NewSpendingHandler(store storage.Store, guard *middleware.Authenticator, mailer mail.Mailer, emails *mail.Composer, cfg *config.Config) *SpendingHandler {
	return &SpendingHandler{store: store, guard: guard, mailer: mailer, emails: emails, cfg: cfg, now: time.Now}
}

// Register attaches spending routes to the mux.
func (h *SpendingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/spending", h.guard.Require(h.handleCreate))
	mux.HandleFunc("POST /api/spending/{id}/approve", h.guard.RequireRole(h.handleApprove, models.RoleParent))
	mux.HandleFunc("GET /api/spending/nearby", h.guard.Require(h.handleNearby))
	mux.HandleFunc("GET /api/spending/user/{userId}", h.guard.Require(h.handleList))
	mux.HandleFunc("GET /api/spending/user/{userId}/categories", h.guard.Require(h.handleCategories))
	mux.HandleFunc("GET /api/spending/user/{userId}/daily", h.guard.Require(h.handleDaily))
}

func (h *SpendingHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSpendingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := sessionUser(r)
	switch {
	case !req.Amount.IsPositive():
		respond.Error(w, http.StatusBadRequest, "amount must be greater than zero")
		return
	case !wholeCents(req.Amount):
		respond.Error(w, http.StatusBadRequest, "amount cannot have more than two decimal places")
		return
	case req.Category != "" && !models.ValidSpendingCategory(req.Category):
		respond.Error(w, http.StatusBadRequest, "category must be one of "+strings.Join(models.SpendingCategories, ", "))
		return
	case req.PaymentMethod != "" && !models.ValidPaymentMethod(req.PaymentMethod):
		respond.Error(w, http.StatusBadRequest, "payment method must be one of "+strings.Join(models.PaymentMethods, ", "))
		return
	case len([]rune(req.Description)) > maxDescriptionLength:
		respond.Error(w, http.StatusBadRequest, "description cannot be more than 500 characters")
		return
	}
	business, err := h.store.GetBusiness(r.Context(), req.BusinessID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "Business not found")
			return
		}
		internalError(w, r, "failed to fetch business", err)
		return
	}

	now := h.now().UTC()
	payment := req.PaymentMethod
	if payment == "" {
		payment = "cash"
	}
	needsApproval := models.NeedsParentApproval(user, req.Amount, h.cfg.ApprovalLimit)
	spending := models.Spending{
		UserID:             user.ID,
		BusinessID:         business.ID,
		Amount:             req.Amount,
		Description:        strings.TrimSpace(req.Description),
		Category:           models.CategoryFor(req.Category, business.Type),
		Timestamp:          now,
		Location:           business.Location,
		PaymentMethod:      payment,
		IsApprovedByParent: !needsApproval,
		Tags:               req.Tags,
	}
	if req.ReceiptURL != "" {
		spending.Receipt = &models.Receipt{URL: req.ReceiptURL, UploadedAt: &now}
	}
	created, err := h.store.CreateSpending(r.Context(), spending)
	if err != nil {
		internalError(w, r, "failed to record spending", err)
		return
	}

	if !needsApproval {
		if err := h.store.AddSpent(r.Context(), user.ID, created.Amount); err != nil {
			internalError(w, r, "failed to update spent total", err)
			return
		}
		created.Business = &business
		respond.JSON(w, http.StatusCreated, "spending recorded", created)
		return
	}

	h.notifyParent(r, user, created, business)
	created.Business = &business
	respond.JSON(w, http.StatusCreated, "spending recorded and awaiting parent approval", created)
}

func (h *SpendingHandler) notifyParent(r *http.Request, child models.User, spending models.Spending, business models.Business) {
	if child.ParentID == "" {
		return
	}
	parent, err := h.store.GetUser(r.Context(), child.ParentID)
	if err != nil {
		return
	}
	name := strings.TrimSpace(child.FirstName + " " + child.LastName)
	sendBestEffort(r.Context(), h.mailer, h.emails.ApprovalRequest(parent.Email, name, spending.Amount.StringFixed(2), business.Name))
}

func (h *SpendingHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	parent := sessionUser(r)
	spending, err := h.store.GetSpending(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "spending not found")
			return
		}
		internalError(w, r, "failed to fetch spending", err)
		return
	}
	owner, err := h.store.GetUser(r.Context(), spending.UserID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		internalError(w, r, "failed to fetch user", err)
		return
	}
	if err != nil || owner.ParentID != parent.ID {
		respond.Error(w, http.StatusForbidden, "only the child's parent can approve this spending")
		return
	}
	approved, err := h.store.ApproveSpending(r.Context(), spending.ID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			respond.Error(w, http.StatusConflict, "spending already approved")
			return
		}
		internalError(w, r, "failed to approve spending", err)
		return
	}
	if err := h.store.AddSpent(r.Context(), owner.ID, approved.Amount); err != nil {
		internalError(w, r, "failed to update spent total", err)
		return
	}
	respond.JSON(w, http.StatusOK, "spending approved", approved)
}

// accessibleUser loads the user named by {userId} if the session may read their spending.
func (h *SpendingHandler) accessibleUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	target, err := h.store.GetUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "user not found")
			return models.User{}, false
		}
		internalError(w, r, "failed to fetch user", err)
		return models.User{}, false
	}
	if !canManage(sessionUser(r), target) {
		respond.Error(w, http.StatusForbidden, "not allowed to view this user's spending")
		return models.User{}, false
	}
	return target, true
}

func (h *SpendingHandler) handleList(w http.ResponseWriter, r *http.Request) {
	target, ok := h.accessibleUser(w, r)
	if !ok {
		return
	}
	spending, err := h.store.ListSpendingByUser(r.Context(), target.ID, 0)
	if err != nil {
		internalError(w, r, "failed to list spending", err)
		return
	}
	businesses := map[string]*models.Business{}
	for i := range spending {
		id := spending[i].BusinessID
		b, seen := businesses[id]
		if !seen {
			found, err := h.store.GetBusiness(r.Context(), id)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				internalError(w, r, "failed to fetch business", err)
				return
			}
			if err == nil {
				b = &found
			}
			businesses[id] = b
		}
		spending[i].Business = b
	}
	respond.JSON(w, http.StatusOK, "spending", spending)
}

func (h *SpendingHandler) handleCategories(w http.ResponseWriter, r *http.Request) {
	target, ok := h.accessibleUser(w, r)
	if !ok {
		return
	}
	to := h.now().UTC()
	from := to.Add(-defaultCategoryWindow)
	q := r.URL.Query()
	if raw := q.Get("startDate"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "invalid startDate")
			return
		}
		from = t
	}
	if raw := q.Get("endDate"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "invalid endDate")
			return
		}
		to = t
	}
	if from.After(to) {
		respond.Error(w, http.StatusBadRequest, "startDate must not be after endDate")
		return
	}
	totals, err := h.store.TotalsByCategory(r.Context(), target.ID, from, to)
	if err != nil {
		internalError(w, r, "failed to total spending", err)
		return
	}
	respond.JSON(w, http.StatusOK, "spending by category", totals)
}

func (h *SpendingHandler) handleDaily(w http.ResponseWriter, r *http.Request) {
	target, ok := h.accessibleUser(w, r)
	if !ok {
		return
	}
	days := defaultDailyWindow
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDailyWindow {
			respond.Error(w, http.StatusBadRequest, "days must be between 1 and 366")
			return
		}
		days = n
	}
	today := h.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))
	totals, err := h.store.DailyTotals(r.Context(), target.ID, since)
	if err != nil {
		internalError(w, r, "failed to total spending", err)
		return
	}
	respond.JSON(w, http.StatusOK, "daily spending", totals)
}

// handleNearby lists spending near a point, limited to records the session may read.
func (h *SpendingHandler) handleNearby(w http.ResponseWriter, r *http.Request) {
	p, distance, err := queryPoint(r, defaultSpendingRadius)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	viewer := sessionUser(r)
	found, err := h.store.NearbySpending(r.Context(), p, distance)
	if err != nil {
		internalError(w, r, "failed to find nearby spending", err)
		return
	}
	out := make([]models.Spending, 0, len(found))
	for _, sp := range found {
		if sp.UserID == viewer.ID || viewer.HasChild(sp.UserID) {
			out = append(out, sp)
		}
	}
	respond.JSON(w, http.StatusOK, "nearby spending", out)
}
