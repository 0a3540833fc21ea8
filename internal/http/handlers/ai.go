package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hongminglow/youfin-be/internal/ai"
	"github.com/hongminglow/youfin-be/internal/http/respond"
	"github.com/hongminglow/youfin-be/internal/middleware"
	"github.com/hongminglow/youfin-be/internal/models/dto"
	"github.com/hongminglow/youfin-be/internal/storage"
)

const adviceHistory = 30

// AIHandler exposes expense parsing, advice, predictions and the chat assistant.
type AIHandler struct {
	store   storage.Store
	guard   *middleware.Authenticator
	advisor *ai.Advisor
	now     func() time.Time
}

func NewAIHandler(store storage.Store, guard *middleware.Authenticator, advisor *ai.Advisor) *AIHandler {
	return &AIHandler{store: store, guard: guard, advisor: advisor, now: time.Now}
}

// Register attaches AI routes to the mux.
func (h *AIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ai/process-expense", h.handleProcessExpense)
	mux.HandleFunc("GET /api/ai/advice/{userId}", h.guard.Require(h.handleAdvice))
	mux.HandleFunc("GET /api/ai/predictions/{userId}", h.guard.Require(h.handlePredictions))
	mux.HandleFunc("POST /api/ai/suggest", h.guard.Require(h.handleSuggest))
}

func (h *AIHandler) handleProcessExpense(w http.ResponseWriter, r *http.Request) {
	var req dto.ProcessExpenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respond.Error(w, http.StatusBadRequest, "text is required")
		return
	}
	analysis, err := h.advisor.ProcessExpense(r.Context(), req.Text)
	if err != nil {
		internalError(w, r, "failed to process expense", err)
		return
	}
	respond.JSON(w, http.StatusOK, "expense processed", analysis)
}

func (h *AIHandler) handleAdvice(w http.ResponseWriter, r *http.Request) {
	target, err := h.store.GetUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.userError(w, r, err)
		return
	}
	if !canManage(sessionUser(r), target) {
		respond.Error(w, http.StatusForbidden, "not allowed to view this user's advice")
		return
	}
	history, err := h.store.ListSpendingByUser(r.Context(), target.ID, adviceHistory)
	if err != nil {
		internalError(w, r, "failed to load spending history", err)
		return
	}
	advice, err := h.advisor.Advice(r.Context(), history, target.Budget)
	if err != nil {
		internalError(w, r, "failed to generate advice", err)
		return
	}
	respond.JSON(w, http.StatusOK, "financial advice", advice)
}

func (h *AIHandler) handlePredictions(w http.ResponseWriter, r *http.Request) {
	target, err := h.store.GetUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.userError(w, r, err)
		return
	}
	if !canManage(sessionUser(r), target) {
		respond.Error(w, http.StatusForbidden, "not allowed to view this user's predictions")
		return
	}
	now := h.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	totals, err := h.store.TotalsByCategory(r.Context(), target.ID, monthStart, now)
	if err != nil {
		internalError(w, r, "failed to total spending", err)
		return
	}
	prediction, err := h.advisor.Predict(r.Context(), totals)
	if err != nil {
		internalError(w, r, "failed to generate predictions", err)
		return
	}
	respond.JSON(w, http.StatusOK, "spending predictions", prediction)
}

// handleSuggest answers for the session user. Budget and spent come from the
// request when a budget is supplied, else from the stored account.
func (h *AIHandler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req dto.SuggestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respond.Error(w, http.StatusBadRequest, "message is required")
		return
	}
	user := sessionUser(r)
	budget, spent := user.Budget, user.Spent
	if req.Budget.IsPositive() {
		budget, spent = req.Budget, req.Spent
	}
	respond.JSON(w, http.StatusOK, "suggestion", ai.Suggest(strings.TrimSpace(req.Message), user.ID, budget, spent, h.now().UTC()))
}

func (h *AIHandler) userError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "user not found")
		return
	}
	internalError(w, r, "failed to fetch user", err)
}
