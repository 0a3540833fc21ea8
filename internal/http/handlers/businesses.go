package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hongminglow/youfin-be/internal/ai"
	"github.com/hongminglow/youfin-be/internal/config"
	"github.com/hongminglow/youfin-be/internal/http/respond"
	"github.com/hongminglow/youfin-be/internal/middleware"
	"github.com/hongminglow/youfin-be/internal/models"
	"github.com/hongminglow/youfin-be/internal/models/dto"
	"github.com/hongminglow/youfin-be/internal/storage"
)

const (
	defaultBusinessRadius = 5000
	catchDealRadius       = 100
	catchDealHistory      = 10
)

// BusinessStore is what the business handler needs from persistence.
type BusinessStore interface {
	storage.BusinessStore
	ListSpendingByUser(ctx context.Context, userID string, limit int) ([]models.Spending, error)
}

// BusinessHandler serves the business directory, offers and deal catching.
type BusinessHandler struct {
	store   BusinessStore
	guard   *middleware.Authenticator
	advisor *ai.Advisor
	cfg     *config.Config
	now     func() time.Time
}

func NewBusinessHandler(store BusinessStore, guard *middleware.Authenticator, advisor *ai.Advisor, cfg *config.Config) *BusinessHandler {
	return &BusinessHandler{store: store, guard: guard, advisor: advisor, cfg: cfg, now: time.Now}
}

// Register attaches business routes to the mux.
func (h *BusinessHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/businesses", h.handleList)
	mux.HandleFunc("GET /api/businesses/nearby", h.handleNearby)
	mux.HandleFunc("GET /api/businesses/offers", h.handleOffers)
	mux.HandleFunc("GET /api/businesses/type/{type}", h.handleByType)
	mux.HandleFunc("GET /api/businesses/{id}", h.handleGet)
	mux.HandleFunc("POST /api/businesses", h.guard.Require(h.handleCreate))
	mux.HandleFunc("POST /api/businesses/{id}/offers", h.guard.Require(h.handleAddOffer))
	mux.HandleFunc("POST /api/businesses/seed", h.handleSeed)
	mux.HandleFunc("POST /api/businesses/catch-deal", h.guard.Require(h.handleCatchDeal))
	mux.HandleFunc("POST /api/businesses/analyze-deal", h.handleAnalyzeDeal)
}

func (h *BusinessHandler) handleList(w http.ResponseWriter, r *http.Request) {
	businesses, err := h.store.ListBusinesses(r.Context())
	if err != nil {
		internalError(w, r, "failed to list businesses", err)
		return
	}
	respond.JSON(w, http.StatusOK, "businesses", businesses)
}

func (h *BusinessHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	business, err := h.store.GetBusiness(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "Business not found")
			return
		}
		internalError(w, r, "failed to fetch business", err)
		return
	}
	respond.JSON(w, http.StatusOK, "business", business)
}

func (h *BusinessHandler) handleByType(w http.ResponseWriter, r *http.Request) {
	businessType := r.PathValue("type")
	if !models.ValidBusinessType(businessType) {
		respond.Error(w, http.StatusBadRequest, "type must be one of "+strings.Join(models.BusinessTypes, ", "))
		return
	}
	businesses, err := h.store.ListBusinessesByType(r.Context(), businessType)
	if err != nil {
		internalError(w, r, "failed to list businesses", err)
		return
	}
	respond.JSON(w, http.StatusOK, "businesses", businesses)
}

func (h *BusinessHandler) handleNearby(w http.ResponseWriter, r *http.Request) {
	p, distance, err := queryPoint(r, defaultBusinessRadius)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	businesses, err := h.store.NearbyBusinesses(r.Context(), p, distance)
	if err != nil {
		internalError(w, r, "failed to find nearby businesses", err)
		return
	}
	respond.JSON(w, http.StatusOK, "nearby businesses", businesses)
}

func (h *BusinessHandler) handleOffers(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	businesses, err := h.store.ListWithActiveOffers(r.Context(), now)
	if err != nil {
		internalError(w, r, "failed to list offers", err)
		return
	}
	out := make([]dto.BusinessOffers, 0, len(businesses))
	for _, b := range businesses {
		out = append(out, dto.BusinessOffers{
			BusinessID:   b.ID,
			BusinessName: b.Name,
			Offers:       b.ActiveOffers(now),
		})
	}
	respond.JSON(w, http.StatusOK, "active offers", out)
}

func (h *BusinessHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBusinessRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	business, err := newBusiness(req)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.store.CreateBusiness(r.Context(), business)
	if err != nil {
		internalError(w, r, "failed to create business", err)
		return
	}
	respond.JSON(w, http.StatusCreated, "business created", created)
}

func newBusiness(req dto.CreateBusinessRequest) (models.Business, error) {
	p := models.Point{Lat: req.Lat, Lng: req.Lng}
	switch {
	case strings.TrimSpace(req.Name) == "":
		return models.Business{}, errors.New("business name is required")
	case !models.ValidBusinessType(req.Type):
		return models.Business{}, errors.New("type must be one of " + strings.Join(models.BusinessTypes, ", "))
	case !p.Valid():
		return models.Business{}, errors.New("coordinates out of range")
	case req.Rating < 0 || req.Rating > 5:
		return models.Business{}, errors.New("rating must be between 0 and 5")
	case req.PriceLevel != 0 && (req.PriceLevel < 1 || req.PriceLevel > 3):
		return models.Business{}, errors.New("price level must be between 1 and 3")
	case len([]rune(req.Description)) > maxDescriptionLength:
		return models.Business{}, errors.New("description cannot be more than 500 characters")
	}
	address := req.Address
	if address.Country == "" {
		address.Country = "Albania"
	}
	priceLevel := req.PriceLevel
	if priceLevel == 0 {
		priceLevel = 1
	}
	return models.Business{
		Name:           strings.TrimSpace(req.Name),
		Type:           req.Type,
		Location:       p,
		Address:        address,
		Description:    strings.TrimSpace(req.Description),
		BudgetCategory: req.BudgetCategory,
		Offers:         []models.Offer{},
		RaiffeisenInfo: req.RaiffeisenInfo,
		OperatingHours: req.OperatingHours,
		Rating:         req.Rating,
		PriceLevel:     priceLevel,
	}, nil
}

func (h *BusinessHandler) handleAddOffer(w http.ResponseWriter, r *http.Request) {
	var req dto.OfferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respond.Error(w, http.StatusBadRequest, "offer title is required")
		return
	}
	if !req.ValidUntil.After(h.now()) {
		respond.Error(w, http.StatusBadRequest, "validUntil must be in the future")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	offer, err := h.store.AddOffer(r.Context(), r.PathValue("id"), models.Offer{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Discount:    strings.TrimSpace(req.Discount),
		ValidUntil:  req.ValidUntil.UTC(),
		IsActive:    active,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "Business not found")
			return
		}
		internalError(w, r, "failed to add offer", err)
		return
	}
	respond.JSON(w, http.StatusCreated, "offer added", offer)
}

func (h *BusinessHandler) handleCatchDeal(w http.ResponseWriter, r *http.Request) {
	var req dto.CatchDealRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := sessionUser(r)
	business, err := h.store.GetBusiness(r.Context(), req.BusinessID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "Business not found")
			return
		}
		internalError(w, r, "failed to fetch business", err)
		return
	}
	now := h.now()
	offer, found := business.FindOffer(req.OfferID)
	if !found || !offer.Live(now) {
		respond.Error(w, http.StatusBadRequest, "Offer not available")
		return
	}
	requester := models.Point{Lat: req.Location[0], Lng: req.Location[1]}
	if !requester.Valid() {
		respond.Error(w, http.StatusBadRequest, "location must be [lat, lng]")
		return
	}
	if models.DistanceMeters(requester, business.Location) > catchDealRadius {
		respond.Error(w, http.StatusBadRequest, "Too far from the business to catch this deal")
		return
	}

	claimed, err := h.store.ClaimOffer(r.Context(), business.ID, offer.ID, user.ID, now)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusBadRequest, "Offer not available")
			return
		}
		internalError(w, r, "failed to claim offer", err)
		return
	}
	history, err := h.store.ListSpendingByUser(r.Context(), user.ID, catchDealHistory)
	if err != nil {
		internalError(w, r, "failed to load spending history", err)
		return
	}
	respond.JSON(w, http.StatusOK, "Deal caught successfully!", dto.CatchDealResponse{
		Offer:       claimed,
		Type:        business.Type,
		UserHistory: history,
	})
}

func (h *BusinessHandler) handleAnalyzeDeal(w http.ResponseWriter, r *http.Request) {
	var req dto.AnalyzeDealRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DealType) == "" {
		respond.Error(w, http.StatusBadRequest, "dealType is required")
		return
	}
	history := make([]ai.Purchase, 0, len(req.UserHistory))
	for _, item := range req.UserHistory {
		history = append(history, ai.Purchase{Amount: item.Amount, Category: item.Category})
	}
	recommendation, err := h.advisor.AnalyzeDeal(r.Context(), req.DealType, history)
	if err != nil {
		internalError(w, r, "failed to analyze deal", err)
		return
	}
	respond.JSON(w, http.StatusOK, "deal analyzed", map[string]string{"recommendation": recommendation})
}

// SeedBusinesses are the demo Tirana businesses created by the seed endpoint.
func SeedBusinesses() []models.Business {
	tirana := func(street string) models.Address {
		return models.Address{Street: street, City: "Tirana", Country: "Albania"}
	}
	return []models.Business{
		{
			Name:           "Tirana Coffee Shop",
			Type:           "food",
			Location:       models.Point{Lng: 19.8187, Lat: 41.3275},
			Address:        tirana("Rruga Myslym Shyri"),
			Description:    "Popular coffee shop in central Tirana",
			BudgetCategory: "dining",
			PriceLevel:     2,
			Offers:         []models.Offer{},
		},
		{
			Name:           "Raiffeisen Bank - Tirana Main",
			Type:           "bank",
			Location:       models.Point{Lng: 19.8195, Lat: 41.3280},
			Address:        tirana("Bulevardi Bajram Curri"),
			Description:    "Main branch of Raiffeisen Bank",
			RaiffeisenInfo: "Learn about student savings accounts and financial literacy programs",
			PriceLevel:     1,
			Offers:         []models.Offer{},
		},
		{
			Name:           "TEG Shopping Center",
			Type:           "shopping",
			Location:       models.Point{Lng: 19.8450, Lat: 41.3200},
			Address:        tirana("Rruga e Elbasanit"),
			Description:    "Largest shopping mall in Tirana",
			BudgetCategory: "shopping",
			PriceLevel:     3,
			Offers:         []models.Offer{},
		},
	}
}

func (h *BusinessHandler) handleSeed(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.IsDevelopment() {
		respond.Error(w, http.StatusForbidden, "seeding is only available in development")
		return
	}
	created := make([]models.Business, 0, 3)
	for _, b := range SeedBusinesses() {
		out, err := h.store.CreateBusiness(r.Context(), b)
		if err != nil {
			internalError(w, r, "failed to seed businesses", err)
			return
		}
		created = append(created, out)
	}
	respond.JSON(w, http.StatusCreated, "Seed data inserted successfully", created)
}
