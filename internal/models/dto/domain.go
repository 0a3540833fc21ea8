package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hongminglow/youfin-be/internal/models"
)

type UpdateUserRequest struct {
	FirstName   *string             `json:"firstName"`
	LastName    *string             `json:"lastName"`
	Username    *string             `json:"username"`
	Avatar      *string             `json:"avatar"`
	Budget      *decimal.Decimal    `json:"budget"`
	Preferences *models.Preferences `json:"preferences"`
}

type CreateChildRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DateOfBirth string `json:"dateOfBirth"`
}

type GoalRequest struct {
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Deadline      *time.Time      `json:"deadline"`
}

type GoalProgressRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type CreateBusinessRequest struct {
	Name           string                         `json:"name"`
	Type           string                         `json:"type"`
	Lat            float64                        `json:"lat"`
	Lng            float64                        `json:"lng"`
	Address        models.Address                 `json:"address"`
	Description    string                         `json:"description"`
	BudgetCategory string                         `json:"budgetCategory"`
	RaiffeisenInfo string                         `json:"raiffeisenInfo"`
	OperatingHours map[string]models.OpeningHours `json:"operatingHours"`
	Rating         float64                        `json:"rating"`
	PriceLevel     int                            `json:"priceLevel"`
}

type OfferRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Discount    string    `json:"discount"`
	ValidUntil  time.Time `json:"validUntil"`
	IsActive    *bool     `json:"isActive"`
}

// CatchDealRequest carries the requester's position as [lat, lng].
type CatchDealRequest struct {
	BusinessID string     `json:"businessId"`
	OfferID    string     `json:"offerId"`
	Location   [2]float64 `json:"location"`
}

type CatchDealResponse struct {
	Offer       models.Offer      `json:"offer"`
	Type        string            `json:"type"`
	UserHistory []models.Spending `json:"userHistory"`
}

type HistoryItem struct {
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
}

type AnalyzeDealRequest struct {
	DealType    string        `json:"dealType"`
	UserHistory []HistoryItem `json:"userHistory"`
}

type BusinessOffers struct {
	BusinessID   string         `json:"businessId"`
	BusinessName string         `json:"businessName"`
	Offers       []models.Offer `json:"offers"`
}

type CreateSpendingRequest struct {
	BusinessID    string          `json:"businessId"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	PaymentMethod string          `json:"paymentMethod"`
	Tags          []string        `json:"tags"`
	ReceiptURL    string          `json:"receiptUrl"`
}

type ProcessExpenseRequest struct {
	Text string `json:"text"`
}

type SuggestRequest struct {
	Message string          `json:"message"`
	UserID  string          `json:"userId"`
	Budget  decimal.Decimal `json:"budget"`
	Spent   decimal.Decimal `json:"spent"`
}
