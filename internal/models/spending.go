package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Spending categories.
var SpendingCategories = []string{"food", "shopping", "entertainment", "education", "transport", "other"}

// Payment methods.
var PaymentMethods = []string{"cash", "card", "digital"}

// ValidSpendingCategory reports whether c is a spending category.
func ValidSpendingCategory(c string) bool { return contains(SpendingCategories, c) }

// ValidPaymentMethod reports whether m is a payment method.
func ValidPaymentMethod(m string) bool { return contains(PaymentMethods, m) }

// Spending is one recorded expense.
type Spending struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"userId"`
	BusinessID         string          `json:"businessId"`
	Business           *Business       `json:"business,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description,omitempty"`
	Category           string          `json:"category"`
	Timestamp          time.Time       `json:"timestamp"`
	Location           Point           `json:"location"`
	PaymentMethod      string          `json:"paymentMethod"`
	IsApprovedByParent bool            `json:"isApprovedByParent"`
	Tags               []string        `json:"tags,omitempty"`
	Receipt            *Receipt        `json:"receipt,omitempty"`
}

// Receipt is an uploaded proof of purchase.
type Receipt struct {
	URL        string     `json:"url"`
	UploadedAt *time.Time `json:"uploadedAt,omitempty"`
}

// CategoryTotal is the summed spending of one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// DailyTotal is the summed spending of one calendar day (YYYY-MM-DD, UTC).
type DailyTotal struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
}

// CategoryFor picks the spending category for a purchase at a business:
// the requested one if valid, else the business type if it is a category, else "other".
func CategoryFor(requested, businessType string) string {
	if ValidSpendingCategory(requested) {
		return requested
	}
	if ValidSpendingCategory(businessType) {
		return businessType
	}
	return "other"
}

// NeedsParentApproval reports whether a purchase by user must wait for a parent.
func NeedsParentApproval(user User, amount, threshold decimal.Decimal) bool {
	return user.IsChild() && amount.GreaterThan(threshold)
}
