package models

import "time"

// Business directory types.
var BusinessTypes = []string{"food", "shopping", "entertainment", "education", "bank"}

// ValidBusinessType reports whether t is a directory business type.
func ValidBusinessType(t string) bool { return contains(BusinessTypes, t) }

// Business is a merchant listed on the map.
type Business struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name"`
	Type           string                  `json:"type"`
	Location       Point                   `json:"location"`
	Address        Address                 `json:"address"`
	Description    string                  `json:"description,omitempty"`
	BudgetCategory string                  `json:"budgetCategory,omitempty"`
	Offers         []Offer                 `json:"offers"`
	RaiffeisenInfo string                  `json:"raiffeisenInfo,omitempty"`
	OperatingHours map[string]OpeningHours `json:"operatingHours,omitempty"`
	Rating         float64                 `json:"rating"`
	PriceLevel     int                     `json:"priceLevel"`
	CreatedAt      time.Time               `json:"createdAt"`
}

// OpeningHours is the open/close pair for a weekday, "09:00" style.
type OpeningHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Offer is a business-defined discount with an active window.
type Offer struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Discount    string     `json:"discount,omitempty"`
	ValidUntil  time.Time  `json:"validUntil"`
	IsActive    bool       `json:"isActive"`
	ClaimedBy   string     `json:"claimedBy,omitempty"`
	ClaimedAt   *time.Time `json:"claimedAt,omitempty"`
}

// Live reports whether the offer can still be used at now.
func (o Offer) Live(now time.Time) bool {
	return o.IsActive && o.ValidUntil.After(now)
}

// ActiveOffers returns the offers that are live at now.
func (b Business) ActiveOffers(now time.Time) []Offer {
	out := make([]Offer, 0, len(b.Offers))
	for _, offer := range b.Offers {
		if offer.Live(now) {
			out = append(out, offer)
		}
	}
	return out
}

// FindOffer returns the offer with the given id.
func (b Business) FindOffer(id string) (Offer, bool) {
	for _, offer := range b.Offers {
		if offer.ID == id {
			return offer, true
		}
	}
	return Offer{}, false
}
