package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAvatar is assigned to accounts that never uploaded one.
const DefaultAvatar = "default-avatar.png"

// User captures application-facing fields for an authenticated identity.
type User struct {
	ID           string           `json:"id"`
	FirstName    string           `json:"firstName"`
	LastName     string           `json:"lastName"`
	Username     string           `json:"username,omitempty"`
	Email        string           `json:"email"`
	PasswordHash string           `json:"-"`
	Role         string           `json:"role"`
	Business     *BusinessProfile `json:"business,omitempty"`

	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	ParentID    string     `json:"parentId,omitempty"`
	Children    []string   `json:"children,omitempty"`

	TwoFactor TwoFactorAuth `json:"twoFactorAuth"`

	IsVerified          bool       `json:"isVerified"`
	VerificationToken   string     `json:"-"`
	VerificationExpires *time.Time `json:"-"`
	ResetToken          string     `json:"-"`
	ResetExpires        *time.Time `json:"-"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`

	Allowance     Allowance       `json:"allowance"`
	SpendingLimit SpendingLimit   `json:"spendingLimit"`
	Budget        decimal.Decimal `json:"budget"`
	Spent         decimal.Decimal `json:"spent"`
	Goals         []Goal          `json:"goals,omitempty"`
	Avatar        string          `json:"avatar"`
	Preferences   Preferences     `json:"preferences"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BusinessProfile holds the fields required of business accounts.
type BusinessProfile struct {
	Name        string  `json:"businessName"`
	Type        string  `json:"businessType"`
	Address     Address `json:"address"`
	Description string  `json:"description"`
}

// Address is a postal address.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country"`
}

// TwoFactorAuth is the embedded TOTP state. Secrets never leave the server.
type TwoFactorAuth struct {
	Enabled    bool   `json:"enabled"`
	Secret     string `json:"-"`
	TempSecret string `json:"-"`
	OTPURL     string `json:"-"`
}

// Allowance is the pocket money a parent assigns to a child.
type Allowance struct {
	Amount    decimal.Decimal `json:"amount"`
	Frequency string          `json:"frequency"`
	LastPaid  *time.Time      `json:"lastPaid,omitempty"`
}

// SpendingLimit caps a child's spending per period. Zero means no limit.
type SpendingLimit struct {
	Daily   decimal.Decimal `json:"daily"`
	Weekly  decimal.Decimal `json:"weekly"`
	Monthly decimal.Decimal `json:"monthly"`
}

// Goal is a savings target.
type Goal struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
}

// Preferences are UI settings persisted per account.
type Preferences struct {
	Theme         string `json:"theme"`
	Notifications bool   `json:"notifications"`
}

// DefaultPreferences returns the preferences new accounts start with.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "dark", Notifications: true}
}

// IsParent reports whether the user has the parent role.
func (u User) IsParent() bool { return u.Role == RoleParent }

// IsChild reports whether the user has the child role.
func (u User) IsChild() bool { return u.Role == RoleChild }

// IsBusiness reports whether the user has the business role.
func (u User) IsBusiness() bool { return u.Role == RoleBusiness }

// Remaining is the part of the budget not yet spent.
func (u User) Remaining() decimal.Decimal {
	return u.Budget.Sub(u.Spent)
}

// HasChild reports whether childID is listed among the user's children.
func (u User) HasChild(childID string) bool {
	for _, id := range u.Children {
		if id == childID {
			return true
		}
	}
	return false
}
