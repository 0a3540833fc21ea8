package dto

import (
	"github.com/shopspring/decimal"

	"github.com/hongminglow/youfin-be/internal/models"
)

type RegisterRequest struct {
	FirstName       string         `json:"firstName"`
	LastName        string         `json:"lastName"`
	Username        string         `json:"username"`
	Email           string         `json:"email"`
	Password        string         `json:"password"`
	ConfirmPassword string         `json:"confirmPassword"`
	Role            string         `json:"role"`
	BusinessName    string         `json:"businessName"`
	BusinessType    string         `json:"businessType"`
	Address         models.Address `json:"address"`
	Description     string         `json:"description"`
	DateOfBirth     string         `json:"dateOfBirth"`
	ParentID        string         `json:"parentId"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// TwoFactorChallenge is returned by login instead of a token when the account has 2FA enabled.
type TwoFactorChallenge struct {
	Requires2FA bool   `json:"requires2FA"`
	UserID      string `json:"userId"`
}

type Validate2FARequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type TwoFactorCodeRequest struct {
	Token string `json:"token"`
}

type TwoFactorSetup struct {
	OTPURL  string `json:"otpURL"`
	DataURL string `json:"dataURL"`
	Secret  string `json:"secret"`
}

type CheckEmailRequest struct {
	Email string `json:"email"`
}

type CheckEmailResponse struct {
	Exists bool `json:"exists"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type UpdateAllowanceRequest struct {
	ChildID   string          `json:"childId"`
	Amount    decimal.Decimal `json:"amount"`
	Frequency string          `json:"frequency"`
}

type UpdateSpendingLimitsRequest struct {
	ChildID string          `json:"childId"`
	Daily   decimal.Decimal `json:"daily"`
	Weekly  decimal.Decimal `json:"weekly"`
	Monthly decimal.Decimal `json:"monthly"`
}

// UserResponse is the public projection of a user returned by auth endpoints.
type UserResponse struct {
	ID               string         `json:"id"`
	FirstName        string         `json:"firstName"`
	LastName         string         `json:"lastName"`
	Username         string         `json:"username,omitempty"`
	Email            string         `json:"email"`
	Role             string         `json:"role"`
	IsVerified       bool           `json:"isVerified"`
	TwoFactorEnabled bool           `json:"twoFactorEnabled"`
	Children         []UserResponse `json:"children,omitempty"`
	Parent           *UserResponse  `json:"parent,omitempty"`
}

// NewUserResponse strips everything but the public identity fields.
func NewUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Username:         u.Username,
		Email:            u.Email,
		Role:             u.Role,
		IsVerified:       u.IsVerified,
		TwoFactorEnabled: u.TwoFactor.Enabled,
	}
}
