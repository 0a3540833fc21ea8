package models

// Account roles.
const (
	RoleParent   = "parent"
	RoleChild    = "child"
	RoleBusiness = "business"
)

// ValidRole reports whether role is one of the account roles.
func ValidRole(role string) bool {
	switch role {
	case RoleParent, RoleChild, RoleBusiness:
		return true
	}
	return false
}

// Business profile types accepted at registration.
var BusinessProfileTypes = []string{"retail", "food", "entertainment", "education", "other"}

// Allowance frequencies.
var AllowanceFrequencies = []string{"daily", "weekly", "monthly"}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// ValidBusinessProfileType reports whether t is an accepted registration business type.
func ValidBusinessProfileType(t string) bool { return contains(BusinessProfileTypes, t) }

// ValidAllowanceFrequency reports whether f is an accepted allowance frequency.
func ValidAllowanceFrequency(f string) bool { return contains(AllowanceFrequencies, f) }
