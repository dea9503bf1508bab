package enums

import "strings"

// AuthMethod records how a pending user signed up before checkout.
type AuthMethod string

const (
	AuthMethodPassword  AuthMethod = "password"
	AuthMethodGoogle    AuthMethod = "google"
	AuthMethodOAuth     AuthMethod = "oauth"
	AuthMethodLinkedIn  AuthMethod = "linkedin"
	AuthMethodMicrosoft AuthMethod = "microsoft"
)

// ParseAuthMethod normalizes the metadata value; empty input means password.
func ParseAuthMethod(value string) AuthMethod {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return AuthMethodPassword
	}
	return AuthMethod(v)
}

// IsOAuth reports whether the account was created through an identity provider and
// therefore has no user-chosen password.
func (m AuthMethod) IsOAuth() bool {
	switch m {
	case AuthMethodGoogle, AuthMethodOAuth, AuthMethodLinkedIn, AuthMethodMicrosoft:
		return true
	default:
		return false
	}
}
