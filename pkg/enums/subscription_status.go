package enums

import (
	"fmt"
	"strings"
)

// SubscriptionStatus is the internal mirror of a provider subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusTrialing,
	SubscriptionStatusActive,
	SubscriptionStatusPastDue,
	SubscriptionStatusCancelled,
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}

// SubscriptionStatusFromProvider maps a provider lifecycle status onto the internal set.
// ok is false for statuses that have no internal counterpart (incomplete, paused...).
func SubscriptionStatusFromProvider(status string) (SubscriptionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return SubscriptionStatusActive, true
	case "trialing":
		return SubscriptionStatusTrialing, true
	case "past_due", "unpaid":
		return SubscriptionStatusPastDue, true
	case "canceled", "cancelled":
		return SubscriptionStatusCancelled, true
	default:
		return "", false
	}
}

// InitialSubscriptionStatus is used when a subscription row is first created from a
// completed checkout: trialing stays trialing, everything else starts active.
func InitialSubscriptionStatus(providerStatus string) SubscriptionStatus {
	if strings.EqualFold(strings.TrimSpace(providerStatus), "trialing") {
		return SubscriptionStatusTrialing
	}
	return SubscriptionStatusActive
}
