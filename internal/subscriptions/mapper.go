package subscriptions

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
	pstripe "github.com/angelmondragon/phoenix-backend/pkg/stripe"
)

// ProviderState is the subset of a provider subscription mirrored on every lifecycle event.
type ProviderState struct {
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
}

// BuildFromProvider maps a freshly fetched provider subscription into a new row.
// Only trialing is carried over; every other provider status starts as active.
func BuildFromProvider(clientID uuid.UUID, planID string, sub *pstripe.Subscription) (*models.ClientSubscription, error) {
	if sub == nil || strings.TrimSpace(sub.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider subscription is empty")
	}
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id is required")
	}
	return &models.ClientSubscription{
		ClientID:               clientID,
		PlanID:                 planID,
		ExternalSubscriptionID: sub.ID,
		ExternalCustomerID:     sub.CustomerID,
		Status:                 enums.InitialSubscriptionStatus(sub.Status),
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		TrialEnd:               sub.TrialEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
	}, nil
}

// ApplyProviderState overwrites the mirrored fields. Unknown provider statuses
// leave the stored status untouched and report false.
func ApplyProviderState(target *models.ClientSubscription, state ProviderState) bool {
	if target == nil {
		return false
	}
	status, known := enums.SubscriptionStatusFromProvider(state.Status)
	if known {
		target.Status = status
	}
	if state.CurrentPeriodStart != nil {
		target.CurrentPeriodStart = state.CurrentPeriodStart
	}
	if state.CurrentPeriodEnd != nil {
		target.CurrentPeriodEnd = state.CurrentPeriodEnd
	}
	target.TrialEnd = state.TrialEnd
	target.CancelAtPeriodEnd = state.CancelAtPeriodEnd
	return known
}

// MarkCancelled flags the subscription as cancelled at the given time.
func MarkCancelled(target *models.ClientSubscription, at time.Time) {
	if target == nil {
		return
	}
	at = at.UTC()
	target.Status = enums.SubscriptionStatusCancelled
	target.CancelledAt = &at
}

// RefreshPeriod records a successful recurring charge.
func RefreshPeriod(target *models.ClientSubscription, start, end *time.Time) {
	if target == nil {
		return
	}
	if start != nil {
		target.CurrentPeriodStart = start
	}
	if end != nil {
		target.CurrentPeriodEnd = end
	}
	target.Status = enums.SubscriptionStatusActive
}
