package stripe

import (
	"time"

	"github.com/stripe/stripe-go/v84"
)

// Subscription is the provider subscription reduced to what the ledger records.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	AmountCents        int64
	Currency           string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	Metadata           map[string]string
}

func subscriptionFromAPI(sub *stripe.Subscription) *Subscription {
	if sub == nil {
		return nil
	}
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		Currency:          string(sub.Currency),
		TrialEnd:          unixPtr(sub.TrialEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items == nil {
		return out
	}
	for _, item := range sub.Items.Data {
		if item == nil {
			continue
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		if item.Price != nil {
			out.AmountCents += item.Price.UnitAmount * qty
			if out.Currency == "" {
				out.Currency = string(item.Price.Currency)
			}
		}
		if out.CurrentPeriodStart == nil {
			out.CurrentPeriodStart = unixPtr(item.CurrentPeriodStart)
			out.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
		}
	}
	return out
}

func unixPtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
