package stripewebhook

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/angelmondragon/phoenix-backend/internal/phoenix"
	"github.com/angelmondragon/phoenix-backend/internal/subscriptions"
)

// expandableID accepts either a bare id or an expanded object carrying one.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*e = expandableID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

func (e expandableID) String() string { return string(e) }

func decode[T any](raw json.RawMessage) (*T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

type CheckoutSessionPayload struct {
	ID              string            `json:"id"`
	PaymentIntent   expandableID      `json:"payment_intent"`
	Subscription    expandableID      `json:"subscription"`
	Customer        expandableID      `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// Session converts the payload into the workflow's view of a completed checkout.
func (p CheckoutSessionPayload) Session() phoenix.CheckoutSession {
	email := p.CustomerEmail
	if email == "" && p.CustomerDetails != nil {
		email = p.CustomerDetails.Email
	}
	return phoenix.CheckoutSession{
		ID:               p.ID,
		PaymentIntentID:  p.PaymentIntent.String(),
		SubscriptionID:   p.Subscription.String(),
		CustomerID:       p.Customer.String(),
		CustomerEmail:    email,
		AmountTotalCents: p.AmountTotal,
		Currency:         p.Currency,
		Metadata:         p.Metadata,
	}
}

type PaymentIntentPayload struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (p PaymentIntentPayload) FailureMessage() string {
	if p.LastPaymentError == nil {
		return ""
	}
	return p.LastPaymentError.Message
}

type period struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// InvoicePayload covers both the legacy top-level subscription and payment_intent
// fields and the newer parent/payments layout.
type InvoicePayload struct {
	ID            string       `json:"id"`
	Number        string       `json:"number"`
	Customer      expandableID `json:"customer"`
	Subscription  expandableID `json:"subscription"`
	PaymentIntent expandableID `json:"payment_intent"`
	BillingReason string       `json:"billing_reason"`
	AmountPaid    int64        `json:"amount_paid"`
	AmountDue     int64        `json:"amount_due"`
	Currency      string       `json:"currency"`
	PeriodStart   int64        `json:"period_start"`
	PeriodEnd     int64        `json:"period_end"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription expandableID      `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Payments *struct {
		Data []struct {
			Payment struct {
				PaymentIntent expandableID `json:"payment_intent"`
			} `json:"payment"`
		} `json:"data"`
	} `json:"payments"`
	Lines *struct {
		Data []struct {
			Period period `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

const billingReasonSubscriptionCreate = "subscription_create"

func (p InvoicePayload) SubscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription.String()
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return p.Parent.SubscriptionDetails.Subscription.String()
	}
	return ""
}

func (p InvoicePayload) PaymentIntentID() string {
	if p.PaymentIntent != "" {
		return p.PaymentIntent.String()
	}
	if p.Payments != nil {
		for _, d := range p.Payments.Data {
			if d.Payment.PaymentIntent != "" {
				return d.Payment.PaymentIntent.String()
			}
		}
	}
	return ""
}

// Period returns the billed service period, preferring the first line item.
func (p InvoicePayload) Period() (start, end *time.Time) {
	if p.Lines != nil && len(p.Lines.Data) > 0 {
		if pr := p.Lines.Data[0].Period; pr.End > 0 {
			return unixPtr(pr.Start), unixPtr(pr.End)
		}
	}
	return unixPtr(p.PeriodStart), unixPtr(p.PeriodEnd)
}

type SubscriptionPayload struct {
	ID                 string            `json:"id"`
	Customer           expandableID      `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	TrialEnd           int64             `json:"trial_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	Metadata           map[string]string `json:"metadata"`
	Items              *struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// State extracts the mirrored fields. Period bounds moved onto subscription
// items in recent API versions; both layouts are read.
func (p SubscriptionPayload) State() subscriptions.ProviderState {
	start, end := p.CurrentPeriodStart, p.CurrentPeriodEnd
	if p.Items != nil && len(p.Items.Data) > 0 {
		if start == 0 {
			start = p.Items.Data[0].CurrentPeriodStart
		}
		if end == 0 {
			end = p.Items.Data[0].CurrentPeriodEnd
		}
	}
	return subscriptions.ProviderState{
		Status:             p.Status,
		CurrentPeriodStart: unixPtr(start),
		CurrentPeriodEnd:   unixPtr(end),
		TrialEnd:           unixPtr(p.TrialEnd),
		CancelAtPeriodEnd:  p.CancelAtPeriodEnd,
	}
}
