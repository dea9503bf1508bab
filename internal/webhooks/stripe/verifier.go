package stripewebhook

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
)

var (
	ErrSignatureInvalid = errors.New("stripe signature invalid")
	ErrMalformedPayload = errors.New("stripe payload malformed")
)

// Event is a verified provider event. Raw holds data.object exactly as sent.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Raw     json.RawMessage
}

// Verifier checks the Stripe-Signature header against the endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("webhook signing secret is required")
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}, nil
}

// Verify authenticates the unparsed body and decodes it into an Event.
func (v *Verifier) Verify(payload []byte, header string) (*Event, error) {
	if strings.TrimSpace(header) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrSignatureInvalid, "signature header missing")
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, v.secret, v.tolerance); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, errors.Join(ErrSignatureInvalid, err), "verify signature")
	}

	event, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, errors.Join(ErrMalformedPayload, err), "decode event")
	}
	if event.ID == "" || event.Type == "" || event.Data == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrMalformedPayload, "event id, type and data are required")
	}

	return &Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
		Raw:     event.Data.Raw,
	}, nil
}
