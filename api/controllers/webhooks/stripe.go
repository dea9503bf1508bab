package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/phoenix-backend/api/responses"
	stripewebhook "github.com/angelmondragon/phoenix-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
	"github.com/angelmondragon/phoenix-backend/pkg/metrics"
)

const maxWebhookBody = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripewebhook.Event) error
}

type EventVerifier interface {
	Verify(payload []byte, header string) (*stripewebhook.Event, error)
}

type DedupGuard interface {
	CheckAndMark(ctx context.Context, eventID, eventType string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// StripeWebhook verifies, deduplicates and routes provider events. A failed
// delivery releases its dedup entry so the provider's retry is processed.
func StripeWebhook(svc StripeWebhookService, verifier EventVerifier, guard DedupGuard, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			sigHeader = r.Header.Get("signature")
		}

		event, err := verifier.Verify(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ctx = logg.WithEvent(ctx, event.ID, event.Type)

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID, event.Type)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			m.ObserveEvent(event.Type, metrics.OutcomeDuplicate)
			logg.Info(ctx, "webhook.duplicate_event")
			responses.WriteAck(w, true)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if delErr := guard.Delete(ctx, event.ID); delErr != nil {
				logg.Error(ctx, "webhook.dedup_release_failed", delErr)
			}
			responses.WriteError(ctx, logg, w, handlerFailure(err))
			return
		}

		logg.Info(ctx, "webhook.event_processed")
		responses.WriteAck(w, false)
	}
}

// handlerFailure keeps payload errors as 400 and reports every other
// processing failure as 500, whatever the underlying code.
func handlerFailure(err error) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		return err
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInternal {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "handle webhook event")
}
