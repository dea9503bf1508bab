package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/phoenix-backend/internal/dedup"
	stripewebhook "github.com/angelmondragon/phoenix-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
)

const testSecret = "whsec_test"

type fakeStripeWebhookService struct {
	calls int
	err   error
}

func (f *fakeStripeWebhookService) HandleEvent(context.Context, *stripewebhook.Event) error {
	f.calls++
	return f.err
}

func signedEvent(t *testing.T, id string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":"checkout.session.completed","created":1700000000,"data":{"object":{"id":"cs_1"}}}`, id))
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return payload, fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newHandler(t *testing.T, svc *fakeStripeWebhookService) http.HandlerFunc {
	t.Helper()
	verifier, err := stripewebhook.NewVerifier(testSecret, 0)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	guard, err := dedup.NewGuard(dedup.NewCache(dedup.CacheOptions{}))
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	return StripeWebhook(svc, verifier, guard, nil, nil)
}

func post(handler http.Handler, header, headerValue string, payload []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set(header, headerValue)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookProcessesOnceAndFlagsDuplicate(t *testing.T) {
	svc := &fakeStripeWebhookService{}
	handler := newHandler(t, svc)
	payload, header := signedEvent(t, "evt_1")

	rec := post(handler, "Stripe-Signature", header, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "{\"received\":true}\n" {
		t.Fatalf("unexpected ack %q", rec.Body.String())
	}

	rec = post(handler, "Stripe-Signature", header, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec.Code)
	}
	if rec.Body.String() != "{\"received\":true,\"duplicate\":true}\n" {
		t.Fatalf("unexpected duplicate ack %q", rec.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected one processing, got %d", svc.calls)
	}
}

func TestStripeWebhookAcceptsSignatureHeaderFallback(t *testing.T) {
	svc := &fakeStripeWebhookService{}
	payload, header := signedEvent(t, "evt_2")

	rec := post(newHandler(t, svc), "signature", header, payload)
	if rec.Code != http.StatusOK || svc.calls != 1 {
		t.Fatalf("expected processed via fallback header, got %d calls=%d", rec.Code, svc.calls)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeStripeWebhookService{}
	payload, _ := signedEvent(t, "evt_3")

	rec := post(newHandler(t, svc), "Stripe-Signature", "t=1,v1=deadbeef", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = post(newHandler(t, svc), "", "", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without header, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service must not run on rejected deliveries")
	}
}

func TestStripeWebhookReleasesOnFailure(t *testing.T) {
	svc := &fakeStripeWebhookService{err: pkgerrors.Wrap(pkgerrors.CodeInternal, errors.New("db down"), "handle")}
	handler := newHandler(t, svc)
	payload, header := signedEvent(t, "evt_4")

	rec := post(handler, "Stripe-Signature", header, payload)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	svc.err = nil
	rec = post(handler, "Stripe-Signature", header, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
	if rec.Body.String() != "{\"received\":true}\n" {
		t.Fatalf("retry must not be flagged duplicate: %q", rec.Body.String())
	}
	if svc.calls != 2 {
		t.Fatalf("expected two processing attempts, got %d", svc.calls)
	}
}

func TestStripeWebhookDependencyFailureAnswers500(t *testing.T) {
	svc := &fakeStripeWebhookService{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("provider timeout"), "fetch subscription")}
	payload, header := signedEvent(t, "evt_5")

	rec := post(newHandler(t, svc), "Stripe-Signature", header, payload)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestStripeWebhookMalformedObjectAnswers400(t *testing.T) {
	svc := &fakeStripeWebhookService{err: pkgerrors.New(pkgerrors.CodeValidation, "decode invoice")}
	payload, header := signedEvent(t, "evt_6")

	rec := post(newHandler(t, svc), "Stripe-Signature", header, payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
