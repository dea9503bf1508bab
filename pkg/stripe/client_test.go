package stripe

import (
	"context"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/phoenix-backend/pkg/config"
)

func TestNewClientValidatesKeys(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.StripeConfig{Secret: "whsec"}, nil); err == nil {
		t.Fatalf("expected missing api key error")
	}
	if _, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_live_x", Secret: "whsec", Env: "test"}, nil); err == nil {
		t.Fatalf("expected live key rejected in test env")
	}
	if _, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_x", Secret: "whsec", Env: "staging"}, nil); err == nil {
		t.Fatalf("expected invalid env error")
	}
	c, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_x", Secret: "whsec_1", Env: "TEST"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Environment() != "test" || c.SigningSecret() != "whsec_1" {
		t.Fatalf("unexpected client state %+v", c)
	}
}

func TestSubscriptionFromAPISumsItemsAndReadsPeriod(t *testing.T) {
	sub := &stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusTrialing,
		Customer: &stripe.Customer{ID: "cus_1"},
		TrialEnd: 1700000000,
		Metadata: map[string]string{"type": "storage_addon"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
			{
				Price:              &stripe.Price{UnitAmount: 499, Currency: stripe.CurrencyEUR},
				Quantity:           2,
				CurrentPeriodStart: 1690000000,
				CurrentPeriodEnd:   1692600000,
			},
			{Price: &stripe.Price{UnitAmount: 100}},
		}},
	}

	out := subscriptionFromAPI(sub)
	if out.AmountCents != 1098 {
		t.Fatalf("expected 1098 cents, got %d", out.AmountCents)
	}
	if out.CustomerID != "cus_1" || out.Status != "trialing" {
		t.Fatalf("unexpected identity %+v", out)
	}
	if out.CurrentPeriodStart == nil || out.CurrentPeriodStart.Unix() != 1690000000 {
		t.Fatalf("unexpected period start %v", out.CurrentPeriodStart)
	}
	if out.TrialEnd == nil || out.Currency != "eur" {
		t.Fatalf("expected trial end and currency, got %+v", out)
	}
	if out.Metadata["type"] != "storage_addon" {
		t.Fatalf("metadata not carried")
	}
}

func TestCheckoutSessionParamsPicksModeFromLineItems(t *testing.T) {
	oneOff := checkoutSessionParams(CheckoutSessionInput{
		CustomerEmail: "a@b.test",
		LineItems:     []LineItem{{Name: "Pack A", AmountCents: 10000}},
		Metadata:      map[string]string{"case": "B"},
	}, "eur", "https://app.test/success", "https://app.test/cancel")
	if *oneOff.Mode != string(stripe.CheckoutSessionModePayment) {
		t.Fatalf("expected payment mode, got %s", *oneOff.Mode)
	}
	if *oneOff.SuccessURL != "https://app.test/success?session_id={CHECKOUT_SESSION_ID}" {
		t.Fatalf("unexpected success url %s", *oneOff.SuccessURL)
	}
	if oneOff.PaymentIntentData == nil || oneOff.SubscriptionData != nil {
		t.Fatalf("payment mode should carry payment intent metadata only")
	}

	recurring := checkoutSessionParams(CheckoutSessionInput{
		LineItems: []LineItem{{Name: "Growth", AmountCents: 4900, Recurring: true}},
	}, "eur", "", "")
	if *recurring.Mode != string(stripe.CheckoutSessionModeSubscription) {
		t.Fatalf("expected subscription mode")
	}
	if recurring.LineItems[0].PriceData.Recurring == nil {
		t.Fatalf("recurring line items need an interval")
	}
}
