package stripe

import (
	"strings"

	"github.com/stripe/stripe-go/v84"
)

// LineItem is one priced entry of a hosted checkout.
type LineItem struct {
	Name        string
	AmountCents int64
	Recurring   bool
}

// CheckoutSessionInput describes the session to open. Metadata is copied onto the
// session and, for subscription mode, onto the subscription as well.
type CheckoutSessionInput struct {
	CustomerEmail string
	LineItems     []LineItem
	Metadata      map[string]string
}

// CheckoutSession is the subset of the created session returned to callers.
type CheckoutSession struct {
	ID  string
	URL string
}

func checkoutSessionParams(in CheckoutSessionInput, currency, successURL, cancelURL string) *stripe.CheckoutSessionParams {
	mode := stripe.CheckoutSessionModePayment
	for _, li := range in.LineItems {
		if li.Recurring {
			mode = stripe.CheckoutSessionModeSubscription
			break
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(mode)),
		Metadata: in.Metadata,
	}
	if successURL != "" {
		params.SuccessURL = stripe.String(appendSessionPlaceholder(successURL))
	}
	if cancelURL != "" {
		params.CancelURL = stripe.String(cancelURL)
	}
	if email := strings.TrimSpace(in.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if mode == stripe.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: in.Metadata}
	} else {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: in.Metadata}
	}

	for _, li := range in.LineItems {
		price := &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(li.AmountCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(li.Name),
			},
		}
		if li.Recurring {
			price.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
			}
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: price,
			Quantity:  stripe.Int64(1),
		})
	}
	return params
}

func appendSessionPlaceholder(url string) string {
	if strings.Contains(url, "{CHECKOUT_SESSION_ID}") {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "session_id={CHECKOUT_SESSION_ID}"
}
