package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/phoenix-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/phoenix-backend/api/controllers/webhooks"
	"github.com/angelmondragon/phoenix-backend/api/middleware"
	"github.com/angelmondragon/phoenix-backend/internal/checkout"
	"github.com/angelmondragon/phoenix-backend/internal/dedup"
	"github.com/angelmondragon/phoenix-backend/internal/pendingauth"
	stripewebhook "github.com/angelmondragon/phoenix-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/phoenix-backend/pkg/config"
	"github.com/angelmondragon/phoenix-backend/pkg/logger"
	"github.com/angelmondragon/phoenix-backend/pkg/metrics"
)

// Deps carries everything the HTTP surface needs. Nil services make their
// routes answer 500 rather than panic.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	Pingers  map[string]controllers.Pinger
	Verifier *stripewebhook.Verifier
	Webhooks *stripewebhook.Service
	Guard    *dedup.Guard
	Metrics  *metrics.WebhookMetrics
	Exchange *pendingauth.Exchange
	Checkout checkout.Service
}

func NewRouter(d Deps) http.Handler {
	logg := d.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	service := "phoenix-api"
	var origins []string
	if d.Config != nil {
		service = d.Config.App.ServiceName
		origins = d.Config.App.CORSOrigins
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(origins),
	)

	r.Get("/health", controllers.Health(service))
	r.Get("/health/ready", controllers.HealthReady(d.Pingers, logg))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	webhook := webhookcontrollers.StripeWebhook(optionalService(d.Webhooks), optionalVerifier(d.Verifier), optionalGuard(d.Guard), d.Metrics, logg)
	r.Post("/webhook", webhook)
	r.Post("/api/v1/webhooks/stripe", webhook)

	r.Get("/auth/session/{sessionId}", controllers.AuthSession(optionalExchange(d.Exchange), logg))
	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Post("/sessions", controllers.CheckoutSession(d.Checkout, logg))
		r.Post("/storage-addon", controllers.CheckoutStorageAddon(d.Checkout, logg))
	})

	return r
}

// The controllers test their dependencies against nil interfaces; a typed
// nil pointer would slip through that check.

func optionalService(s *stripewebhook.Service) webhookcontrollers.StripeWebhookService {
	if s == nil {
		return nil
	}
	return s
}

func optionalVerifier(v *stripewebhook.Verifier) webhookcontrollers.EventVerifier {
	if v == nil {
		return nil
	}
	return v
}

func optionalGuard(g *dedup.Guard) webhookcontrollers.DedupGuard {
	if g == nil {
		return nil
	}
	return g
}

func optionalExchange(e *pendingauth.Exchange) controllers.SessionExchange {
	if e == nil {
		return nil
	}
	return e
}
