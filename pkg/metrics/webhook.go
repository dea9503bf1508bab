package metrics

import "github.com/prometheus/client_golang/prometheus"

// Webhook outcomes recorded per delivery.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
)

// WebhookMetrics counts provider deliveries and downstream provisioning failures.
type WebhookMetrics struct {
	events       *prometheus.CounterVec
	provisioning prometheus.Counter
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})
	provisioning := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "provisioning_failures_total",
		Help: "Project provisioning calls that failed after payment was recorded.",
	})
	reg.MustRegister(events, provisioning)
	return &WebhookMetrics{events: events, provisioning: provisioning}
}

// ObserveEvent increments the delivery counter for the event type and outcome.
func (m *WebhookMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncProvisioningFailure records a failed downstream project creation.
func (m *WebhookMetrics) IncProvisioningFailure() {
	if m == nil || m.provisioning == nil {
		return
	}
	m.provisioning.Inc()
}
