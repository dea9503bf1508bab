package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestWebhookMetricsCountsByTypeAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)

	m.ObserveEvent("invoice.paid", OutcomeProcessed)
	m.ObserveEvent("invoice.paid", OutcomeProcessed)
	m.ObserveEvent("invoice.paid", OutcomeDuplicate)
	m.IncProvisioningFailure()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	mf := findMetricFamily(mfs, "webhook_events_total")
	if mf == nil {
		t.Fatalf("webhook_events_total not registered")
	}
	if got := counterWithLabels(mf, map[string]string{"type": "invoice.paid", "outcome": OutcomeProcessed}); got != 2 {
		t.Fatalf("expected 2 processed, got %f", got)
	}
	if got := counterWithLabels(mf, map[string]string{"type": "invoice.paid", "outcome": OutcomeDuplicate}); got != 1 {
		t.Fatalf("expected 1 duplicate, got %f", got)
	}

	prov := findMetricFamily(mfs, "provisioning_failures_total")
	if prov == nil || prov.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one provisioning failure")
	}
}

func TestWebhookMetricsNilSafe(t *testing.T) {
	var m *WebhookMetrics
	m.ObserveEvent("x", OutcomeFailed)
	m.IncProvisioningFailure()
}

func counterWithLabels(mf *dto.MetricFamily, labels map[string]string) float64 {
	for _, metric := range mf.GetMetric() {
		ok := true
		for k, v := range labels {
			if !matchesLabel(metric.GetLabel(), k, v) {
				ok = false
				break
			}
		}
		if ok {
			return metric.GetCounter().GetValue()
		}
	}
	return -1
}
