package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	WebhookNotifications *prometheus.CounterVec
	NafathInitRequests   *prometheus.CounterVec
}

// New creates a dedicated registry and registers all metrics on it
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		WebhookNotifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authentica_webhook_notifications_total",
			Help: "Nafath webhook notifications received, by outcome",
		}, []string{"outcome"}),
		NafathInitRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authentica_nafath_init_requests_total",
			Help: "Nafath verifications started upstream, by upstream status code",
		}, []string{"code"}),
	}
}

// ObserveWebhook counts one notification with the given outcome
func (m *Metrics) ObserveWebhook(outcome string) {
	m.WebhookNotifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveNafathInit(code string) {
	m.NafathInitRequests.WithLabelValues(code).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
