package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the relay's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	DeliveryAttempts *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	WebhookEvents    *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DeliveryAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messenger_delivery_attempts_total",
				Help: "Send API calls by outcome",
			},
			[]string{"outcome"}, // ok, non_ok, transport_error
		),
		Deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messenger_deliveries_total",
				Help: "Logical deliveries by final result",
			},
			[]string{"result", "kind"},
		),
		DeliveryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "messenger_delivery_duration_seconds",
				Help:    "Wall time of a logical delivery, retries included",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"result"},
		),
		WebhookEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messenger_webhook_events_total",
				Help: "Webhook messaging events by kind",
			},
			[]string{"kind"},
		),
	}
}

// ObserveAttempt counts one Send API call.
func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.DeliveryAttempts.WithLabelValues(outcome).Inc()
}

// ObserveDelivery records the final result of a logical delivery.
func (m *Metrics) ObserveDelivery(result, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(result, kind).Inc()
	m.DeliveryDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveWebhookEvent counts one messaging event seen by the intake.
func (m *Metrics) ObserveWebhookEvent(kind string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(kind).Inc()
}
