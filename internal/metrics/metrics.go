// Package metrics holds the Prometheus collectors of the storefront.
//
// A nil *Metrics is valid and records nothing, so services and tests can run
// without a registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "koktek"

// Metrics groups the collectors the storefront updates.
type Metrics struct {
	remoteRequests   *prometheus.CounterVec
	remoteDuration   *prometheus.HistogramVec
	cartSyncFailures *prometheus.CounterVec
	checkoutSteps    *prometheus.CounterVec
	webhookCalls     *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Requests sent to the item API, by collection, method and HTTP status.",
		}, []string{"collection", "method", "status"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Latency of item API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "method"}),
		cartSyncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "sync_failures_total",
			Help:      "Remote cart mirror operations that failed and were tolerated.",
		}, []string{"operation"}),
		checkoutSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "steps_total",
			Help:      "Checkout step outcomes.",
		}, []string{"step", "outcome"}),
		webhookCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "calls_total",
			Help:      "Outbound webhook notifications by outcome.",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "sessions",
			Help:      "Storefront sessions held in memory.",
		}),
	}
	reg.MustRegister(
		m.remoteRequests,
		m.remoteDuration,
		m.cartSyncFailures,
		m.checkoutSteps,
		m.webhookCalls,
		m.activeSessions,
	)
	return m
}

// ObserveRemote records one item API request. status is 0 for transport errors.
func (m *Metrics) ObserveRemote(collection, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.remoteRequests.WithLabelValues(collection, method, strconv.Itoa(status)).Inc()
	m.remoteDuration.WithLabelValues(collection, method).Observe(elapsed.Seconds())
}

// CartSyncFailed counts a tolerated remote cart failure.
func (m *Metrics) CartSyncFailed(operation string) {
	if m == nil {
		return
	}
	m.cartSyncFailures.WithLabelValues(operation).Inc()
}

// CheckoutStep records the outcome ("ok" or "error") of a checkout step.
func (m *Metrics) CheckoutStep(step string, err error) {
	if m == nil {
		return
	}
	m.checkoutSteps.WithLabelValues(step, outcome(err)).Inc()
}

// WebhookCalled records a webhook notification.
func (m *Metrics) WebhookCalled(err error) {
	if m == nil {
		return
	}
	m.webhookCalls.WithLabelValues(outcome(err)).Inc()
}

// SessionsChanged adjusts the live session gauge.
func (m *Metrics) SessionsChanged(delta int) {
	if m == nil {
		return
	}
	m.activeSessions.Add(float64(delta))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
