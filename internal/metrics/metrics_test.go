package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRemote("orders", "POST", 200, 20*time.Millisecond)
	m.ObserveRemote("orders", "POST", 200, 30*time.Millisecond)
	m.CartSyncFailed("add")
	m.CheckoutStep("order", nil)
	m.CheckoutStep("order", errors.New("boom"))
	m.WebhookCalled(nil)
	m.SessionsChanged(3)
	m.SessionsChanged(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.remoteRequests.WithLabelValues("orders", "POST", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cartSyncFailures.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkoutSteps.WithLabelValues("order", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkoutSteps.WithLabelValues("order", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookCalls.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeSessions))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRemote("orders", "GET", 0, time.Second)
		m.CartSyncFailed("remove")
		m.CheckoutStep("billing", nil)
		m.WebhookCalled(errors.New("down"))
		m.SessionsChanged(1)
	})
}
