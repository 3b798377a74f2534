package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncCallback("resolved")
	m.IncCallback("resolved")
	m.IncCallback("ignored")
	m.IncRegistration("TRANS")
	m.IncCompensation("REGISTRATION")
	m.IncReportDispatch("failed")
	m.IncChargeOpened("SEARCH")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Callbacks.WithLabelValues("resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Callbacks.WithLabelValues("ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues("TRANS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("REGISTRATION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportDispatch.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChargesOpened.WithLabelValues("SEARCH")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncCallback("error")
		m.IncRegistration("SA")
		m.IncCompensation("SEARCH")
		m.IncReportDispatch("enqueued")
		m.IncChargeOpened("REGISTRATION")
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
