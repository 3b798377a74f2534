package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what happens to payment notifications and the work they trigger.
type Metrics struct {
	// Callbacks by outcome: resolved, ignored, rejected, error, busy
	Callbacks *prometheus.CounterVec

	// Finalized registrations by type
	Registrations *prometheus.CounterVec

	// Compensations by subject kind
	Compensations *prometheus.CounterVec

	// Report tasks by result: enqueued, failed
	ReportDispatch *prometheus.CounterVec

	// Charges opened by subject kind
	ChargesOpened *prometheus.CounterVec
}

// New registers the metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Callbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regpay_callbacks_total",
			Help: "Payment notifications received by outcome",
		}, []string{"outcome"}),

		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regpay_registrations_total",
			Help: "Registrations finalized by registration type",
		}, []string{"type"}),

		Compensations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regpay_compensations_total",
			Help: "Payments reverted by subject kind",
		}, []string{"subject"}),

		ReportDispatch: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regpay_report_dispatch_total",
			Help: "Report tasks published by result",
		}, []string{"result"}),

		ChargesOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regpay_charges_opened_total",
			Help: "Charges opened with the payment provider by subject kind",
		}, []string{"subject"}),
	}
}

func (m *Metrics) IncCallback(outcome string) {
	if m != nil {
		m.Callbacks.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncRegistration(regType string) {
	if m != nil {
		m.Registrations.WithLabelValues(regType).Inc()
	}
}

func (m *Metrics) IncCompensation(subject string) {
	if m != nil {
		m.Compensations.WithLabelValues(subject).Inc()
	}
}

func (m *Metrics) IncReportDispatch(result string) {
	if m != nil {
		m.ReportDispatch.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncChargeOpened(subject string) {
	if m != nil {
		m.ChargesOpened.WithLabelValues(subject).Inc()
	}
}
