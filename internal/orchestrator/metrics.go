package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mark3labs/specimport/internal/remote"
)

// Metrics records remote creation calls.
type Metrics struct {
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	ImportsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "specimport",
				Subsystem: "remote",
				Name:      "calls_total",
				Help:      "Total number of remote creation calls",
			},
			[]string{"kind", "outcome"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "specimport",
				Subsystem: "remote",
				Name:      "call_duration_seconds",
				Help:      "Remote creation call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		ImportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "specimport",
				Name:      "imports_total",
				Help:      "Total number of import batches by result (ok, failed, cancelled)",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.CallsTotal, m.CallDuration, m.ImportsTotal)
	}
	return m
}

func (m *Metrics) observeCall(kind remote.Kind, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.CallsTotal.WithLabelValues(string(kind), outcome).Inc()
	m.CallDuration.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeImport(result string) {
	if m == nil {
		return
	}
	m.ImportsTotal.WithLabelValues(result).Inc()
}
