package attest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's Prometheus collectors
type Metrics struct {
	Verifications *prometheus.CounterVec
	Proofs        *prometheus.CounterVec
	ProofDuration prometheus.Histogram
	QueueDepth    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoreattest",
			Name:      "verifications_total",
			Help:      "Score submissions validated, by outcome.",
		}, []string{"outcome"}),
		Proofs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scoreattest",
			Name:      "proofs_total",
			Help:      "Proof jobs finished, by result.",
		}, []string{"result"}),
		ProofDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scoreattest",
			Name:      "proof_duration_seconds",
			Help:      "Time spent generating a proof.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scoreattest",
			Name:      "proof_queue_depth",
			Help:      "Proof jobs waiting for a worker.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Verifications, m.Proofs, m.ProofDuration, m.QueueDepth)
	}
	return m
}

func outcomeLabel(verified bool) string {
	if verified {
		return "verified"
	}
	return "rejected"
}
