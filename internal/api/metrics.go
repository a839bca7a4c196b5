package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the server's Prometheus collectors
type Metrics struct {
	Requests      *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	ProviderErrs  *prometheus.CounterVec
	IntentTxCount *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"route", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vault_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ProviderErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_swap_provider_errors_total",
				Help: "Total number of swap provider errors",
			},
			[]string{"provider"},
		),
		IntentTxCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vault_intent_transactions",
				Help:    "Number of transactions per composed intent",
				Buckets: []float64{1, 2, 4, 8, 16, 32},
			},
			[]string{"intent"},
		),
	}
	reg.MustRegister(m.Requests, m.Duration, m.ProviderErrs, m.IntentTxCount)
	return m
}
