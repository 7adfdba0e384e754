package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	paymentAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "donation_payment_attempts_total",
		Help: "Payment flow attempts by flow type and terminal outcome",
	}, []string{"flow", "method", "outcome"})

	pollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "donation_poll_attempts_per_deposit",
		Help:    "Status queries issued before a deposit reached a terminal poll outcome",
		Buckets: []float64{1, 2, 3, 5, 8, 10},
	})

	reconciledAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "donation_reconciled_attempts_total",
		Help: "Deposit attempts settled by the reconciliation job, by final status",
	}, []string{"status"})
)

func recordOutcome(flow, method string, outcome string) {
	paymentAttemptsTotal.WithLabelValues(flow, method, outcome).Inc()
}
