package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Credits granted through monthly allocation, labelled by plan tier
	CreditsAllocated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_allocated_total",
		Help: "Total credits granted by monthly allocation",
	}, []string{"plan"})

	// Allocations skipped by the per-month idempotency check
	AllocationsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credit_allocations_skipped_total",
		Help: "Allocations suppressed because the period was already granted",
	})

	SettlementLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "appointment_settlement_latency_seconds",
		Help:    "Latency of appointment credit settlement",
		Buckets: prometheus.DefBuckets,
	})

	SettlementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appointment_settlements_total",
		Help: "Appointment settlements by outcome",
	}, []string{"outcome"})
)

func Init() {
	prometheus.MustRegister(
		CreditsAllocated,
		AllocationsSkipped,
		SettlementLatency,
		SettlementsTotal,
	)
}
