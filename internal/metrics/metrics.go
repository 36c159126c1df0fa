// Package metrics holds the prometheus collectors for session finalization.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garagelink_sessions_ended_total",
		Help: "Sessions finalized, by authoritative final status",
	}, []string{"final_status"})

	PayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garagelink_payouts_total",
		Help: "Payout records written, by payout status",
	}, []string{"status"})

	FinalizeDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garagelink_finalize_degraded_total",
		Help: "Finalization stages that failed without aborting the request",
	}, []string{"stage"})

	SessionEndSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "garagelink_session_end_seconds",
		Help:    "Latency of the end-session pipeline",
		Buckets: prometheus.DefBuckets,
	})
)

func IncSessionEnded(finalStatus string) {
	if finalStatus == "" {
		finalStatus = "unknown"
	}
	SessionsEndedTotal.WithLabelValues(finalStatus).Inc()
}

func IncPayout(status string) {
	if status == "" {
		status = "unknown"
	}
	PayoutsTotal.WithLabelValues(status).Inc()
}

func IncDegraded(stage string) {
	FinalizeDegradedTotal.WithLabelValues(stage).Inc()
}

// ObserveEnd records the pipeline latency measured from start.
func ObserveEnd(start time.Time) {
	SessionEndSeconds.Observe(time.Since(start).Seconds())
}
