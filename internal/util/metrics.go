package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of booking requests created",
	})

	BookingsApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_approved_total",
		Help: "Total number of bookings approved",
	})

	BookingsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_rejected_total",
		Help: "Total number of bookings rejected",
	})

	BookingsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_cancelled_total",
		Help: "Total number of bookings cancelled",
	})

	BookingsPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_paid_total",
		Help: "Total number of bookings fully paid",
	})

	BookingDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_denials_total",
		Help: "Total number of operations denied by the reservation rules",
	}, []string{"reason"})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment initiations attempted",
	})

	PaymentsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_confirmed_total",
		Help: "Total number of payments confirmed",
	})

	PaymentsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of payments declined by the provider",
	})

	PaymentInitiateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_initiate_latency_seconds",
		Help:    "Latency of payment initiation including the provider push",
		Buckets: prometheus.DefBuckets,
	})

	LedgerCommitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_commits_total",
		Help: "Total number of committed ledger transactions",
	})

	LedgerCommitConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_commit_conflicts_total",
		Help: "Total number of ledger commits rejected by version conflict",
	})

	ConflictRetriesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_conflict_retries_exhausted_total",
		Help: "Total number of operations that ran out of commit retries",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
