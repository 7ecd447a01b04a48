// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sitekeeper_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// HashQueueWait is the time spent waiting for a password hashing slot.
	HashQueueWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sitekeeper_hash_queue_wait_seconds",
		Help:    "Time spent waiting for a password hashing slot",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	loginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitekeeper_login_total",
		Help: "Login attempts by outcome",
	}, []string{"outcome"})

	resetRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitekeeper_reset_requests_total",
		Help: "Password reset requests received",
	})

	resetRedeem = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitekeeper_reset_redeem_total",
		Help: "Password reset redemptions by outcome",
	}, []string{"outcome"})

	authzDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitekeeper_authz_decisions_total",
		Help: "Authorization decisions by result",
	}, []string{"decision"})

	totpVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitekeeper_totp_verifications_total",
		Help: "TOTP code checks by outcome",
	}, []string{"outcome"})
)

func RecordLogin(outcome string) {
	loginTotal.WithLabelValues(outcome).Inc()
}

func RecordResetRequest() {
	resetRequests.Inc()
}

func RecordResetRedeem(outcome string) {
	resetRedeem.WithLabelValues(outcome).Inc()
}

func RecordAuthzDecision(decision string) {
	authzDecisions.WithLabelValues(decision).Inc()
}

func RecordTotp(ok bool) {
	if ok {
		totpVerifications.WithLabelValues("accepted").Inc()
		return
	}
	totpVerifications.WithLabelValues("rejected").Inc()
}
