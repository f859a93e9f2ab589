package infra

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Process-wide collectors, exposed on /metrics through promhttp.
var (
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vallenar",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	EngineErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vallenar",
		Name:      "engine_errors_total",
		Help:      "Classified errors returned by engine operations.",
	}, []string{"op", "kind"})

	TxRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vallenar",
		Name:      "tx_retries_total",
		Help:      "Whole-transaction retries after serialization failures or deadlocks.",
	}, []string{"op"})

	PinAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vallenar",
		Name:      "pin_attempts_total",
		Help:      "Authorization PIN validations by outcome.",
	}, []string{"outcome"})

	QuotesExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vallenar",
		Name:      "quotes_expired_total",
		Help:      "Quotes transitioned to EXPIRED, lazily or by the sweep.",
	})

	OutboxDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vallenar",
		Name:      "outbox_events_total",
		Help:      "Outbox relay outcomes.",
	}, []string{"result"})

	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vallenar",
		Name:      "circuit_breaker_state",
		Help:      "0 closed, 1 open, 2 half-open.",
	}, []string{"name"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestDuration,
		EngineErrors,
		TxRetries,
		PinAttempts,
		QuotesExpired,
		OutboxDelivered,
		BreakerState,
	)
}
