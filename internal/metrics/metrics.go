package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fitclub"

var (
	SessionRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "refresh_total",
		Help:      "Refresh token exchanges by result.",
	}, []string{"result"})

	SessionTerminatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "terminated_total",
		Help:      "Sessions terminated after a failed refresh.",
	})

	CheckoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "market",
		Name:      "checkout_total",
		Help:      "Checkout attempts by storefront, provider and result.",
	}, []string{"storefront", "provider", "result"})

	ValidationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "market",
		Name:      "validation_total",
		Help:      "Payment validations by storefront, provider and outcome.",
	}, []string{"storefront", "provider", "outcome"})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Backend API request latency by endpoint and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "code"})
)
