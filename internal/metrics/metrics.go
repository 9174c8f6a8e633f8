// Package metrics registers the auth service's prometheus collectors on the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_issued_total",
			Help: "OTP codes issued, by type and delivery channel",
		},
		[]string{"type", "channel"},
	)

	OTPDeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_delivery_failures_total",
			Help: "OTP issuances whose delivery failed",
		},
		[]string{"type"},
	)

	OTPRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_rate_limited_total",
			Help: "OTP issuances rejected by the resend window",
		},
		[]string{"type"},
	)

	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_verifications_total",
			Help: "OTP verification outcomes",
		},
		[]string{"type", "outcome"},
	)

	OTPSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_swept_total",
			Help: "OTP records removed or reconciled by the sweep",
		},
		[]string{"result"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_action_duration_seconds",
			Help:    "Duration of auth actions",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"action", "status"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_events_dropped_total",
			Help: "Auth events dropped because the publisher queue was full",
		},
	)

	EventSinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_event_sink_errors_total",
			Help: "Auth event sink write failures",
		},
		[]string{"sink"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
