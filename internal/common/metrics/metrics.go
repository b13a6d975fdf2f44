// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_reactions_total",
			Help: "Lifecycle reactions by trigger, notification kind and outcome",
		},
		[]string{"trigger", "kind", "outcome"},
	)

	ReactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sos_reaction_duration_seconds",
			Help:    "Duration of a lifecycle reaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)

	PushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_push_deliveries_total",
			Help: "Per-endpoint multicast results",
		},
		[]string{"kind", "result"},
	)

	RecipientsUnresolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_recipients_unresolved_total",
			Help: "Audience identities that produced no push endpoint",
		},
		[]string{"reason"},
	)

	SharedTokenAnomalies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_shared_token_anomalies_total",
			Help: "Push tokens resolved for more than one identity",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sos_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	NATSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_nats_messages_total",
			Help: "Change-feed messages by subject and result",
		},
		[]string{"subject", "result"},
	)
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)
