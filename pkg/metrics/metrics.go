// Package metrics holds the Prometheus collectors shared by the agent,
// the events client and the HTTP layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "concertbot"

var (
	// UpstreamRequests counts calls to third-party APIs by service and outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Outbound requests to third-party APIs.",
	}, []string{"service", "outcome"})

	// UpstreamRetries counts retry waits by reason (rate_limited, network).
	UpstreamRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_retries_total",
		Help:      "Retries performed by the HTTP retry helper.",
	}, []string{"reason"})

	// CacheLookups counts concert cache lookups by result (hit, miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Concert cache lookups.",
	}, []string{"result"})

	// FallbackListings counts listings served from sample data by query kind.
	FallbackListings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fallback_listings_total",
		Help:      "Listings served from fallback data.",
	}, []string{"kind"})

	// Turns counts processed user turns by intent.
	Turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Processed user turns by classified intent.",
	}, []string{"intent"})

	// ActiveSessions tracks sessions started and not yet ended on this process.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Sessions currently open on this process.",
	})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
