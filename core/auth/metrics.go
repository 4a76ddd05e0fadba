package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "auth",
		Name:      "results_total",
		Help:      "Composed auth guard outcomes by reason.",
	}, []string{"reason"})

	throttledRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "auth",
		Name:      "throttled_requests_total",
		Help:      "Requests denied by the rate limiter.",
	})

	blacklistedTokens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "auth",
		Name:      "blacklisted_tokens_total",
		Help:      "Tokens revoked before their expiry.",
	})

	sweptEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "auth",
		Name:      "swept_entries_total",
		Help:      "Expired blacklist entries & stale rate limit windows deleted by the sweeper.",
	}, []string{"store"})
)
