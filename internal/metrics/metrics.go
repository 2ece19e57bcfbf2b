package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotedesk",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream provider calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quotedesk",
			Subsystem: "upstream",
			Name:      "rate_limited_total",
			Help:      "Calls abandoned because the provider throttled us",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotedesk",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Series cache hits by tier class",
		},
		[]string{"class"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotedesk",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Series cache misses by tier class",
		},
		[]string{"class"},
	)

	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotedesk",
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Quote resolutions by terminal mode",
		},
		[]string{"mode"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(UpstreamRequests, RateLimited, CacheHits, CacheMisses, Resolutions)
	})
}
