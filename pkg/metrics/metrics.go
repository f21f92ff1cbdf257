// Package metrics defines the Prometheus metrics exposed by the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InboundMessagesTotal counts processed inbound payloads by outcome:
	// "delivered", "rejected", "discarded", "duplicate", "malformed",
	// "error".
	InboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebody_inbound_messages_total",
			Help: "Total number of inbound messages processed by outcome",
		},
		[]string{"outcome"},
	)

	// EnvelopesTotal counts produced outbound envelopes by kind:
	// "delivery" or "rejection".
	EnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebody_envelopes_total",
			Help: "Total number of outbound envelopes produced",
		},
		[]string{"kind"},
	)

	// RejectionsTotal counts rejection notices by category.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebody_rejections_total",
			Help: "Total number of rejection notices by category",
		},
		[]string{"category"},
	)

	// MessageSizeBytes observes inbound payload sizes.
	MessageSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "onebody_message_size_bytes",
			Help:    "Size of inbound messages in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	// RelayDeliveriesTotal counts outbound relay attempts by status:
	// "success" or "failure".
	RelayDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onebody_relay_deliveries_total",
			Help: "Total number of envelopes handed to the SMTP relay by status",
		},
		[]string{"status"},
	)

	// DirectoryCacheHitsTotal counts directory lookups answered from the
	// in-memory cache.
	DirectoryCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onebody_directory_cache_hits_total",
			Help: "Total number of directory cache hits",
		},
	)

	// DirectoryCacheMissesTotal counts directory lookups that fell
	// through to the database.
	DirectoryCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onebody_directory_cache_misses_total",
			Help: "Total number of directory cache misses",
		},
	)

	// DirectoryCacheEntries reports the current number of cached
	// directory entries.
	DirectoryCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "onebody_directory_cache_entries",
			Help: "Current number of entries in the directory cache",
		},
	)

	// DirectoryCacheSharedFetchesTotal counts lookups that piggybacked on
	// a concurrent fetch of the same key.
	DirectoryCacheSharedFetchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onebody_directory_cache_shared_fetches_total",
			Help: "Total number of directory lookups coalesced into a concurrent fetch",
		},
	)

	// DBPoolTotalConns reports connection pool sizes by pool type.
	DBPoolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "onebody_db_pool_total_conns",
			Help: "Total number of connections in the database pool",
		},
		[]string{"pool"},
	)
)
