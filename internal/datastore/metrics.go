package datastore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealerdesk_datastore_cache_hits_total",
		Help: "Number of acquires served from the tenant connection cache",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealerdesk_datastore_cache_misses_total",
		Help: "Number of acquires that had to open a new tenant connection",
	})
	connectionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealerdesk_datastore_connections_opened_total",
		Help: "Number of tenant store connections opened",
	})
	openFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealerdesk_datastore_open_failures_total",
		Help: "Number of tenant store connection attempts that failed",
	})
	evictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealerdesk_datastore_evictions_total",
		Help: "Number of idle tenant connections closed by eviction",
	})
	openConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealerdesk_datastore_open_connections",
		Help: "Number of tenant connections currently cached",
	})
	activeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealerdesk_datastore_active_requests",
		Help: "Number of in-flight requests holding a tenant connection",
	})
)
