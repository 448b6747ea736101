// Package metrics exposes the engine's prometheus instrumentation.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	once     sync.Once

	matchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "match_latency_seconds",
		Help:    "Latency of order submission through matching in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	ordersAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_accepted_total",
			Help: "Total number of orders accepted.",
		},
		[]string{"asset"},
	)
	ordersRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of orders rejected before insertion.",
	})
	tradesMatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trades_matched_total",
			Help: "Total number of trades produced by matching.",
		},
		[]string{"asset"},
	)
	bookDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "book_depth_orders",
			Help: "Current number of resting orders per book side.",
		},
		[]string{"asset", "side"},
	)
)

// Init registers metrics with the registry once.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			matchLatency,
			ordersAccepted,
			ordersRejected,
			tradesMatched,
			bookDepth,
		)
	})
}

// Handler exposes the prometheus metrics endpoint handler.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveMatchLatency records one submission's end-to-end matching latency.
func ObserveMatchLatency(d time.Duration) {
	Init()
	matchLatency.Observe(d.Seconds())
}

// IncOrdersAccepted increments the accepted-order counter for an asset.
func IncOrdersAccepted(asset string) {
	Init()
	ordersAccepted.WithLabelValues(asset).Inc()
}

// IncOrdersRejected increments the rejected-order counter.
func IncOrdersRejected() {
	Init()
	ordersRejected.Inc()
}

// AddTradesMatched adds n to the trade counter for an asset.
func AddTradesMatched(asset string, n int) {
	Init()
	if n <= 0 {
		return
	}
	tradesMatched.WithLabelValues(asset).Add(float64(n))
}

// SetBookDepth sets the resting-order gauge for an asset and side.
func SetBookDepth(asset, side string, depth float64) {
	Init()
	bookDepth.WithLabelValues(asset, side).Set(depth)
}
