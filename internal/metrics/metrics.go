package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route pattern, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)

	SearchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "search_runs_total", Help: "Finished searches by scorer and status."},
		[]string{"scorer", "status"},
	)
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "search_duration_seconds", Help: "Search wall time in seconds.", Buckets: prometheus.ExponentialBuckets(0.001, 4, 10)},
		[]string{"scorer"},
	)
	// SearchFrontierPeak is the largest frontier seen after merging.
	SearchFrontierPeak = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "search_frontier_peak", Help: "Peak frontier size per search.", Buckets: prometheus.ExponentialBuckets(1, 4, 12)},
	)
	SearchPruneRounds = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "search_prune_rounds_total", Help: "Midpoint prune rounds across all searches."},
	)
	SearchReward = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "search_reward", Help: "Best reward of the last finished search."},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(SearchRuns, SearchDuration, SearchFrontierPeak, SearchPruneRounds, SearchReward)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// SearchSummary is the part of a finished search the collectors record.
type SearchSummary struct {
	Scorer      string
	Status      string
	Duration    time.Duration
	PeakFrontier int
	PruneRounds int
	Reward      int
}

// ObserveSearch records one finished search. Failed searches only count.
func ObserveSearch(s SearchSummary) {
	SearchRuns.WithLabelValues(s.Scorer, s.Status).Inc()
	if s.Status != "succeeded" {
		return
	}
	SearchDuration.WithLabelValues(s.Scorer).Observe(s.Duration.Seconds())
	SearchFrontierPeak.Observe(float64(s.PeakFrontier))
	SearchPruneRounds.Add(float64(s.PruneRounds))
	SearchReward.Set(float64(s.Reward))
}
