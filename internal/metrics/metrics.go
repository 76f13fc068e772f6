package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podium_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podium_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podium_ai_reservations_total",
			Help: "AI message reservation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podium_ai_completions_total",
			Help: "AI message completions by mode.",
		},
		[]string{"mode"},
	)

	ReleasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "podium_ai_releases_total",
			Help: "AI message reservations released without completion.",
		},
	)

	StreamFlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "podium_ai_stream_flushes_total",
			Help: "Stream assembler chunk flushes persisted.",
		},
	)

	RepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "podium_ai_structured_repairs_total",
			Help: "Structured output repair attempts by outcome.",
		},
		[]string{"outcome"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "podium_ai_provider_request_duration_seconds",
			Help:    "Inference provider request duration in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ReservationsTotal,
		CompletionsTotal,
		ReleasesTotal,
		StreamFlushesTotal,
		RepairsTotal,
		ProviderRequestDuration,
	)
}
