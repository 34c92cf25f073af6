package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueryCacheHitsTotal counts structured queries answered from the
	// durable cache without a model call.
	QueryCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "query_cache_hits_total",
			Help: "Total number of structured queries served from the cache.",
		},
	)

	// HotCacheHitsTotal counts reads satisfied by the hot layer.
	HotCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hot_cache_hits_total",
			Help: "Total number of hot-layer cache hits.",
		},
	)

	// ModelCallsTotal counts external model invocations by outcome
	// (structured, text, empty, error).
	ModelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_calls_total",
			Help: "Total number of external model invocations.",
		},
		[]string{"outcome"},
	)

	// GatewayLatencySeconds is HTTP latency for the gateway in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main().
func Register() {
	prometheus.MustRegister(
		QueryCacheHitsTotal,
		HotCacheHitsTotal,
		ModelCallsTotal,
		GatewayLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		GatewayLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
