// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the unillm gateway.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, path, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unillm_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unillm_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "path"},
	)

	// ChatsInflight tracks chat requests currently being served, streaming
	// or not.
	ChatsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "unillm_chats_inflight",
			Help: "Chat requests in flight",
		},
	)

	// ProviderRequestsTotal counts requests sent to upstream providers.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unillm_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records upstream latency in seconds. For streaming
	// requests this spans the whole stream.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unillm_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unillm_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unillm_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ChatsInflight,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		RateLimitRejectedTotal,
	)
}

// ObserveProviderRequest records the outcome and latency of one upstream
// call.
func ObserveProviderRequest(provider, model, status string, elapsed time.Duration) {
	ProviderRequestsTotal.WithLabelValues(provider, model, status).Inc()
	ProviderLatency.WithLabelValues(provider, model).Observe(elapsed.Seconds())
}

// AddTokens records token counts for one completed request.
func AddTokens(provider, model string, input, output int) {
	if input > 0 {
		ProviderTokensTotal.WithLabelValues(provider, model, "input").Add(float64(input))
	}
	if output > 0 {
		ProviderTokensTotal.WithLabelValues(provider, model, "output").Add(float64(output))
	}
}
