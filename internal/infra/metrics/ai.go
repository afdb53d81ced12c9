package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(aiTokens, aiCallSeconds, aiCallFailures, aiInFlight) }

// ModelCall describes one completed request to a model provider. ErrKind is
// empty when the call succeeded.
type ModelCall struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Elapsed          time.Duration
	ErrKind          string
}

var (
	aiTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_ai_tokens_total",
			Help: "Tokens reported by providers, split into prompt and completion.",
		},
		[]string{"provider", "model", "direction"},
	)

	aiCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playground_ai_call_seconds",
			Help:    "Wall time of model calls, including the ones that failed.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms .. 64s
		},
		[]string{"provider", "result"},
	)

	aiInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playground_ai_calls_in_flight",
			Help: "Provider calls currently holding a concurrency slot.",
		},
	)

	aiCallFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_ai_call_failures_total",
			Help: "Failed model calls by provider and kind (credential|timeout|upstream|other).",
		},
		[]string{"provider", "kind"},
	)
)

func ObserveModelCall(c ModelCall) {
	provider := norm(c.Provider)
	result := "ok"
	if c.ErrKind != "" {
		result = "error"
		aiCallFailures.WithLabelValues(provider, norm(c.ErrKind)).Inc()
	}
	aiCallSeconds.WithLabelValues(provider, result).Observe(c.Elapsed.Seconds())

	if c.PromptTokens > 0 {
		aiTokens.WithLabelValues(provider, norm(c.Model), "prompt").Add(float64(c.PromptTokens))
	}
	if c.CompletionTokens > 0 {
		aiTokens.WithLabelValues(provider, norm(c.Model), "completion").Add(float64(c.CompletionTokens))
	}
}

func AddAIInFlight(delta float64) { aiInFlight.Add(delta) }
