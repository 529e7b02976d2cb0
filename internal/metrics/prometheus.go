package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "requests_total",
			Help:      "Total generation requests by outcome",
		},
		[]string{"outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "request_duration_seconds",
			Help:      "End-to-end pipeline duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"outcome"},
	)

	tokensGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "tokens_generated_total",
			Help:      "Total new tokens produced",
		},
	)

	generationInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "engine",
			Name:      "generation_inflight",
			Help:      "Generation calls currently holding the device slot (0 or 1)",
		},
	)

	modelLoadSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "model",
			Name:      "load_seconds",
			Help:      "Wall-clock duration of the one-time model load",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, tokensGenerated, generationInflight, modelLoadSeconds)
}

// ObserveRequest records a finished pipeline run for Prometheus. outcome is
// "ok" or the classified error type string.
func ObserveRequest(outcome string, dur time.Duration) {
	if outcome == "" {
		outcome = "ok"
	}
	requestsTotal.WithLabelValues(outcome).Inc()
	requestDuration.WithLabelValues(outcome).Observe(dur.Seconds())
}

// AddTokensGenerated bumps the token production counter.
func AddTokensGenerated(n int) {
	if n > 0 {
		tokensGenerated.Add(float64(n))
	}
}

// GenerationStarted / GenerationFinished track the single device slot.
func GenerationStarted()  { generationInflight.Inc() }
func GenerationFinished() { generationInflight.Dec() }

// SetModelLoadSeconds publishes the one-time load duration.
func SetModelLoadSeconds(d time.Duration) { modelLoadSeconds.Set(d.Seconds()) }
