package inference

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	endpointGenerate = "generate"
	endpointHealth   = "health"
	outcomeOK        = "ok"
)

var (
	// upstreamCalls counts model service calls by endpoint and outcome
	// ("ok" or an error Kind).
	upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_requests_total",
			Help: "Total number of calls to the model service.",
		},
		[]string{"endpoint", "outcome"},
	)

	// Inference latency is dominated by generation, hence the long tail.
	upstreamLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_request_duration_seconds",
			Help:    "Duration of model service calls in seconds.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(upstreamCalls, upstreamLat)
}

// observe records one call and passes err through.
func observe(endpoint string, start time.Time, err *UpstreamError) error {
	upstreamLat.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		upstreamCalls.WithLabelValues(endpoint, string(err.Kind)).Inc()
		return err
	}
	upstreamCalls.WithLabelValues(endpoint, outcomeOK).Inc()
	return nil
}
