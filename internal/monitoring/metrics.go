package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sweep outcomes, used as the "outcome" label value.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

const metricsPrefix = "spectrum_"

// Registry holds the spectrum metrics plus the Go and process collectors.
// It is separate from the default registry so tests can read it directly.
var Registry = prometheus.NewRegistry()

var (
	sweepsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "sweeps_total",
		Help: "Number of finished histogram sweeps grouped by outcome",
	}, []string{"outcome"})

	distancesTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "distances_total",
		Help: "Number of distances delivered to histograms",
	})

	activeSweeps = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: metricsPrefix + "active_sweeps",
		Help: "Number of sweeps currently running",
	})

	sweepDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    metricsPrefix + "sweep_duration_seconds",
		Help:    "Wall time of histogram sweeps",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// SweepStarted records a sweep entering its background goroutine.
func SweepStarted() {
	activeSweeps.Inc()
}

// SweepFinished records the end of a sweep started with SweepStarted.
func SweepFinished(outcome string, distances uint64, elapsed time.Duration) {
	activeSweeps.Dec()
	sweepsTotal.WithLabelValues(outcome).Inc()
	distancesTotal.Add(float64(distances))
	sweepDuration.Observe(elapsed.Seconds())
}

// MetricsHandler serves Registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
