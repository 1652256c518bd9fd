package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	evaluations *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	candidates  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	inFlight    prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exoscan_evaluations_total",
				Help: "Evaluations by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exoscan_errors_total",
				Help: "Evaluation errors by kind",
			},
			[]string{"kind"},
		),
		candidates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exoscan_candidates_total",
				Help: "Light curves classified",
			},
			[]string{"backend"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exoscan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "exoscan_workers_in_flight",
			Help: "Inference worker processes currently running",
		}),
	}
}

func (r *Recorder) RecordEvaluation(backend, outcome string) {
	r.evaluations.WithLabelValues(backend, outcome).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordCandidates(backend string, n int) {
	r.candidates.WithLabelValues(backend).Add(float64(n))
}

func (r *Recorder) WorkerStarted() { r.inFlight.Inc() }

func (r *Recorder) WorkerFinished() { r.inFlight.Dec() }
