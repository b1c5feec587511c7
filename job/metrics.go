package job

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records print job outcomes. A nil *Metrics records nothing.
type Metrics struct {
	jobs     *prometheus.CounterVec
	duration prometheus.Histogram
	gateWait prometheus.Histogram
	inFlight prometheus.Gauge
}

// NewMetrics creates job metrics registered with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escpos",
			Name:      "print_jobs_total",
			Help:      "Print jobs by outcome.",
		}, []string{"outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "escpos",
			Name:      "print_job_duration_seconds",
			Help:      "Time from job start to result.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		}),
		gateWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "escpos",
			Name:      "print_job_gate_wait_seconds",
			Help:      "Time spent waiting for exclusive access to a device.",
			Buckets:   prometheus.DefBuckets,
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "escpos",
			Name:      "print_jobs_in_flight",
			Help:      "Jobs currently holding or waiting for a device.",
		}),
	}
}

func (m *Metrics) observe(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	m.jobs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) waited(d time.Duration) {
	if m == nil {
		return
	}
	m.gateWait.Observe(d.Seconds())
}

func (m *Metrics) enter() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) leave() {
	if m != nil {
		m.inFlight.Dec()
	}
}
