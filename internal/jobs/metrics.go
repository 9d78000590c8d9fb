package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	deliveries *prometheus.CounterVec
	expired    prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against registerer, falling back to
// the default registerer once when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts a tracker for job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome and duration of the run and returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// Delivered counts a document notification handed to the outbound channel.
func (m *Metrics) Delivered(kind string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind).Inc()
}

// AddExpired counts quotes moved to EXPIRED by the sweep.
func (m *Metrics) AddExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "garage_jobs_total",
		Help: "Job executions by job name and status.",
	}, []string{"job", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "garage_job_duration_seconds",
		Help:    "Duration of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "garage_documents_delivered_total",
		Help: "Document notifications delivered by event kind.",
	}, []string{"kind"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "garage_quotes_expired_total",
		Help: "Quotes expired by the periodic sweep.",
	})
	registerer.MustRegister(runs, duration, deliveries, expired)
	return &Metrics{runs: runs, duration: duration, deliveries: deliveries, expired: expired}
}
