package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	pendingAssets prometheus.Gauge
	dispatched    *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetPendingAssets records how many assets await activation beyond the
// reminder age.
func (m *Metrics) SetPendingAssets(count int) {
	if m == nil {
		return
	}
	m.pendingAssets.Set(float64(count))
}

// AddDispatched counts vendor dispatch outcomes by channel.
func (m *Metrics) AddDispatched(channel string) {
	if m == nil {
		return
	}
	if channel == "" {
		channel = "none"
	}
	m.dispatched.WithLabelValues(channel).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hub_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_assets_pending_activation",
		Help: "Assets received but not put to use beyond the reminder age.",
	})
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_vendor_dispatch_total",
		Help: "Vendor dispatches handed to a delivery channel.",
	}, []string{"channel"})
	registerer.MustRegister(runs, failures, duration, pending, dispatched)
	return &Metrics{runs: runs, failures: failures, duration: duration, pendingAssets: pending, dispatched: dispatched}
}
