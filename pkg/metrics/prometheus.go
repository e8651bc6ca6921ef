package metrics

import (
	"time"

	"Socially/pkg/queue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements queue.Observer using Prometheus.
type Recorder struct {
	enqueued      *prometheus.CounterVec
	enqueueErrors *prometheus.CounterVec
	completed     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	dead          *prometheus.CounterVec
	active        *prometheus.GaugeVec
	duration      *prometheus.HistogramVec
	retryDelay    *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
}

// New creates a recorder whose collectors are registered with reg.
// A nil reg uses the default Prometheus registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := []string{"queue", "job"}

	return &Recorder{
		enqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socially_jobs_enqueued_total",
				Help: "Total number of jobs accepted by the broker",
			},
			labels,
		),
		enqueueErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socially_jobs_enqueue_errors_total",
				Help: "Total number of enqueue calls that failed",
			},
			labels,
		),
		completed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socially_jobs_completed_total",
				Help: "Total number of jobs that completed",
			},
			labels,
		),
		failed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socially_jobs_failed_total",
				Help: "Total number of failed attempts that were scheduled for retry",
			},
			labels,
		),
		dead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socially_jobs_dead_total",
				Help: "Total number of jobs that exhausted their retries",
			},
			labels,
		),
		active: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "socially_jobs_active",
				Help: "Jobs currently being processed by this instance",
			},
			labels,
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "socially_job_duration_seconds",
				Help:    "Handler duration of completed jobs",
				Buckets: prometheus.DefBuckets,
			},
			labels,
		),
		retryDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "socially_job_retry_delay_seconds",
				Help:    "Backoff delay applied to failed jobs",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			labels,
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "socially_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) JobEnqueued(q, name string) {
	r.enqueued.WithLabelValues(q, name).Inc()
}

func (r *Recorder) EnqueueFailed(q, name string) {
	r.enqueueErrors.WithLabelValues(q, name).Inc()
}

func (r *Recorder) JobStarted(q, name string) {
	r.active.WithLabelValues(q, name).Inc()
}

// JobFinished lowers the active gauge. Terminal events do not, since stalled
// jobs reclaimed from another instance fail without ever starting here.
func (r *Recorder) JobFinished(q, name string) {
	r.active.WithLabelValues(q, name).Dec()
}

func (r *Recorder) JobCompleted(q, name string, elapsed time.Duration) {
	r.completed.WithLabelValues(q, name).Inc()
	r.duration.WithLabelValues(q, name).Observe(elapsed.Seconds())
}

func (r *Recorder) JobFailed(q, name string, _ int, retryIn time.Duration) {
	r.failed.WithLabelValues(q, name).Inc()
	r.retryDelay.WithLabelValues(q, name).Observe(retryIn.Seconds())
}

func (r *Recorder) JobDead(q, name string) {
	r.dead.WithLabelValues(q, name).Inc()
}

// RecordError records an error occurrence outside the job lifecycle.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

var _ queue.Observer = (*Recorder)(nil)
