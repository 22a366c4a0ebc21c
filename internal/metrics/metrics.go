package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for fetching, scraping and the analysis queue.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec

	TendersScraped prometheus.Counter
	TendersRemoved prometheus.Counter
	ChangesTotal   *prometheus.CounterVec
	RunsTotal      *prometheus.CounterVec
	AnalysisJobs   *prometheus.CounterVec
	StuckJobs      prometheus.Counter
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_fetch_requests_total",
			Help: "Total HTTP requests issued by the fetch client.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tender_fetch_request_duration_seconds",
			Help:    "HTTP request latency for fetch client requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tender_fetch_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_fetch_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	scraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tender_snapshots_persisted_total",
			Help: "Total tender snapshots persisted.",
		},
	)
	removed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tender_removed_total",
			Help: "Total listing tenders whose detail page could not be scraped.",
		},
	)
	changes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_changes_detected_total",
			Help: "Total change records detected by type.",
		},
		[]string{"change_type"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_scrape_runs_total",
			Help: "Total scrape runs by final status.",
		},
		[]string{"status"},
	)
	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tender_analysis_jobs_total",
			Help: "Analysis job lifecycle events.",
		},
		[]string{"event"},
	)
	stuck := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tender_analysis_stuck_jobs_total",
			Help: "Total analysis jobs failed by the stuck-job sweep.",
		},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal,
		scraped, removed, changes, runs, jobs, stuck)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		TendersScraped:  scraped,
		TendersRemoved:  removed,
		ChangesTotal:    changes,
		RunsTotal:       runs,
		AnalysisJobs:    jobs,
		StuckJobs:       stuck,
	}
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncScraped() {
	if m == nil {
		return
	}
	m.TendersScraped.Inc()
}

func (m *Metrics) IncRemoved() {
	if m == nil {
		return
	}
	m.TendersRemoved.Inc()
}

func (m *Metrics) AddChanges(changeType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ChangesTotal.WithLabelValues(changeType).Add(float64(n))
}

func (m *Metrics) IncRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncJob(event string) {
	if m == nil {
		return
	}
	m.AnalysisJobs.WithLabelValues(event).Inc()
}

func (m *Metrics) AddStuck(n int) {
	if m == nil || n == 0 {
		return
	}
	m.StuckJobs.Add(float64(n))
}
