package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ItemsScrapedTotal prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	BatchesTotal      prometheus.Counter
	StopSignalsTotal  prometheus.Counter
	QueueWriteErrors  prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total number of listings sent to the write queue.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	batches := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_batches_total",
			Help: "Total number of page batches completed.",
		},
	)
	stops := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_stop_signals_total",
			Help: "Jobs ended early by a zero-watcher listing.",
		},
	)
	queueWriteErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_write_errors_total",
			Help: "Records lost because the output sink rejected them.",
		},
	)

	registry.MustRegister(requests, requestDuration, itemsScraped, errorsTotal, batches, stops, queueWriteErrors)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ItemsScrapedTotal: itemsScraped,
		ErrorsTotal:       errorsTotal,
		BatchesTotal:      batches,
		StopSignalsTotal:  stops,
		QueueWriteErrors:  queueWriteErrors,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncItems increments the items scraped counter.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsScrapedTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncBatch() {
	if m == nil {
		return
	}
	m.BatchesTotal.Inc()
}

func (m *Metrics) IncStopSignal() {
	if m == nil {
		return
	}
	m.StopSignalsTotal.Inc()
}

// QueueWriteError matches pipeline.Options.OnWriteError.
func (m *Metrics) QueueWriteError(error) {
	if m == nil {
		return
	}
	m.QueueWriteErrors.Inc()
}
