package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Announcement outcomes used as the status label.
const (
	StatusPublished     = "published"
	StatusFailed        = "failed"
	StatusFiltered      = "filtered"
	StatusDuplicate     = "duplicate"
	StatusNotAuthorized = "not_authorized"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	EventsFetched       prometheus.Counter
	Announcements       *prometheus.CounterVec
	MetadataUnavailable prometheus.Counter
	SourceErrors        *prometheus.CounterVec
	CycleDuration       prometheus.Histogram
	CursorPosition      prometheus.Gauge
	Authorized          prometheus.Gauge
	LastSuccessTS       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.EventsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jbtweeter",
		Name:      "events_fetched_total",
		Help:      "Project-creation events returned by the source",
	})
	m.Announcements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jbtweeter",
		Name:      "announcements_total",
		Help:      "Announcements by outcome",
	}, []string{"status"})
	m.MetadataUnavailable = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jbtweeter",
		Name:      "metadata_unavailable_total",
		Help:      "Metadata lookups that fell back to empty metadata",
	})
	m.SourceErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jbtweeter",
		Name:      "source_errors_total",
		Help:      "Failed fetches by source",
	}, []string{"source"})
	m.CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jbtweeter",
		Name:      "cycle_duration_seconds",
		Help:      "Time spent in one pipeline cycle",
		Buckets:   prometheus.DefBuckets,
	})
	m.CursorPosition = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jbtweeter",
		Name:      "cursor_position",
		Help:      "Last persisted cursor position",
	})
	m.Authorized = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jbtweeter",
		Name:      "authorized",
		Help:      "1 when a broadcast credential is held",
	})
	m.LastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "jbtweeter",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last cycle that reached the source",
	})
	m.reg.MustRegister(
		m.EventsFetched, m.Announcements, m.MetadataUnavailable, m.SourceErrors,
		m.CycleDuration, m.CursorPosition, m.Authorized, m.LastSuccessTS,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveCycle(start time.Time) {
	m.CycleDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetAuthorized(ok bool) {
	if ok {
		m.Authorized.Set(1)
		return
	}
	m.Authorized.Set(0)
}
