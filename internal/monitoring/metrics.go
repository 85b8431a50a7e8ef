package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	PopupsRefused  prometheus.Counter

	// Protocol metrics
	FramesServed     prometheus.Counter
	StaleRequests    prometheus.Counter
	EventsDispatched prometheus.Counter
	EventsLost       prometheus.Counter
	IframeJobsServed prometheus.Counter
	DownloadsServed  prometheus.Counter

	startTime time.Time
}

// NewMetrics creates a metrics collector registered on reg. Tests pass
// a private registry so collectors never collide across instances.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retroview_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retroview_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "retroview_sessions_active",
			Help: "Number of live viewer sessions",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "retroview_sessions_total",
			Help: "Total number of sessions ever created",
		}),
		PopupsRefused: factory.NewCounter(prometheus.CounterOpts{
			Name: "retroview_popups_refused_total",
			Help: "Popups refused because the service was full",
		}),

		FramesServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "retroview_frames_served_total",
			Help: "Compressed viewport frames served to image polls",
		}),
		StaleRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "retroview_stale_requests_total",
			Help: "Requests rejected for a stale generation or index",
		}),
		EventsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "retroview_events_dispatched_total",
			Help: "Input events dispatched to the widget tree",
		}),
		EventsLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "retroview_events_lost_total",
			Help: "Input events lost to sequence gaps",
		}),
		IframeJobsServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "retroview_iframe_jobs_served_total",
			Help: "Queued iframe jobs consumed by iframe polls",
		}),
		DownloadsServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "retroview_downloads_served_total",
			Help: "Completed downloads streamed to clients",
		}),
	}
}

// RecordHTTPRequest observes one finished HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Uptime returns time since the collector was created.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
