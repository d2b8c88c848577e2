package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	authRejections prometheus.Counter
	eventsSaved    prometheus.Counter
	eventsImported prometheus.Counter
}

// newMetrics registers on a private registry so several servers can live in
// one process (tests, mostly).
func newMetrics(events func() float64) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		authRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_rejections_total",
			Help: "Total number of unauthorized requests",
		}),
		eventsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_events_saved_total",
			Help: "Events created or edited through the editor",
		}),
		eventsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_events_imported_total",
			Help: "Events added by .ics or legacy imports",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.authRejections,
		m.eventsSaved,
		m.eventsImported,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "planner_events",
			Help: "Events currently held by the planner",
		}, events),
		collectors.NewGoCollector(),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
