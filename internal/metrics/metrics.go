// Package metrics exposes Prometheus collectors for the proxy and the companion.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moodmusic"

// Metrics holds every collector on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	analysisTotal    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	triggersDropped  *prometheus.CounterVec
	profileRestores  *prometheus.CounterVec
	pollerTicks      *prometheus.CounterVec
	proxyPlay        *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_total",
			Help:      "Mood analyses by outcome.",
		}, []string{"outcome"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time from accepted trigger to analysis cleanup.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		triggersDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_dropped_total",
			Help:      "Triggers rejected before an analysis started.",
		}, []string{"reason"}),
		profileRestores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_restores_total",
			Help:      "Attempts to restore the original connection profile.",
		}, []string{"result"}),
		pollerTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poller_ticks_total",
			Help:      "Playback poller ticks by result.",
		}, []string{"result"}),
		proxyPlay: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_play_total",
			Help:      "Proxy play requests by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.analysisTotal,
		m.analysisDuration,
		m.triggersDropped,
		m.profileRestores,
		m.pollerTicks,
		m.proxyPlay,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Analysis records a finished analysis.
func (m *Metrics) Analysis(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.analysisTotal.WithLabelValues(outcome).Inc()
	m.analysisDuration.Observe(d.Seconds())
}

// TriggerDropped records a trigger rejected for reason.
func (m *Metrics) TriggerDropped(reason string) {
	if m == nil {
		return
	}
	m.triggersDropped.WithLabelValues(reason).Inc()
}

// ProfileRestore records a profile restore attempt ("ok", "failed" or "skipped").
func (m *Metrics) ProfileRestore(result string) {
	if m == nil {
		return
	}
	m.profileRestores.WithLabelValues(result).Inc()
}

// PollerTick records one poller tick.
func (m *Metrics) PollerTick(result string) {
	if m == nil {
		return
	}
	m.pollerTicks.WithLabelValues(result).Inc()
}

// ProxyPlay records a proxy play request.
func (m *Metrics) ProxyPlay(endpoint string, status int) {
	if m == nil {
		return
	}
	m.proxyPlay.WithLabelValues(endpoint, statusLabel(status)).Inc()
}

func statusLabel(status int) string {
	if status <= 0 {
		return "0"
	}
	return strconv.Itoa(status)
}
