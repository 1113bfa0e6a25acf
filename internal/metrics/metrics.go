// Package metrics exposes prometheus collectors for renders, requests and
// builds. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "isomorph"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder owns a registry and the pipeline's collectors.
type Recorder struct {
	registry       *prometheus.Registry
	renders        *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	builds         *prometheus.CounterVec
}

// New creates a Recorder with its own registry. Go runtime and process
// collectors are included.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Component tree renders by mode and outcome.",
		}, []string{"mode", "outcome"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a component tree.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"mode"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Server-rendered document requests by outcome.",
		}, []string{"outcome"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Static builds by outcome.",
		}, []string{"outcome"}),
	}

	r.registry.MustRegister(
		r.renders,
		r.renderDuration,
		r.requests,
		r.builds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// ObserveRender records one render.
func (r *Recorder) ObserveRender(mode string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.renders.WithLabelValues(mode, outcome(err)).Inc()
	r.renderDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveRequest records one server-rendered request.
func (r *Recorder) ObserveRequest(err error) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(outcome(err)).Inc()
}

// ObserveBuild records one static build.
func (r *Recorder) ObserveBuild(err error) {
	if r == nil {
		return
	}
	r.builds.WithLabelValues(outcome(err)).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
