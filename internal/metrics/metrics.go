// Package metrics exposes prometheus collectors for the chat service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups the service metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry     *prometheus.Registry
	sends        *prometheus.CounterVec
	sendDuration prometheus.Histogram
	ingested     prometheus.Counter
	rendered     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magicchat",
			Name:      "sends_total",
			Help:      "Messages sent to the answering service, by outcome.",
		}, []string{"outcome"}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "magicchat",
			Name:      "send_duration_seconds",
			Help:      "Round trip time of calls to the answering service.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "magicchat",
			Name:      "ingested_turns_total",
			Help:      "Turns pushed through the inbound webhook.",
		}),
		rendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magicchat",
			Name:      "rendered_turns_total",
			Help:      "Turns rendered, by payload kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		c.sends,
		c.sendDuration,
		c.ingested,
		c.rendered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveSend records one call to the answering service.
func (c *Collector) ObserveSend(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.sends.WithLabelValues(outcome).Inc()
	c.sendDuration.Observe(d.Seconds())
}

// AddIngested counts turns received through the webhook.
func (c *Collector) AddIngested(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ingested.Add(float64(n))
}

// ObserveRender counts one rendered turn.
func (c *Collector) ObserveRender(kind string) {
	if c == nil {
		return
	}
	c.rendered.WithLabelValues(kind).Inc()
}
