/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prometheus

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamverify/ingest/pkg/api"
)

var _ api.Provider = (*Provider)(nil)

// Provider creates instruments registered with a Prometheus registry.
type Provider struct {
	Registry *prom.Registry
}

// NewProvider returns a provider with a fresh registry that already exposes the Go runtime
// and process collectors.
func NewProvider() *Provider {
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Provider{Registry: reg}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})
}

func (p *Provider) NewCounter(o api.CounterOpts) api.Counter {
	cv := prom.NewCounterVec(prom.CounterOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
	}, o.LabelNames)
	return &Counter{cv: p.register(cv).(*prom.CounterVec)}
}

func (p *Provider) NewGauge(o api.GaugeOpts) api.Gauge {
	gv := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
	}, o.LabelNames)
	return &Gauge{gv: p.register(gv).(*prom.GaugeVec)}
}

func (p *Provider) NewHistogram(o api.HistogramOpts) api.Histogram {
	hv := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
		Buckets:   o.Buckets,
	}, o.LabelNames)
	return &Histogram{hv: p.register(hv).(*prom.HistogramVec)}
}

// register returns the already registered collector when an identical one exists,
// so several components may ask for the same instrument.
func (p *Provider) register(c prom.Collector) prom.Collector {
	if err := p.Registry.Register(c); err != nil {
		if are, ok := err.(prom.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

type Counter struct {
	cv     *prom.CounterVec
	labels []string
}

func (c *Counter) With(labelValues ...string) api.Counter {
	return &Counter{cv: c.cv, labels: append(append([]string(nil), c.labels...), labelValues...)}
}

func (c *Counter) Add(delta float64) {
	c.cv.With(labelsOf(c.labels)).Add(delta)
}

type Gauge struct {
	gv     *prom.GaugeVec
	labels []string
}

func (g *Gauge) With(labelValues ...string) api.Gauge {
	return &Gauge{gv: g.gv, labels: append(append([]string(nil), g.labels...), labelValues...)}
}

func (g *Gauge) Add(delta float64) {
	g.gv.With(labelsOf(g.labels)).Add(delta)
}

func (g *Gauge) Set(value float64) {
	g.gv.With(labelsOf(g.labels)).Set(value)
}

type Histogram struct {
	hv     *prom.HistogramVec
	labels []string
}

func (h *Histogram) With(labelValues ...string) api.Histogram {
	return &Histogram{hv: h.hv, labels: append(append([]string(nil), h.labels...), labelValues...)}
}

func (h *Histogram) Observe(value float64) {
	h.hv.With(labelsOf(h.labels)).Observe(value)
}

// labelsOf turns name/value pairs into prometheus labels.
func labelsOf(pairs []string) prom.Labels {
	if len(pairs)%2 != 0 {
		panic("label values must be given as name/value pairs")
	}
	labels := make(prom.Labels, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		labels[pairs[i]] = pairs[i+1]
	}
	return labels
}
