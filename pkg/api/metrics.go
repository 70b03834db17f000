// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package api

// Provider creates metric instruments.
type Provider interface {
	NewCounter(CounterOpts) Counter
	NewGauge(GaugeOpts) Gauge
	NewHistogram(HistogramOpts) Histogram
}

// CounterOpts describes a Counter.
type CounterOpts struct {
	Namespace  string
	Subsystem  string
	Name       string
	Help       string
	LabelNames []string
}

// GaugeOpts describes a Gauge.
type GaugeOpts struct {
	Namespace  string
	Subsystem  string
	Name       string
	Help       string
	LabelNames []string
}

// HistogramOpts describes a Histogram. Nil Buckets selects the backend defaults.
type HistogramOpts struct {
	Namespace  string
	Subsystem  string
	Name       string
	Help       string
	Buckets    []float64
	LabelNames []string
}

// A Counter represents a monotonically increasing value.
type Counter interface {
	// With is used to provide label values when updating a Counter. This must be
	// used to provide values for all LabelNames provided to CounterOpts.
	With(labelValues ...string) Counter

	// Add increments a counter value.
	Add(delta float64)
}

// A Gauge is a meter that expresses the current value of some metric.
type Gauge interface {
	// With is used to provide label values when recording a Gauge value. This
	// must be used to provide values for all LabelNames provided to GaugeOpts.
	With(labelValues ...string) Gauge

	// Add increments a Gauge value.
	Add(delta float64)

	// Set is used to update the current value associated with a Gauge.
	Set(value float64)
}

// A Histogram is a meter that records an observed value into quantized
// buckets.
type Histogram interface {
	// With is used to provide label values when recording a Histogram
	// observation. This must be used to provide values for all LabelNames
	// provided to HistogramOpts.
	With(labelValues ...string) Histogram
	Observe(value float64)
}

// --------------------------------------

// EmptyLogger is used to prevent nil interface errors
type EmptyLogger struct{}

func (EmptyLogger) Debugf(string, ...interface{}) {}
func (EmptyLogger) Infof(string, ...interface{})  {}
func (EmptyLogger) Errorf(string, ...interface{}) {}
func (EmptyLogger) Warnf(string, ...interface{})  {}
func (EmptyLogger) Panicf(string, ...interface{}) {}

// EmptyCounter is used to prevent nil interface errors
type EmptyCounter struct{}

func (EmptyCounter) With(...string) Counter { return EmptyCounter{} }
func (EmptyCounter) Add(float64)            {}

// EmptyGauge is used to prevent nil interface errors
type EmptyGauge struct{}

func (EmptyGauge) With(...string) Gauge { return EmptyGauge{} }
func (EmptyGauge) Add(float64)          {}
func (EmptyGauge) Set(float64)          {}

// EmptyHistogram is used to prevent nil interface errors
type EmptyHistogram struct{}

func (EmptyHistogram) With(...string) Histogram { return &EmptyHistogram{} }
func (EmptyHistogram) Observe(float64)          {}

// --------------------------------------
