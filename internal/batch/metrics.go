package batch

import metrics "github.com/streamverify/ingest/pkg/api"

var countOfFlushesOpts = metrics.CounterOpts{
	Namespace:  "streamverify",
	Subsystem:  "batch",
	Name:       "count_of_flushes",
	Help:       "Count of buffer flushes to the parser, by trigger.",
	LabelNames: []string{"stream", "trigger"},
}

var countOfFilesFlushedOpts = metrics.CounterOpts{
	Namespace:  "streamverify",
	Subsystem:  "batch",
	Name:       "count_of_files_flushed",
	Help:       "Count of stream files handed to the parser.",
	LabelNames: []string{"stream"},
}

var countOfParserFailuresOpts = metrics.CounterOpts{
	Namespace:  "streamverify",
	Subsystem:  "batch",
	Name:       "count_of_parser_failures",
	Help:       "Count of parser calls that returned an error.",
	LabelNames: []string{"stream"},
}

var queueDepthOpts = metrics.GaugeOpts{
	Namespace:  "streamverify",
	Subsystem:  "batch",
	Name:       "queue_depth",
	Help:       "Count of stream files waiting in the notifier queue.",
	LabelNames: []string{"stream"},
}

type Metrics struct {
	CountOfFlushes       metrics.Counter
	CountOfFilesFlushed  metrics.Counter
	CountOfParserFailure metrics.Counter
	QueueDepth           metrics.Gauge
}

func NewMetrics(p metrics.Provider, stream string) *Metrics {
	return &Metrics{
		CountOfFlushes:       p.NewCounter(countOfFlushesOpts).With("stream", stream),
		CountOfFilesFlushed:  p.NewCounter(countOfFilesFlushedOpts).With("stream", stream),
		CountOfParserFailure: p.NewCounter(countOfParserFailuresOpts).With("stream", stream),
		QueueDepth:           p.NewGauge(queueDepthOpts).With("stream", stream),
	}
}
