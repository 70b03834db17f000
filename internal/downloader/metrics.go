package downloader

import metrics "github.com/streamverify/ingest/pkg/api"

var countOfSignaturesDownloadedOpts = metrics.CounterOpts{
	Namespace:  "streamverify",
	Subsystem:  "downloader",
	Name:       "count_of_signatures_downloaded",
	Help:       "Count of signature files downloaded and decoded, by node.",
	LabelNames: []string{"stream", "node"},
}

var countOfNodeFailuresOpts = metrics.CounterOpts{
	Namespace:  "streamverify",
	Subsystem:  "downloader",
	Name:       "count_of_node_failures",
	Help:       "Count of failed object store calls, by node.",
	LabelNames: []string{"stream", "node"},
}

var countOfFilesVerifiedOpts = metrics.CounterOpts{
	Namespace:  "streamverify",
	Subsystem:  "downloader",
	Name:       "count_of_files_verified",
	Help:       "Count of data files verified and emitted.",
	LabelNames: []string{"stream"},
}

var countOfFilesFailedOpts = metrics.CounterOpts{
	Namespace:  "streamverify",
	Subsystem:  "downloader",
	Name:       "count_of_files_failed",
	Help:       "Count of filenames left unresolved in a cycle, by reason.",
	LabelNames: []string{"stream", "reason"},
}

var consensusLagOpts = metrics.GaugeOpts{
	Namespace:  "streamverify",
	Subsystem:  "downloader",
	Name:       "consensus_lag_seconds",
	Help:       "Time between the consensus end of the last verified file and its verification.",
	LabelNames: []string{"stream"},
}

var cycleDurationOpts = metrics.HistogramOpts{
	Namespace:  "streamverify",
	Subsystem:  "downloader",
	Name:       "cycle_duration_seconds",
	Help:       "Duration of a download cycle.",
	Buckets:    []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	LabelNames: []string{"stream"},
}

type Metrics struct {
	CountOfSignaturesDownloaded metrics.Counter
	CountOfNodeFailures         metrics.Counter
	CountOfFilesVerified        metrics.Counter
	CountOfFilesFailed          metrics.Counter
	ConsensusLag                metrics.Gauge
	CycleDuration               metrics.Histogram
}

func NewMetrics(p metrics.Provider, stream string) *Metrics {
	return &Metrics{
		CountOfSignaturesDownloaded: p.NewCounter(countOfSignaturesDownloadedOpts).With("stream", stream),
		CountOfNodeFailures:         p.NewCounter(countOfNodeFailuresOpts).With("stream", stream),
		CountOfFilesVerified:        p.NewCounter(countOfFilesVerifiedOpts).With("stream", stream),
		CountOfFilesFailed:          p.NewCounter(countOfFilesFailedOpts).With("stream", stream),
		ConsensusLag:                p.NewGauge(consensusLagOpts).With("stream", stream),
		CycleDuration:               p.NewHistogram(cycleDurationOpts).With("stream", stream),
	}
}
