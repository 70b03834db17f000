// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package config

import (
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/streamverify/ingest/pkg/types"
)

// Configuration defines the parameters of the ingestion pipeline.
type Configuration struct {
	// ConsensusRatio is the fraction of the total stake that must agree on a file hash, written as a
	// rational ("1/3") or decimal ("0.5") number. A ratio of "0" disables the stake check entirely.
	ConsensusRatio string
	// MaxConcurrency caps the number of nodes whose signatures are downloaded in parallel.
	// Zero sizes the worker pool to the number of nodes.
	MaxConcurrency int
	// RequestTimeout bounds every single list or get call against a node's objects.
	RequestTimeout time.Duration
	// ListBatchSize is the maximal number of keys listed per node in one cycle.
	ListBatchSize int
	// RequestsPerSecond limits the object store calls made on behalf of a single node.
	// Zero means unlimited.
	RequestsPerSecond float64
	// StopTimeout is how long shutdown waits for background consumers to drain.
	StopTimeout time.Duration
	// CycleInterval is the pause between two ingestion cycles of a stream type.
	CycleInterval time.Duration
	// BypassHashMismatchUntilAfter disables hash chain verification for data files whose name sorts
	// before it. It is used when the checkpoint store holds no marker of its own.
	BypassHashMismatchUntilAfter string
	// Streams lists the stream types that are ingested.
	Streams []types.StreamType
	// ValidDir is the directory verified data files are copied into. Empty disables archiving.
	ValidDir string

	// Batch configures the notifiers between the downloader and the downstream parser.
	Batch BatchConfiguration

	// Log configures the process logger.
	Log LogConfiguration
	// ObjectStoreRoot is the local directory mirroring the bucket the nodes publish to.
	ObjectStoreRoot string
	// AddressBookFile is the YAML file holding the node keys and stakes.
	AddressBookFile string
	// CheckpointDir is the LevelDB directory holding ingestion checkpoints.
	CheckpointDir string
	// StatusAddress is the listen address of the status and metrics endpoint. Empty disables it.
	StatusAddress string
}

// BatchConfiguration defines when buffered stream files are flushed downstream.
type BatchConfiguration struct {
	// MaxFiles flushes the buffer once it holds this many files.
	MaxFiles int
	// MaxItems flushes the buffer once the files in it hold this many items in total.
	MaxItems uint64
	// FlushInterval is the maximal time buffered files wait before being flushed, measured from the
	// previous flush.
	FlushInterval time.Duration
	// PollFrequency is how long the consumer waits for a new file before checking the FlushInterval.
	PollFrequency time.Duration
	// CaughtUpWindow flushes immediately when the last item of a file reached consensus at most this
	// long ago, since latency matters more than batching once ingestion is caught up.
	CaughtUpWindow time.Duration
	// QueueCapacity is the number of files that may wait for the consumer before Submit blocks.
	QueueCapacity int
}

// LogConfiguration defines the process logger.
type LogConfiguration struct {
	Level string
	File  string
}

// DefaultConfig contains reasonable values for a mirror of a network of a few dozen nodes that
// publish a file every few seconds.
var DefaultConfig = Configuration{
	ConsensusRatio:    "1/3",
	MaxConcurrency:    0,
	RequestTimeout:    10 * time.Second,
	ListBatchSize:     100,
	RequestsPerSecond: 0,
	StopTimeout:       10 * time.Second,
	CycleInterval:     2 * time.Second,
	Streams:           []types.StreamType{types.StreamTypeBalance, types.StreamTypeRecord},
	Batch: BatchConfiguration{
		MaxFiles:       10,
		MaxItems:       10000,
		FlushInterval:  2 * time.Second,
		PollFrequency:  100 * time.Millisecond,
		CaughtUpWindow: 10 * time.Second,
		QueueCapacity:  10,
	},
	Log: LogConfiguration{
		Level: "info",
	},
	ObjectStoreRoot: "./bucket",
	AddressBookFile: "./addressbook.yaml",
	CheckpointDir:   "./data/checkpoints",
	StatusAddress:   ":8080",
}

// Ratio parses ConsensusRatio.
func (c Configuration) Ratio() (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(c.ConsensusRatio))
	if !ok {
		return nil, errors.Errorf("invalid consensus ratio %q", c.ConsensusRatio)
	}
	return r, nil
}

// Validate checks the configuration for values the pipeline cannot work with.
func (c Configuration) Validate() error {
	r, err := c.Ratio()
	if err != nil {
		return err
	}
	if r.Sign() < 0 || r.Cmp(big.NewRat(1, 1)) > 0 {
		return errors.Errorf("consensus ratio %s is not within [0, 1]", c.ConsensusRatio)
	}
	if c.MaxConcurrency < 0 {
		return errors.Errorf("max concurrency must not be negative, got %d", c.MaxConcurrency)
	}
	if c.RequestTimeout <= 0 {
		return errors.Errorf("request timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.ListBatchSize <= 0 {
		return errors.Errorf("list batch size must be positive, got %d", c.ListBatchSize)
	}
	if c.RequestsPerSecond < 0 {
		return errors.Errorf("requests per second must not be negative, got %v", c.RequestsPerSecond)
	}
	if len(c.Streams) == 0 {
		return errors.New("no stream type is enabled")
	}
	for _, st := range c.Streams {
		if st == types.StreamTypeUnknown {
			return errors.New("unknown stream type enabled")
		}
	}
	return c.Batch.Validate()
}

// Validate checks the batch configuration.
func (b BatchConfiguration) Validate() error {
	if b.MaxFiles <= 0 {
		return errors.Errorf("batch max files must be positive, got %d", b.MaxFiles)
	}
	if b.MaxItems == 0 {
		return errors.New("batch max items must be positive")
	}
	if b.FlushInterval <= 0 {
		return errors.Errorf("batch flush interval must be positive, got %v", b.FlushInterval)
	}
	if b.PollFrequency <= 0 {
		return errors.Errorf("batch poll frequency must be positive, got %v", b.PollFrequency)
	}
	if b.CaughtUpWindow < 0 {
		return errors.Errorf("batch caught up window must not be negative, got %v", b.CaughtUpWindow)
	}
	if b.QueueCapacity <= 0 {
		return errors.Errorf("batch queue capacity must be positive, got %d", b.QueueCapacity)
	}
	return nil
}
