// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

// Package batch buffers verified stream files and hands them to the downstream parser.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/config"
	"github.com/streamverify/ingest/pkg/metrics/disabled"
	"github.com/streamverify/ingest/pkg/types"
)

var (
	// ErrStopped is returned by Submit once the notifier is stopped.
	ErrStopped = errors.New("notifier stopped")
	// ErrNotStarted is returned by Submit and Stop before Start.
	ErrNotStarted = errors.New("notifier not started")
)

const (
	triggerFiles    = "files"
	triggerItems    = "items"
	triggerCaughtUp = "caught_up"
	triggerInterval = "interval"
	triggerTimeout  = "timeout"
	triggerStop     = "stop"
)

// Notifier accumulates the stream files of one stream type and flushes them to a Parser.
// The buffer is owned by a single goroutine; Submit only enqueues.
type Notifier struct {
	Type    types.StreamType
	Parser  api.Parser
	Logger  api.Logger
	Config  config.BatchConfiguration
	Metrics *Metrics

	queue    chan *types.StreamFile
	stopChan chan struct{}
	stopOnce sync.Once
	done     sync.WaitGroup

	// state of the consumer goroutine
	buffer    []*types.StreamFile
	itemCount uint64
	lastFlush time.Time
}

// Start launches the consumer goroutine.
func (n *Notifier) Start() {
	if n.Logger == nil {
		n.Logger = api.EmptyLogger{}
	}
	if n.Metrics == nil {
		n.Metrics = NewMetrics(&disabled.Provider{}, n.Type.String())
	}
	n.stopOnce = sync.Once{}
	n.stopChan = make(chan struct{})
	n.queue = make(chan *types.StreamFile, n.Config.QueueCapacity)
	n.lastFlush = time.Now()

	n.done.Add(1)
	go func() {
		defer n.done.Done()
		n.run()
	}()
}

// Submit enqueues a file, blocking while the queue is full.
func (n *Notifier) Submit(ctx context.Context, file *types.StreamFile) error {
	if n.stopChan == nil {
		return errors.Wrapf(ErrNotStarted, "%s", n.Type)
	}

	select {
	case <-n.stopChan:
		return ErrStopped
	default:
	}

	select {
	case n.queue <- file:
		n.Metrics.QueueDepth.Set(float64(len(n.queue)))
		return nil
	case <-n.stopChan:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop flushes what is buffered and waits for the consumer to exit, or for ctx to expire.
func (n *Notifier) Stop(ctx context.Context) error {
	if n.stopChan == nil {
		return errors.Wrapf(ErrNotStarted, "%s", n.Type)
	}
	n.stopOnce.Do(func() {
		close(n.stopChan)
	})

	exited := make(chan struct{})
	go func() {
		n.done.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "%s notifier did not stop in time", n.Type)
	}
}

func (n *Notifier) run() {
	defer n.Logger.Debugf("%s notifier exiting", n.Type)

	for {
		select {
		case <-n.stopChan:
			n.drain()
			return
		case file := <-n.queue:
			n.Metrics.QueueDepth.Set(float64(len(n.queue)))
			n.add(file)
		case <-time.After(n.Config.PollFrequency):
			if len(n.buffer) > 0 && time.Since(n.lastFlush) >= n.Config.FlushInterval {
				n.flush(triggerTimeout)
			}
		}
	}
}

func (n *Notifier) add(file *types.StreamFile) {
	n.buffer = append(n.buffer, file)
	n.itemCount += file.Count

	if trigger := n.flushTrigger(file); trigger != "" {
		n.flush(trigger)
	}
}

func (n *Notifier) flushTrigger(file *types.StreamFile) string {
	now := time.Now()
	switch {
	case len(n.buffer) >= n.Config.MaxFiles:
		return triggerFiles
	case n.itemCount >= n.Config.MaxItems:
		return triggerItems
	case now.Sub(time.Unix(0, file.ConsensusEnd)) <= n.Config.CaughtUpWindow:
		return triggerCaughtUp
	case now.Sub(n.lastFlush) >= n.Config.FlushInterval:
		return triggerInterval
	default:
		return ""
	}
}

// drain moves whatever is still queued into the buffer and flushes it.
func (n *Notifier) drain() {
	for {
		select {
		case file := <-n.queue:
			n.buffer = append(n.buffer, file)
			n.itemCount += file.Count
		default:
			if len(n.buffer) > 0 {
				n.flush(triggerStop)
			}
			return
		}
	}
}

func (n *Notifier) flush(trigger string) {
	var err error
	if len(n.buffer) == 1 {
		err = n.Parser.Parse(n.buffer[0])
	} else {
		err = n.Parser.ParseBatch(n.buffer)
	}

	n.Metrics.CountOfFlushes.With("trigger", trigger).Add(1)
	if err != nil {
		n.Metrics.CountOfParserFailure.Add(1)
		n.Logger.Errorf("Parser failed on %d %s files (%s flush): %v", len(n.buffer), n.Type, trigger, err)
	} else {
		n.Metrics.CountOfFilesFlushed.Add(float64(len(n.buffer)))
		n.Logger.Debugf("Flushed %d %s files with %d items (%s)", len(n.buffer), n.Type, n.itemCount, trigger)
	}

	n.buffer = nil
	n.itemCount = 0
	n.lastFlush = time.Now()
}
