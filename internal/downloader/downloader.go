// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

// Package downloader drives ingestion cycles: it downloads the signature files every node
// published, decides which hash is trusted, and fetches, checks and emits the data files.
package downloader

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/streamverify/ingest/internal/chain"
	"github.com/streamverify/ingest/internal/verify"
	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/checkpoint"
	"github.com/streamverify/ingest/pkg/config"
	"github.com/streamverify/ingest/pkg/metrics/disabled"
	"github.com/streamverify/ingest/pkg/streamfile"
	"github.com/streamverify/ingest/pkg/types"
)

var (
	// ErrNoValidDataFile means no node that reached consensus served a data file matching the agreed hash.
	ErrNoValidDataFile = errors.New("no valid data file")
	// ErrHashChainBroken means the data file does not follow the checkpoint.
	ErrHashChainBroken = errors.New("hash chain broken")
)

// Notifier receives verified stream files.
type Notifier interface {
	Submit(ctx context.Context, file *types.StreamFile) error
}

// SignatureGroups maps a data filename to the signatures downloaded for it.
type SignatureGroups map[string][]*types.FileStreamSignature

// Filenames returns the filenames in ascending, hence chronological, order.
func (sg SignatureGroups) Filenames() []string {
	names := make([]string, 0, len(sg))
	for name := range sg {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failure is a filename left unresolved by a cycle.
type Failure struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// Report summarizes a cycle.
type Report struct {
	Stream     string        `json:"stream"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`
	Verified   []string      `json:"verified"`
	Failed     []Failure     `json:"failed"`
	Checkpoint string        `json:"checkpoint"`
}

// Downloader runs ingestion cycles of one stream type. Cycles must not run concurrently.
type Downloader struct {
	Type        types.StreamType
	Config      config.Configuration
	Store       api.ObjectStore
	AddressBook api.AddressBookSource
	Checkpoints *checkpoint.Tracker
	Notifier    Notifier
	Archiver    api.Archiver // optional
	Logger      api.Logger
	Metrics     *Metrics

	initOnce  sync.Once
	initErr   error
	verifier  *verify.SignatureVerifier
	validator *verify.ConsensusValidator
	chain     *chain.Validator

	stopped int32

	limitersLock sync.Mutex
	limiters     map[types.NodeID]*rate.Limiter

	reportLock sync.RWMutex
	lastReport *Report
}

func (d *Downloader) init() error {
	d.initOnce.Do(func() {
		if d.Logger == nil {
			d.Logger = api.EmptyLogger{}
		}
		ratio, err := d.Config.Ratio()
		if err != nil {
			d.initErr = err
			return
		}
		if d.Metrics == nil {
			d.Metrics = NewMetrics(&disabled.Provider{}, d.Type.String())
		}
		d.verifier = &verify.SignatureVerifier{Logger: d.Logger}
		d.validator = &verify.ConsensusValidator{Ratio: ratio, Logger: d.Logger}
		d.chain = &chain.Validator{Logger: d.Logger}
		d.limiters = make(map[types.NodeID]*rate.Limiter)
	})
	return d.initErr
}

// Stop prevents new work from starting. Calls in flight are allowed to finish.
func (d *Downloader) Stop() {
	atomic.StoreInt32(&d.stopped, 1)
}

func (d *Downloader) isStopped() bool {
	return atomic.LoadInt32(&d.stopped) == 1
}

// LastReport returns the report of the last completed cycle.
func (d *Downloader) LastReport() (Report, bool) {
	d.reportLock.RLock()
	defer d.reportLock.RUnlock()
	if d.lastReport == nil {
		return Report{}, false
	}
	return *d.lastReport, true
}

// Download runs one cycle. Address book, checkpoint, archive and notification failures are
// returned as errors; per node and per filename failures are logged and reported.
func (d *Downloader) Download(ctx context.Context) (Report, error) {
	if err := d.init(); err != nil {
		return Report{}, err
	}

	start := time.Now()
	report := Report{Stream: d.Type.String(), Started: start}

	book, err := d.AddressBook.Load(ctx)
	if err != nil {
		return report, errors.Wrap(err, "failed loading address book")
	}

	cp, err := d.Checkpoints.Load(d.Type, d.Config.BypassHashMismatchUntilAfter)
	if err != nil {
		return report, err
	}

	groups := d.DownloadSignatures(ctx, book, cp.Filename)
	report, err = d.VerifyAndDownloadData(ctx, book, cp, groups)
	report.Started = start
	report.Duration = time.Since(start)
	d.Metrics.CycleDuration.Observe(report.Duration.Seconds())

	d.reportLock.Lock()
	d.lastReport = &report
	d.reportLock.Unlock()

	if len(report.Verified) > 0 || len(report.Failed) > 0 {
		d.Logger.Infof("%s cycle verified %d files, left %d unresolved, in %v", d.Type, len(report.Verified), len(report.Failed), report.Duration)
	}
	return report, err
}

// DownloadSignatures fetches, from every node concurrently, the signature files that follow
// the given filename and groups them by data filename. Failing nodes are logged and skipped.
func (d *Downloader) DownloadSignatures(ctx context.Context, book *types.AddressBook, after string) SignatureGroups {
	if err := d.init(); err != nil {
		d.Logger.Errorf("Cannot download signatures: %v", err)
		return SignatureGroups{}
	}

	nodes := book.Nodes()
	limit := d.Config.MaxConcurrency
	if limit <= 0 || limit > len(nodes) {
		limit = len(nodes)
	}

	results := make([][]*types.FileStreamSignature, len(nodes))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, node := range nodes {
		if d.isStopped() {
			break
		}
		i, node := i, node
		g.Go(func() error {
			if d.isStopped() {
				return nil
			}
			results[i] = d.downloadNode(ctx, node, after)
			return nil
		})
	}
	_ = g.Wait()

	groups := make(SignatureGroups)
	for _, sigs := range results {
		for _, sig := range sigs {
			groups[sig.Filename] = append(groups[sig.Filename], sig)
		}
	}
	return groups
}

func (d *Downloader) downloadNode(ctx context.Context, node types.NodeID, after string) []*types.FileStreamSignature {
	prefix := streamfile.NodePrefix(d.Type, node)
	marker := ""
	if after != "" {
		marker = streamfile.SignatureKey(d.Type, node, after)
	}

	var keys []string
	err := d.call(ctx, node, func(ctx context.Context) error {
		var err error
		keys, err = d.Store.List(ctx, prefix, marker, d.Config.ListBatchSize)
		return err
	})
	if err != nil {
		d.Logger.Warnf("Failed listing signatures of node %s under %s: %v", node, prefix, err)
		d.Metrics.CountOfNodeFailures.With("node", string(node)).Add(1)
		return nil
	}

	var sigs []*types.FileStreamSignature
	for _, key := range keys {
		if !streamfile.IsSignature(d.Type, key) {
			continue
		}
		filename := streamfile.DataFilename(key)
		if key != streamfile.SignatureKey(d.Type, node, filename) {
			d.Logger.Warnf("Ignoring %s of node %s: not at the signature key of %s", key, node, filename)
			continue
		}
		if after != "" && filename <= after {
			continue
		}
		if d.isStopped() {
			break
		}

		var raw []byte
		err := d.call(ctx, node, func(ctx context.Context) error {
			var err error
			raw, err = d.Store.Get(ctx, key)
			return err
		})
		if err != nil {
			d.Logger.Warnf("Failed downloading %s from node %s: %v", key, node, err)
			d.Metrics.CountOfNodeFailures.With("node", string(node)).Add(1)
			continue
		}

		decoded, err := streamfile.DecodeSignature(raw)
		if err != nil {
			d.Logger.Warnf("Dropping signature %s of node %s: %v", key, node, err)
			continue
		}

		sigs = append(sigs, &types.FileStreamSignature{
			Filename:   filename,
			Key:        key,
			NodeID:     node,
			StreamType: d.Type,
			Algorithm:  decoded.Algorithm,
			FileHash:   decoded.FileHash,
			Signature:  decoded.Signature,
			Status:     types.StatusPending,
		})
	}

	d.Metrics.CountOfSignaturesDownloaded.With("node", string(node)).Add(float64(len(sigs)))
	d.Logger.Debugf("Downloaded %d %s signatures from node %s", len(sigs), d.Type, node)
	return sigs
}

// call runs an object store call against a node, paced by the node's limiter and bounded
// by the request timeout.
func (d *Downloader) call(ctx context.Context, node types.NodeID, f func(context.Context) error) error {
	if limiter := d.limiter(node); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if d.Config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Config.RequestTimeout)
		defer cancel()
	}
	return f(ctx)
}

func (d *Downloader) limiter(node types.NodeID) *rate.Limiter {
	if d.Config.RequestsPerSecond <= 0 {
		return nil
	}
	d.limitersLock.Lock()
	defer d.limitersLock.Unlock()
	l, exists := d.limiters[node]
	if !exists {
		l = rate.NewLimiter(rate.Limit(d.Config.RequestsPerSecond), 1)
		d.limiters[node] = l
	}
	return l
}

// VerifyAndDownloadData processes filenames in ascending order. A filename that fails
// verification is reported and skipped. Checkpoint, archive and notification failures abort the cycle.
func (d *Downloader) VerifyAndDownloadData(ctx context.Context, book *types.AddressBook, cp types.Checkpoint, groups SignatureGroups) (Report, error) {
	report := Report{Stream: d.Type.String(), Checkpoint: cp.Filename}
	if err := d.init(); err != nil {
		return report, err
	}

	for _, filename := range groups.Filenames() {
		if d.isStopped() {
			d.Logger.Infof("Stopping %s cycle before %s", d.Type, filename)
			break
		}
		if cp.Filename != "" && filename <= cp.Filename {
			continue
		}

		sigs := groups[filename]
		if err := d.verifier.Verify(book, sigs); err != nil {
			d.fail(&report, filename, err)
			continue
		}
		if err := d.validator.Validate(book, sigs); err != nil {
			d.fail(&report, filename, err)
			continue
		}

		file, err := d.fetchData(ctx, filename, sigs, cp)
		if err != nil {
			d.fail(&report, filename, err)
			continue
		}

		if err := d.accept(ctx, file, cp); err != nil {
			return report, err
		}

		cp = types.Checkpoint{Filename: file.Name, FileHash: file.Hash, BypassMarker: cp.BypassMarker}
		report.Verified = append(report.Verified, filename)
		report.Checkpoint = cp.Filename
	}

	return report, nil
}

// fetchData tries the nodes that reached consensus, in ascending node order, until one
// serves a data file with the agreed hash.
func (d *Downloader) fetchData(ctx context.Context, filename string, sigs []*types.FileStreamSignature, cp types.Checkpoint) (*types.StreamFile, error) {
	var candidates []*types.FileStreamSignature
	for _, sig := range sigs {
		if sig.Status == types.StatusConsensusReached {
			candidates = append(candidates, sig)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NodeID < candidates[j].NodeID
	})

	for _, sig := range candidates {
		if d.isStopped() {
			break
		}

		key := streamfile.DataKey(d.Type, sig.NodeID, filename)
		var raw []byte
		err := d.call(ctx, sig.NodeID, func(ctx context.Context) error {
			var err error
			raw, err = d.Store.Get(ctx, key)
			return err
		})
		if err != nil {
			d.Logger.Warnf("Failed downloading %s from node %s: %v", key, sig.NodeID, err)
			d.Metrics.CountOfNodeFailures.With("node", string(sig.NodeID)).Add(1)
			continue
		}

		hash, err := streamfile.Digest(sig.Algorithm, raw)
		if err != nil {
			d.Logger.Warnf("Cannot hash %s of node %s: %v", key, sig.NodeID, err)
			continue
		}
		if !bytes.Equal(hash, sig.FileHash) {
			d.Logger.Warnf("Data file %s of node %s does not match the agreed hash, trying the next node", filename, sig.NodeID)
			continue
		}

		data, err := streamfile.DecodeData(raw)
		if err != nil {
			d.Logger.Warnf("Data file %s of node %s matches the agreed hash but cannot be decoded: %v", filename, sig.NodeID, err)
			continue
		}

		if !d.chain.Verify(filename, cp, data.PreviousHash) {
			return nil, errors.Wrapf(ErrHashChainBroken, "file %s", filename)
		}

		return &types.StreamFile{
			Type:           d.Type,
			Name:           filename,
			NodeID:         sig.NodeID,
			Algorithm:      sig.Algorithm,
			Hash:           hash,
			PreviousHash:   data.PreviousHash,
			Count:          uint64(len(data.Items)),
			ConsensusStart: data.ConsensusStart,
			ConsensusEnd:   data.ConsensusEnd,
			Items:          data.Items,
			Bytes:          raw,
		}, nil
	}

	return nil, errors.Wrapf(ErrNoValidDataFile, "file %s", filename)
}

// accept archives the file, advances the checkpoint and emits the file, in that order.
// When emitting fails the checkpoint is moved back to prev, so the next cycle retries the file.
func (d *Downloader) accept(ctx context.Context, file *types.StreamFile, prev types.Checkpoint) error {
	if d.Archiver != nil {
		if err := d.Archiver.Archive(file); err != nil {
			return err
		}
	}
	if err := d.Checkpoints.Advance(d.Type, file.Name, file.Hash); err != nil {
		return err
	}
	if err := d.Notifier.Submit(ctx, file); err != nil {
		if rerr := d.Checkpoints.Advance(d.Type, prev.Filename, prev.FileHash); rerr != nil {
			d.Logger.Errorf("Checkpoint of %s left at %s, which was never emitted: %v", d.Type, file.Name, rerr)
			return errors.Wrapf(rerr, "failed emitting %s (%v) and restoring checkpoint", file.Name, err)
		}
		return errors.Wrapf(err, "failed emitting %s", file.Name)
	}

	d.Metrics.CountOfFilesVerified.Add(1)
	d.Metrics.ConsensusLag.Set(time.Since(time.Unix(0, file.ConsensusEnd)).Seconds())
	d.Logger.Infof("Verified %s from node %s", file, file.NodeID)
	return nil
}

func (d *Downloader) fail(report *Report, filename string, err error) {
	reason := "other"
	switch {
	case errors.Is(err, verify.ErrInsufficientParticipation):
		reason = "insufficient_participation"
	case errors.Is(err, verify.ErrNoHashAgreement):
		reason = "no_hash_agreement"
	case errors.Is(err, verify.ErrConsensusNotReached):
		reason = "consensus_not_reached"
	case errors.Is(err, ErrNoValidDataFile):
		reason = "no_valid_data_file"
	case errors.Is(err, ErrHashChainBroken):
		reason = "hash_chain_broken"
	}

	d.Metrics.CountOfFilesFailed.With("reason", reason).Add(1)
	d.Logger.Warnf("Unable to verify %s %s: %v", d.Type, filename, err)
	report.Failed = append(report.Failed, Failure{Filename: filename, Reason: err.Error()})
}
