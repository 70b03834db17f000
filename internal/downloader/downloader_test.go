// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package downloader_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamverify/ingest/internal/downloader"
	"github.com/streamverify/ingest/pkg/addressbook"
	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/api/mocks"
	"github.com/streamverify/ingest/pkg/checkpoint"
	"github.com/streamverify/ingest/pkg/config"
	"github.com/streamverify/ingest/pkg/keys"
	"github.com/streamverify/ingest/pkg/objectstore"
	"github.com/streamverify/ingest/pkg/streamfile"
	"github.com/streamverify/ingest/pkg/types"
)

var genesis = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// network publishes the same stream files from every node into a memory store.
type network struct {
	t        *testing.T
	store    *objectstore.MemoryStore
	signers  map[types.NodeID]keys.Signer
	book     *types.AddressBook
	prevHash []byte
	count    int
}

func newNetwork(t *testing.T, n int) *network {
	net := &network{
		t:        t,
		store:    objectstore.NewMemoryStore(),
		signers:  make(map[types.NodeID]keys.Signer),
		prevHash: make([]byte, 48),
	}
	pks := make(map[types.NodeID]types.NodeKey)
	for i := 0; i < n; i++ {
		id := types.NodeID(fmt.Sprintf("0.0.%d", i+3))
		var s keys.Signer
		var err error
		if i%2 == 0 {
			s, err = keys.GenerateED25519()
		} else {
			s, err = keys.GenerateBLS()
		}
		require.NoError(t, err)
		net.signers[id] = s
		pks[id] = s.Key()
	}
	net.book = types.NewAddressBook(pks, nil)
	return net
}

type publication struct {
	filename string
	data     []byte
	hash     []byte
}

// publish makes the given nodes, or all of them, publish the next file of the chain.
func (n *network) publish(nodes ...types.NodeID) publication {
	return n.publishWith(types.DigestSHA384, false, nodes...)
}

func (n *network) publishWith(alg types.DigestAlgorithm, compress bool, nodes ...types.NodeID) publication {
	instant := genesis.Add(time.Duration(n.count) * 2 * time.Second)
	n.count++

	data := streamfile.EncodeData(streamfile.Data{
		PreviousHash:   n.prevHash,
		ConsensusStart: instant.UnixNano(),
		ConsensusEnd:   instant.Add(time.Second).UnixNano(),
		Items:          [][]byte{[]byte("item-1"), []byte("item-2")},
	})
	if compress {
		var err error
		data, err = streamfile.Compress(data)
		require.NoError(n.t, err)
	}
	hash, err := streamfile.Digest(alg, data)
	require.NoError(n.t, err)

	if len(nodes) == 0 {
		nodes = n.book.Nodes()
	}
	p := publication{filename: streamfile.Filename(types.StreamTypeRecord, instant), data: data, hash: hash}
	for _, id := range nodes {
		n.store.Put(streamfile.DataKey(types.StreamTypeRecord, id, p.filename), data)
		n.store.Put(streamfile.SignatureKey(types.StreamTypeRecord, id, p.filename), streamfile.EncodeSignature(streamfile.Signature{
			Algorithm: alg,
			FileHash:  hash,
			Signature: n.signers[id].Sign(hash),
		}))
	}
	n.prevHash = hash
	return p
}

type recorder struct {
	lock  sync.Mutex
	files []*types.StreamFile
}

func (r *recorder) Submit(_ context.Context, file *types.StreamFile) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.files = append(r.files, file)
	return nil
}

func (r *recorder) names() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	var names []string
	for _, f := range r.files {
		names = append(names, f.Name)
	}
	return names
}

// flakyStore fails calls whose key or prefix contains one of the poisoned strings, and counts gets.
type flakyStore struct {
	api.ObjectStore
	poisoned []string

	lock sync.Mutex
	gets map[string]int
}

func (f *flakyStore) failing(key string) bool {
	for _, p := range f.poisoned {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

func (f *flakyStore) List(ctx context.Context, prefix, marker string, limit int) ([]string, error) {
	if f.failing(prefix) {
		return nil, errors.New("connection reset")
	}
	return f.ObjectStore.List(ctx, prefix, marker, limit)
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.lock.Lock()
	if f.gets == nil {
		f.gets = make(map[string]int)
	}
	f.gets[key]++
	f.lock.Unlock()
	if f.failing(key) {
		return nil, errors.New("connection reset")
	}
	return f.ObjectStore.Get(ctx, key)
}

func (f *flakyStore) dataGets() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	total := 0
	for k, n := range f.gets {
		if !strings.HasSuffix(k, streamfile.SignatureSuffix) {
			total += n
		}
	}
	return total
}

func testConfig() config.Configuration {
	conf := config.DefaultConfig
	conf.RequestTimeout = time.Second
	conf.Streams = []types.StreamType{types.StreamTypeRecord}
	return conf
}

func newDownloader(t *testing.T, net *network, store api.ObjectStore) (*downloader.Downloader, *recorder, *checkpoint.Tracker) {
	basicLog, err := zap.NewDevelopment()
	require.NoError(t, err)

	rec := &recorder{}
	tracker := &checkpoint.Tracker{Store: checkpoint.NewMemoryStore()}
	return &downloader.Downloader{
		Type:        types.StreamTypeRecord,
		Config:      testConfig(),
		Store:       store,
		AddressBook: &addressbook.Static{Book: net.book},
		Checkpoints: tracker,
		Notifier:    rec,
		Logger:      basicLog.Sugar(),
	}, rec, tracker
}

func TestDownloadEmitsFilesInOrder(t *testing.T) {
	net := newNetwork(t, 4)
	p1 := net.publish()
	p2 := net.publish()
	p3 := net.publish()

	d, rec, tracker := newDownloader(t, net, net.store)
	report, err := d.Download(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{p1.filename, p2.filename, p3.filename}, report.Verified)
	assert.Empty(t, report.Failed)
	assert.Equal(t, report.Verified, rec.names())
	assert.Equal(t, uint64(2), rec.files[0].Count)
	assert.Equal(t, p3.data, rec.files[2].Bytes)

	cp, err := tracker.Load(types.StreamTypeRecord, "")
	require.NoError(t, err)
	assert.Equal(t, p3.filename, cp.Filename)
	assert.Equal(t, p3.hash, cp.FileHash)

	last, ok := d.LastReport()
	require.True(t, ok)
	assert.Equal(t, p3.filename, last.Checkpoint)
}

func TestRerunDoesNotEmitTwice(t *testing.T) {
	for _, includeMarker := range []bool{false, true} {
		includeMarker := includeMarker
		t.Run(fmt.Sprintf("include marker %v", includeMarker), func(t *testing.T) {
			net := newNetwork(t, 4)
			net.store.IncludeMarker = includeMarker
			net.publish()
			net.publish()

			d, rec, _ := newDownloader(t, net, net.store)
			_, err := d.Download(context.Background())
			require.NoError(t, err)
			require.Len(t, rec.names(), 2)

			report, err := d.Download(context.Background())
			require.NoError(t, err)
			assert.Empty(t, report.Verified)
			assert.Empty(t, report.Failed)
			assert.Len(t, rec.names(), 2)

			p3 := net.publish()
			report, err = d.Download(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{p3.filename}, report.Verified)
			assert.Len(t, rec.names(), 3)
		})
	}
}

func TestHashMismatchFallsBackToNextNode(t *testing.T) {
	net := newNetwork(t, 4)
	p := net.publish()
	net.store.Put(streamfile.DataKey(types.StreamTypeRecord, "0.0.3", p.filename), []byte("stale"))

	d, rec, _ := newDownloader(t, net, net.store)
	report, err := d.Download(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{p.filename}, report.Verified)
	require.Len(t, rec.files, 1)
	assert.Equal(t, types.NodeID("0.0.4"), rec.files[0].NodeID)
}

func TestAllNodesServeBadData(t *testing.T) {
	net := newNetwork(t, 4)
	p := net.publish()
	for _, id := range net.book.Nodes() {
		net.store.Put(streamfile.DataKey(types.StreamTypeRecord, id, p.filename), []byte("stale"))
	}

	d, rec, _ := newDownloader(t, net, net.store)
	report, err := d.Download(context.Background())
	require.NoError(t, err)

	assert.Empty(t, rec.names())
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Reason, downloader.ErrNoValidDataFile.Error())
}

func TestChainMismatchIsNotRetried(t *testing.T) {
	net := newNetwork(t, 4)
	net.prevHash = []byte("H2")
	net.publish()

	flaky := &flakyStore{ObjectStore: net.store}
	d, rec, tracker := newDownloader(t, net, flaky)
	require.NoError(t, tracker.Advance(types.StreamTypeRecord, "2000-01-01T00_00_00.000000000Z.rcd", []byte("H1")))

	report, err := d.Download(context.Background())
	require.NoError(t, err)

	assert.Empty(t, rec.names())
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Reason, downloader.ErrHashChainBroken.Error())
	assert.Equal(t, 1, flaky.dataGets())

	cp, err := tracker.Load(types.StreamTypeRecord, "")
	require.NoError(t, err)
	assert.Equal(t, "2000-01-01T00_00_00.000000000Z.rcd", cp.Filename)
}

func TestBypassMarkerToleratesChainMismatch(t *testing.T) {
	net := newNetwork(t, 4)
	net.prevHash = []byte("H2")
	p := net.publish()

	d, rec, tracker := newDownloader(t, net, net.store)
	d.Config.BypassHashMismatchUntilAfter = "2030-01-01T00_00_00.000000000Z.rcd"
	require.NoError(t, tracker.Advance(types.StreamTypeRecord, "2000-01-01T00_00_00.000000000Z.rcd", []byte("H1")))

	_, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{p.filename}, rec.names())
}

func TestFailingNodeIsTolerated(t *testing.T) {
	net := newNetwork(t, 4)
	p := net.publish()

	flaky := &flakyStore{ObjectStore: net.store, poisoned: []string{"record0.0.6/"}}
	d, rec, _ := newDownloader(t, net, flaky)
	_, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{p.filename}, rec.names())
}

func TestInsufficientParticipation(t *testing.T) {
	net := newNetwork(t, 4)
	net.publish("0.0.3", "0.0.4")

	d, rec, tracker := newDownloader(t, net, net.store)
	report, err := d.Download(context.Background())
	require.NoError(t, err)

	assert.Empty(t, rec.names())
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Reason, "insufficient participation")

	cp, err := tracker.Load(types.StreamTypeRecord, "")
	require.NoError(t, err)
	assert.True(t, cp.IsZero())
}

func TestNestedSignatureCopiesAreIgnored(t *testing.T) {
	net := newNetwork(t, 4)
	p := net.publish("0.0.3")

	sig, err := net.store.Get(context.Background(), streamfile.SignatureKey(types.StreamTypeRecord, "0.0.3", p.filename))
	require.NoError(t, err)
	for _, dir := range []string{"a/", "b/", "c/d/"} {
		net.store.Put(streamfile.NodePrefix(types.StreamTypeRecord, "0.0.3")+dir+p.filename+streamfile.SignatureSuffix, sig)
	}

	d, rec, tracker := newDownloader(t, net, net.store)
	groups := d.DownloadSignatures(context.Background(), net.book, "")
	require.Len(t, groups[p.filename], 1)
	assert.Equal(t, streamfile.SignatureKey(types.StreamTypeRecord, "0.0.3", p.filename), groups[p.filename][0].Key)

	report, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Verified)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Reason, "insufficient participation")
	assert.Empty(t, rec.names())

	cp, err := tracker.Load(types.StreamTypeRecord, "")
	require.NoError(t, err)
	assert.True(t, cp.IsZero())
}

// failingNotifier rejects the first failures submissions and records the rest.
type failingNotifier struct {
	recorder
	failures int
	calls    int
}

func (f *failingNotifier) Submit(ctx context.Context, file *types.StreamFile) error {
	f.lock.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.lock.Unlock()
	if fail {
		return errors.New("queue closed")
	}
	return f.recorder.Submit(ctx, file)
}

func TestEmitFailureRestoresCheckpoint(t *testing.T) {
	net := newNetwork(t, 4)
	p1 := net.publish()

	d, rec, tracker := newDownloader(t, net, net.store)
	_, err := d.Download(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{p1.filename}, rec.names())

	p2 := net.publish()
	p3 := net.publish()
	notifier := &failingNotifier{failures: 1}
	d.Notifier = notifier

	report, err := d.Download(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue closed")
	assert.Empty(t, report.Verified)
	assert.Equal(t, p1.filename, report.Checkpoint)

	cp, err := tracker.Load(types.StreamTypeRecord, "")
	require.NoError(t, err)
	assert.Equal(t, p1.filename, cp.Filename)
	assert.Equal(t, p1.hash, cp.FileHash)

	report, err = d.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{p2.filename, p3.filename}, report.Verified)
	assert.Equal(t, []string{p2.filename, p3.filename}, notifier.names())
	assert.Equal(t, 3, notifier.calls)
}

func TestEmitFailureOfFirstFileLeavesNoCheckpoint(t *testing.T) {
	net := newNetwork(t, 4)
	p := net.publish()

	d, _, tracker := newDownloader(t, net, net.store)
	notifier := &failingNotifier{failures: 1}
	d.Notifier = notifier

	_, err := d.Download(context.Background())
	require.Error(t, err)

	cp, err := tracker.Load(types.StreamTypeRecord, "")
	require.NoError(t, err)
	assert.True(t, cp.IsZero())

	_, err = d.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{p.filename}, notifier.names())
}

func TestDownloaderWithoutLogger(t *testing.T) {
	net := newNetwork(t, 4)
	p := net.publish("0.0.3", "0.0.4", "0.0.5")

	d, rec, _ := newDownloader(t, net, net.store)
	d.Logger = nil
	report, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{p.filename}, report.Verified)
	assert.Equal(t, []string{p.filename}, rec.names())
}

func TestMalformedSignatureIsDropped(t *testing.T) {
	net := newNetwork(t, 4)
	p := net.publish()
	net.store.Put(streamfile.SignatureKey(types.StreamTypeRecord, "0.0.5", p.filename), []byte{0xff})

	d, rec, _ := newDownloader(t, net, net.store)
	groups := d.DownloadSignatures(context.Background(), net.book, "")
	assert.Len(t, groups[p.filename], 3)

	_, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{p.filename}, rec.names())
}

func TestBlake3CompressedFiles(t *testing.T) {
	net := newNetwork(t, 3)
	p := net.publishWith(types.DigestBLAKE3, true)

	d, rec, _ := newDownloader(t, net, net.store)
	_, err := d.Download(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{p.filename}, rec.names())
	assert.Equal(t, types.DigestBLAKE3, rec.files[0].Algorithm)
	assert.Equal(t, [][]byte{[]byte("item-1"), []byte("item-2")}, rec.files[0].Items)
}

func TestStoppedDownloaderDoesNothing(t *testing.T) {
	net := newNetwork(t, 4)
	net.publish()

	d, rec, _ := newDownloader(t, net, net.store)
	d.Stop()
	report, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Verified)
	assert.Empty(t, rec.names())
}

type brokenCheckpoints struct{}

func (brokenCheckpoints) Read(string) (string, error) { return "", errors.New("disk failure") }
func (brokenCheckpoints) Write(string, string) error  { return errors.New("disk failure") }

func TestCheckpointFailureAbortsCycle(t *testing.T) {
	net := newNetwork(t, 4)
	net.publish()

	d, rec, _ := newDownloader(t, net, net.store)
	d.Checkpoints = &checkpoint.Tracker{Store: brokenCheckpoints{}}
	_, err := d.Download(context.Background())
	assert.Error(t, err)
	assert.Empty(t, rec.names())
}

func TestArchiver(t *testing.T) {
	net := newNetwork(t, 4)
	p := net.publish()

	dir := t.TempDir()
	d, _, _ := newDownloader(t, net, net.store)
	d.Archiver = &downloader.FileArchiver{Dir: dir}
	_, err := d.Download(context.Background())
	require.NoError(t, err)

	archived, err := os.ReadFile(filepath.Join(dir, streamfile.Dir(types.StreamTypeRecord), p.filename))
	require.NoError(t, err)
	assert.Equal(t, p.data, archived)
}

func TestRateLimitedDownload(t *testing.T) {
	net := newNetwork(t, 4)
	p := net.publish()

	d, rec, _ := newDownloader(t, net, net.store)
	d.Config.RequestsPerSecond = 1000
	d.Config.MaxConcurrency = 2
	_, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{p.filename}, rec.names())
}

func TestSlowNodeTimesOut(t *testing.T) {
	net := newNetwork(t, 4)
	p := net.publish()

	slow := func(prefix string) bool {
		return prefix == streamfile.NodePrefix(types.StreamTypeRecord, "0.0.5")
	}
	store := &mocks.ObjectStore{}
	store.On("List", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, prefix, marker string, limit int) []string {
			if slow(prefix) {
				<-ctx.Done()
				return nil
			}
			keys, _ := net.store.List(ctx, prefix, marker, limit)
			return keys
		},
		func(ctx context.Context, prefix, marker string, limit int) error {
			if slow(prefix) {
				return ctx.Err()
			}
			return nil
		})
	store.On("Get", mock.Anything, mock.Anything).Return(
		func(ctx context.Context, key string) []byte {
			content, _ := net.store.Get(ctx, key)
			return content
		},
		func(ctx context.Context, key string) error {
			_, err := net.store.Get(ctx, key)
			return err
		})

	d, rec, _ := newDownloader(t, net, store)
	d.Config.RequestTimeout = 100 * time.Millisecond

	start := time.Now()
	groups := d.DownloadSignatures(context.Background(), net.book, "")
	assert.True(t, time.Since(start) < 5*time.Second)
	assert.Len(t, groups[p.filename], 3)

	_, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{p.filename}, rec.names())
	store.AssertNumberOfCalls(t, "List", 8)
}
