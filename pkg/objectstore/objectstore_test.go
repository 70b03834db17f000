// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package objectstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/objectstore"
)

var keys = []string{
	"recordstreams/record0.0.3/a.rcd",
	"recordstreams/record0.0.3/a.rcd_sig",
	"recordstreams/record0.0.3/b.rcd",
	"recordstreams/record0.0.3/b.rcd_sig",
	"recordstreams/record0.0.4/a.rcd_sig",
}

func newFileStore(t *testing.T) *objectstore.FileStore {
	dir := t.TempDir()
	for _, k := range keys {
		p := filepath.Join(dir, filepath.FromSlash(k))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0700))
		require.NoError(t, os.WriteFile(p, []byte(k), 0600))
	}
	fs, err := objectstore.NewFileStore(dir)
	require.NoError(t, err)
	return fs
}

func newMemoryStore() *objectstore.MemoryStore {
	ms := objectstore.NewMemoryStore()
	for _, k := range keys {
		ms.Put(k, []byte(k))
	}
	return ms
}

func TestStores(t *testing.T) {
	for name, store := range map[string]func(t *testing.T) api.ObjectStore{
		"memory": func(*testing.T) api.ObjectStore { return newMemoryStore() },
		"file":   func(t *testing.T) api.ObjectStore { return newFileStore(t) },
	} {
		store := store
		t.Run(name, func(t *testing.T) {
			s := store(t)
			ctx := context.Background()

			listed, err := s.List(ctx, "recordstreams/record0.0.3/", "", 10)
			require.NoError(t, err)
			assert.Equal(t, keys[:4], listed)

			listed, err = s.List(ctx, "recordstreams/record0.0.3/", "recordstreams/record0.0.3/a.rcd_sig", 10)
			require.NoError(t, err)
			assert.Equal(t, keys[2:4], listed)

			listed, err = s.List(ctx, "recordstreams/record0.0.3/", "", 1)
			require.NoError(t, err)
			assert.Equal(t, keys[:1], listed)

			listed, err = s.List(ctx, "recordstreams/record0.0.9/", "", 10)
			require.NoError(t, err)
			assert.Empty(t, listed)

			content, err := s.Get(ctx, keys[4])
			require.NoError(t, err)
			assert.Equal(t, []byte(keys[4]), content)

			_, err = s.Get(ctx, "recordstreams/record0.0.4/missing")
			assert.True(t, errors.Is(err, objectstore.ErrNotFound))
		})
	}
}

func TestMemoryStoreIncludeMarker(t *testing.T) {
	ms := newMemoryStore()
	ms.IncludeMarker = true

	listed, err := ms.List(context.Background(), "recordstreams/record0.0.3/", keys[1], 10)
	require.NoError(t, err)
	assert.Equal(t, keys[1:4], listed)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newMemoryStore().Get(ctx, keys[0])
	assert.Equal(t, context.Canceled, err)
}

func TestFileStoreRejectsMissingRoot(t *testing.T) {
	_, err := objectstore.NewFileStore(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
