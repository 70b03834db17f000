// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

// Package objectstore provides local implementations of api.ObjectStore.
package objectstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/streamverify/ingest/pkg/api"
)

// ErrNotFound is returned by Get for keys that do not exist.
var ErrNotFound = errors.New("object not found")

var _ api.ObjectStore = (*MemoryStore)(nil)

// MemoryStore keeps objects in memory. It is safe for concurrent use.
type MemoryStore struct {
	// IncludeMarker makes List return the marker key itself, as some bucket backends do.
	IncludeMarker bool

	lock    sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores an object, replacing any previous content.
func (m *MemoryStore) Put(key string, content []byte) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.objects[key] = append([]byte(nil), content...)
}

// Delete removes an object.
func (m *MemoryStore) Delete(key string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.objects, key)
}

func (m *MemoryStore) List(ctx context.Context, prefix, marker string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.lock.RLock()
	keys := make([]string, 0)
	for k := range m.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if k < marker || (k == marker && !m.IncludeMarker) {
			continue
		}
		keys = append(keys, k)
	}
	m.lock.RUnlock()

	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()
	content, exists := m.objects[key]
	if !exists {
		return nil, errors.Wrapf(ErrNotFound, "key %s", key)
	}
	return append([]byte(nil), content...), nil
}
