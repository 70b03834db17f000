// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

// Package checkpoint persists the per stream type ingestion cursor.
package checkpoint

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/streamverify/ingest/pkg/api"
)

var (
	_ api.BatchCheckpointStore = (*LevelDBStore)(nil)
	_ api.BatchCheckpointStore = (*MemoryStore)(nil)
)

// LevelDBStore keeps checkpoint keys in a LevelDB database.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens, or creates, the database in dir.
func OpenLevelDB(dir string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening checkpoint database at %s", dir)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Read(key string) (string, error) {
	value, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed reading %s", key)
	}
	return string(value), nil
}

func (s *LevelDBStore) Write(key, value string) error {
	if err := s.db.Put([]byte(key), []byte(value), &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrapf(err, "failed writing %s", key)
	}
	return nil
}

// WriteAll writes all values in a single synced batch.
func (s *LevelDBStore) WriteAll(values map[string]string) error {
	batch := new(leveldb.Batch)
	for k, v := range values {
		batch.Put([]byte(k), []byte(v))
	}
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(err, "failed writing checkpoint batch")
	}
	return nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

// MemoryStore is a volatile store, used by tests and dry runs.
type MemoryStore struct {
	lock   sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Read(key string) (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.values[key], nil
}

func (m *MemoryStore) Write(key, value string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) WriteAll(values map[string]string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}
