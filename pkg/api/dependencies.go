// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package api

import (
	"context"

	"github.com/streamverify/ingest/pkg/types"
)

//go:generate mockery -dir . -name ObjectStore -case underscore -output ./mocks/

// ObjectStore is the minimal contract of the bucket the nodes publish to.
type ObjectStore interface {
	// List returns up to limit keys that start with prefix and sort after marker, in ascending order.
	// Some backends include the marker itself; callers must tolerate it.
	List(ctx context.Context, prefix, marker string, limit int) ([]string, error)
	// Get returns the content of an object.
	Get(ctx context.Context, key string) ([]byte, error)
}

// CheckpointStore persists ingestion progress across restarts.
// Read returns an empty string for a key that was never written.
type CheckpointStore interface {
	Read(key string) (string, error)
	Write(key, value string) error
}

// BatchCheckpointStore is implemented by checkpoint stores that can write several keys atomically.
type BatchCheckpointStore interface {
	CheckpointStore
	WriteAll(values map[string]string) error
}

//go:generate mockery -dir . -name Parser -case underscore -output ./mocks/

// Parser consumes verified stream files downstream. Both calls are synchronous.
type Parser interface {
	Parse(file *types.StreamFile) error
	ParseBatch(files []*types.StreamFile) error
}

// AddressBookSource yields the current node set. It is consulted at the start of every cycle.
type AddressBookSource interface {
	Load(ctx context.Context) (*types.AddressBook, error)
}

// Archiver relocates a verified data file into the valid area.
type Archiver interface {
	Archive(file *types.StreamFile) error
}

// Logger defines the contract for logging.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Panicf(template string, args ...interface{})
}
