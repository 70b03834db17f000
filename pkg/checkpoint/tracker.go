// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package checkpoint

import (
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/types"
)

const (
	filenameKey = "lastValidFilename"
	hashKey     = "lastValidFileHash"
	bypassKey   = "bypassHashMarker"
)

// Key returns the store key of a checkpoint field of a stream type.
func Key(st types.StreamType, field string) string {
	return st.String() + "." + field
}

// Tracker reads and advances checkpoints on top of a CheckpointStore.
type Tracker struct {
	Store api.CheckpointStore
}

// Load returns the checkpoint of the stream type.
// The bypass marker falls back to the given value when none was persisted.
func (t *Tracker) Load(st types.StreamType, fallbackBypass string) (types.Checkpoint, error) {
	var cp types.Checkpoint
	var err error

	if cp.Filename, err = t.Store.Read(Key(st, filenameKey)); err != nil {
		return types.Checkpoint{}, errors.Wrapf(err, "failed loading checkpoint of %s", st)
	}

	encodedHash, err := t.Store.Read(Key(st, hashKey))
	if err != nil {
		return types.Checkpoint{}, errors.Wrapf(err, "failed loading checkpoint of %s", st)
	}
	if encodedHash != "" {
		if cp.FileHash, err = hex.DecodeString(encodedHash); err != nil {
			return types.Checkpoint{}, errors.Wrapf(err, "corrupt checkpoint hash of %s", st)
		}
	}

	if cp.BypassMarker, err = t.Store.Read(Key(st, bypassKey)); err != nil {
		return types.Checkpoint{}, errors.Wrapf(err, "failed loading checkpoint of %s", st)
	}
	if cp.BypassMarker == "" {
		cp.BypassMarker = fallbackBypass
	}

	return cp, nil
}

// Advance records a verified file as the new checkpoint.
// Filename and hash are written together when the store supports it.
func (t *Tracker) Advance(st types.StreamType, filename string, hash []byte) error {
	values := map[string]string{
		Key(st, filenameKey): filename,
		Key(st, hashKey):     hex.EncodeToString(hash),
	}

	if batch, ok := t.Store.(api.BatchCheckpointStore); ok {
		return errors.Wrapf(batch.WriteAll(values), "failed advancing checkpoint of %s", st)
	}

	for _, k := range []string{Key(st, filenameKey), Key(st, hashKey)} {
		if err := t.Store.Write(k, values[k]); err != nil {
			return errors.Wrapf(err, "failed advancing checkpoint of %s", st)
		}
	}
	return nil
}

// SetBypassMarker persists the filename below which hash mismatches are tolerated.
func (t *Tracker) SetBypassMarker(st types.StreamType, marker string) error {
	return errors.Wrapf(t.Store.Write(Key(st, bypassKey), marker), "failed writing bypass marker of %s", st)
}
