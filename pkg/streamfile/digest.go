// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package streamfile

import (
	"crypto/sha512"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	"github.com/streamverify/ingest/pkg/types"
)

// Digest hashes data with the given algorithm.
func Digest(alg types.DigestAlgorithm, data []byte) ([]byte, error) {
	switch alg {
	case types.DigestSHA384:
		sum := sha512.Sum384(data)
		return sum[:], nil
	case types.DigestBLAKE3:
		sum := blake3.Sum256(data)
		return sum[:], nil
	default:
		return nil, errors.Errorf("unsupported digest algorithm %s", alg)
	}
}

// IsZeroHash reports whether h is the all-zero hash a stream starts its chain with.
func IsZeroHash(h []byte) bool {
	if len(h) == 0 {
		return false
	}
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}
