// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package streamfile

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/streamverify/ingest/pkg/types"
)

// ErrMalformed is returned for objects that do not follow the stream file wire formats.
var ErrMalformed = errors.New("malformed stream file")

const signatureVersion = 1

const (
	sigFieldVersion   protowire.Number = 1
	sigFieldAlgorithm protowire.Number = 2
	sigFieldHash      protowire.Number = 3
	sigFieldSignature protowire.Number = 4
)

// Signature is the content of a detached signature file.
type Signature struct {
	Version   uint64
	Algorithm types.DigestAlgorithm
	FileHash  []byte
	Signature []byte
}

// EncodeSignature serializes a signature file.
func EncodeSignature(s Signature) []byte {
	version := s.Version
	if version == 0 {
		version = signatureVersion
	}
	var b []byte
	b = protowire.AppendTag(b, sigFieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, version)
	b = protowire.AppendTag(b, sigFieldAlgorithm, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Algorithm))
	b = protowire.AppendTag(b, sigFieldHash, protowire.BytesType)
	b = protowire.AppendBytes(b, s.FileHash)
	b = protowire.AppendTag(b, sigFieldSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, s.Signature)
	return b
}

// DecodeSignature parses a signature file. Unknown fields are skipped.
func DecodeSignature(b []byte) (Signature, error) {
	var s Signature
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Signature{}, errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		b = b[n:]

		switch {
		case num == sigFieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Signature{}, errors.Wrap(ErrMalformed, "bad version")
			}
			s.Version = v
			b = b[n:]
		case num == sigFieldAlgorithm && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Signature{}, errors.Wrap(ErrMalformed, "bad digest algorithm")
			}
			s.Algorithm = types.DigestAlgorithm(v)
			b = b[n:]
		case num == sigFieldHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Signature{}, errors.Wrap(ErrMalformed, "bad file hash")
			}
			s.FileHash = append([]byte(nil), v...)
			b = b[n:]
		case num == sigFieldSignature && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Signature{}, errors.Wrap(ErrMalformed, "bad signature")
			}
			s.Signature = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Signature{}, errors.Wrapf(ErrMalformed, "bad field %d", num)
			}
			b = b[n:]
		}
	}

	if s.Version != signatureVersion {
		return Signature{}, errors.Wrapf(ErrMalformed, "unsupported signature file version %d", s.Version)
	}
	if len(s.FileHash) == 0 {
		return Signature{}, errors.Wrap(ErrMalformed, "missing file hash")
	}
	if len(s.Signature) == 0 {
		return Signature{}, errors.Wrap(ErrMalformed, "missing signature")
	}
	if s.Algorithm == types.DigestUnknown {
		s.Algorithm = types.DigestSHA384
	}
	return s, nil
}
