// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package streamfile

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

const dataVersion = 1

const (
	dataFieldVersion        protowire.Number = 1
	dataFieldPreviousHash   protowire.Number = 2
	dataFieldConsensusStart protowire.Number = 3
	dataFieldConsensusEnd   protowire.Number = 4
	dataFieldItem           protowire.Number = 5
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Data is the envelope of a data file: the link to its predecessor and the consensus range of its items.
// The items themselves are opaque here.
type Data struct {
	Version        uint64
	PreviousHash   []byte // PreviousHash is nil when the file does not declare one
	ConsensusStart int64
	ConsensusEnd   int64
	Items          [][]byte
}

// EncodeData serializes a data file envelope.
func EncodeData(d Data) []byte {
	version := d.Version
	if version == 0 {
		version = dataVersion
	}
	var b []byte
	b = protowire.AppendTag(b, dataFieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, version)
	if d.PreviousHash != nil {
		b = protowire.AppendTag(b, dataFieldPreviousHash, protowire.BytesType)
		b = protowire.AppendBytes(b, d.PreviousHash)
	}
	b = protowire.AppendTag(b, dataFieldConsensusStart, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.ConsensusStart))
	b = protowire.AppendTag(b, dataFieldConsensusEnd, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.ConsensusEnd))
	for _, item := range d.Items {
		b = protowire.AppendTag(b, dataFieldItem, protowire.BytesType)
		b = protowire.AppendBytes(b, item)
	}
	return b
}

// DecodeData parses a data file as stored, transparently decompressing zstd content.
func DecodeData(stored []byte) (Data, error) {
	b := stored
	if IsCompressed(stored) {
		var err error
		if b, err = Decompress(stored); err != nil {
			return Data{}, err
		}
	}

	var d Data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Data{}, errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		b = b[n:]

		switch {
		case num == dataFieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Data{}, errors.Wrap(ErrMalformed, "bad version")
			}
			d.Version = v
			b = b[n:]
		case num == dataFieldPreviousHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Data{}, errors.Wrap(ErrMalformed, "bad previous hash")
			}
			d.PreviousHash = append([]byte{}, v...)
			b = b[n:]
		case num == dataFieldConsensusStart && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Data{}, errors.Wrap(ErrMalformed, "bad consensus start")
			}
			d.ConsensusStart = int64(v)
			b = b[n:]
		case num == dataFieldConsensusEnd && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Data{}, errors.Wrap(ErrMalformed, "bad consensus end")
			}
			d.ConsensusEnd = int64(v)
			b = b[n:]
		case num == dataFieldItem && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Data{}, errors.Wrap(ErrMalformed, "bad item")
			}
			d.Items = append(d.Items, append([]byte(nil), v...))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Data{}, errors.Wrapf(ErrMalformed, "bad field %d", num)
			}
			b = b[n:]
		}
	}

	if d.Version != dataVersion {
		return Data{}, errors.Wrapf(ErrMalformed, "unsupported data file version %d", d.Version)
	}
	return d, nil
}

// IsCompressed reports whether b starts with the zstd frame magic number.
func IsCompressed(b []byte) bool {
	return bytes.HasPrefix(b, zstdMagic)
}

// Compress zstd-compresses a data file.
func Compress(b []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.Wrap(err, "create zstd encoder")
	}
	defer encoder.Close()
	return encoder.EncodeAll(b, nil), nil
}

// Decompress reverses Compress.
func Decompress(b []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create zstd decoder")
	}
	defer decoder.Close()

	out, err := decoder.DecodeAll(b, nil)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return out, nil
}
