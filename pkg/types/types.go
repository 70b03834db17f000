// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package types

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// NodeID identifies a node publishing stream files, e.g. "0.0.3".
type NodeID string

func (id NodeID) String() string {
	return string(id)
}

// StreamType discriminates the kinds of stream files. The set is closed.
type StreamType int

const (
	StreamTypeUnknown StreamType = iota
	StreamTypeBalance
	StreamTypeRecord
	StreamTypeEvent
)

// StreamTypes lists every supported stream type.
var StreamTypes = []StreamType{StreamTypeBalance, StreamTypeRecord, StreamTypeEvent}

func (t StreamType) String() string {
	switch t {
	case StreamTypeBalance:
		return "BALANCE"
	case StreamTypeRecord:
		return "RECORD"
	case StreamTypeEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// ParseStreamType converts a case-sensitive name (as returned by String) into a StreamType.
func ParseStreamType(s string) (StreamType, error) {
	for _, t := range StreamTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return StreamTypeUnknown, errors.Errorf("unknown stream type %q", s)
}

// DigestAlgorithm is the hash function a node used to compute a file hash.
type DigestAlgorithm uint32

const (
	DigestUnknown DigestAlgorithm = iota
	DigestSHA384
	DigestBLAKE3
)

func (a DigestAlgorithm) String() string {
	switch a {
	case DigestSHA384:
		return "SHA-384"
	case DigestBLAKE3:
		return "BLAKE3-256"
	default:
		return fmt.Sprintf("digest(%d)", uint32(a))
	}
}

// SignatureScheme is the signing scheme a node declares in the address book.
type SignatureScheme int

const (
	SchemeUnknown SignatureScheme = iota
	SchemeED25519
	SchemeBLS
)

func (s SignatureScheme) String() string {
	switch s {
	case SchemeED25519:
		return "ed25519"
	case SchemeBLS:
		return "bls"
	default:
		return "unknown"
	}
}

// ParseSignatureScheme converts the address book spelling of a scheme.
func ParseSignatureScheme(s string) (SignatureScheme, error) {
	switch s {
	case "ed25519", "ED25519":
		return SchemeED25519, nil
	case "bls", "BLS":
		return SchemeBLS, nil
	default:
		return SchemeUnknown, errors.Errorf("unknown signature scheme %q", s)
	}
}

// SignatureStatus tracks a signature through verification and consensus.
type SignatureStatus int

const (
	StatusPending SignatureStatus = iota
	StatusVerified
	StatusConsensusReached
	StatusNotVerified
)

func (s SignatureStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusVerified:
		return "VERIFIED"
	case StatusConsensusReached:
		return "CONSENSUS_REACHED"
	case StatusNotVerified:
		return "NOT_VERIFIED"
	default:
		return "UNKNOWN"
	}
}

// FileStreamSignature is one node's signed claim about the hash of a data file.
type FileStreamSignature struct {
	Filename   string // Filename is the data filename the signature covers
	Key        string // Key is the object key the signature was fetched from
	NodeID     NodeID
	StreamType StreamType
	Algorithm  DigestAlgorithm
	FileHash   []byte
	Signature  []byte
	Status     SignatureStatus
}

// HashKey identifies the claimed hash, including the algorithm that produced it.
func (s *FileStreamSignature) HashKey() string {
	return fmt.Sprintf("%d:%s", s.Algorithm, hex.EncodeToString(s.FileHash))
}

func (s *FileStreamSignature) String() string {
	return fmt.Sprintf("<%s signature of %s by %s, status %s>", s.StreamType, s.Filename, s.NodeID, s.Status)
}

// StreamFile is a verified data file handed to downstream parsers. It is not mutated after creation.
type StreamFile struct {
	Type           StreamType
	Name           string
	NodeID         NodeID // NodeID is the node the verified bytes were fetched from
	Algorithm      DigestAlgorithm
	Hash           []byte
	PreviousHash   []byte
	Count          uint64
	ConsensusStart int64 // nanoseconds since epoch
	ConsensusEnd   int64 // nanoseconds since epoch, of the last item
	Items          [][]byte
	Bytes          []byte // Bytes is the data file exactly as stored
}

func (f *StreamFile) String() string {
	return fmt.Sprintf("<%s file %s with %d items>", f.Type, f.Name, f.Count)
}

// Checkpoint is the durable ingestion cursor of one stream type.
type Checkpoint struct {
	Filename     string
	FileHash     []byte
	BypassMarker string
}

// IsZero reports whether no file was verified yet.
func (c Checkpoint) IsZero() bool {
	return c.Filename == "" && len(c.FileHash) == 0
}
