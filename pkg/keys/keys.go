// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

// Package keys verifies node signatures under the schemes nodes declare in the address book.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/pkg/errors"
	blst "github.com/supranational/blst/bindings/go"

	"github.com/streamverify/ingest/pkg/types"
)

const (
	// BLSPublicKeySize is the size of a compressed BLS12-381 G1 public key.
	BLSPublicKeySize = 48
	// BLSSignatureSize is the size of a compressed BLS12-381 G2 signature.
	BLSSignatureSize = 96
)

// blsDST is the domain separation tag of the basic min-pk BLS scheme.
var blsDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// Verify checks signature over message under the given scheme and public key.
// Malformed keys or signatures simply fail verification.
func Verify(key types.NodeKey, message, signature []byte) bool {
	switch key.Scheme {
	case types.SchemeED25519:
		if len(key.PublicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(key.PublicKey), message, signature)
	case types.SchemeBLS:
		return verifyBLS(key.PublicKey, message, signature)
	default:
		return false
	}
}

func verifyBLS(publicKey, message, signature []byte) bool {
	if len(signature) != BLSSignatureSize || len(publicKey) != BLSPublicKeySize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(publicKey)
	if pk == nil {
		return false
	}

	return sig.Verify(true, pk, true, message, blsDST)
}

// Signer produces node signatures. Nodes use it to sign the files they publish.
type Signer interface {
	Key() types.NodeKey
	Sign(message []byte) []byte
}

type ed25519Signer struct {
	private ed25519.PrivateKey
}

// NewED25519Signer wraps an ed25519 private key.
func NewED25519Signer(private ed25519.PrivateKey) Signer {
	return &ed25519Signer{private: private}
}

// GenerateED25519 creates a signer with a fresh random key.
func GenerateED25519() (Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate ed25519 key")
	}
	return NewED25519Signer(priv), nil
}

func (s *ed25519Signer) Key() types.NodeKey {
	return types.NodeKey{
		Scheme:    types.SchemeED25519,
		PublicKey: []byte(s.private.Public().(ed25519.PublicKey)),
	}
}

func (s *ed25519Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.private, message)
}

type blsSigner struct {
	secret *blst.SecretKey
	public *blst.P1Affine
}

// NewBLSSigner derives a BLS key pair from a seed of at least 32 bytes.
func NewBLSSigner(seed []byte) (Signer, error) {
	if len(seed) < 32 {
		return nil, errors.New("seed must be at least 32 bytes")
	}

	secret := blst.KeyGen(seed)
	if secret == nil {
		return nil, errors.New("failed to generate BLS key")
	}

	return &blsSigner{
		secret: secret,
		public: new(blst.P1Affine).From(secret),
	}, nil
}

// GenerateBLS creates a signer with a fresh random key.
func GenerateBLS() (Signer, error) {
	var ikm [32]byte
	if _, err := rand.Read(ikm[:]); err != nil {
		return nil, errors.Wrap(err, "generate random seed")
	}
	return NewBLSSigner(ikm[:])
}

func (s *blsSigner) Key() types.NodeKey {
	return types.NodeKey{
		Scheme:    types.SchemeBLS,
		PublicKey: s.public.Compress(),
	}
}

func (s *blsSigner) Sign(message []byte) []byte {
	return new(blst.P2Affine).Sign(s.secret, message, blsDST).Compress()
}
