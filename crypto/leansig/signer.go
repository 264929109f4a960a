// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package leansig

import (
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/crypto/bls/signer/localsigner"
)

var _ Signer = (*LocalSigner)(nil)

// LocalSigner holds an in-memory secret key.
type LocalSigner struct {
	inner *localsigner.LocalSigner
}

// NewLocalSigner generates a fresh secret key.
func NewLocalSigner() (*LocalSigner, error) {
	inner, err := localsigner.New()
	if err != nil {
		return nil, err
	}
	return &LocalSigner{inner: inner}, nil
}

// LocalSignerFromBytes restores a signer from a serialized secret key.
func LocalSignerFromBytes(b []byte) (*LocalSigner, error) {
	inner, err := localsigner.FromBytes(b)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{inner: inner}, nil
}

func (s *LocalSigner) PublicKey() [PublicKeyLen]byte {
	var out [PublicKeyLen]byte
	copy(out[:], bls.PublicKeyToCompressedBytes(s.inner.PublicKey()))
	return out
}

func (s *LocalSigner) Sign(msg []byte) ([SignatureLen]byte, error) {
	var out [SignatureLen]byte
	sig, err := s.inner.Sign(msg)
	if err != nil {
		return out, err
	}
	copy(out[:], bls.SignatureToBytes(sig))
	return out, nil
}

// ToBytes serializes the secret key. Callers own keeping the result secret.
func (s *LocalSigner) ToBytes() []byte {
	return s.inner.ToBytes()
}
