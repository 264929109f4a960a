// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package leansig exposes the aggregatable signature surface the consensus
// engine relies on. Everything here is pure: no state, no clocks, no I/O.
// The engine only ever sees serialized keys and signatures; raw secret
// material stays behind the Signer interface.
package leansig

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto/bls"
)

const (
	// SignatureLen is the length of a serialized signature.
	SignatureLen = bls.SignatureLen
	// PublicKeyLen is the length of a serialized (compressed) public key.
	PublicKeyLen = bls.PublicKeyLen
)

var (
	ErrInvalidEncoding = errors.New("invalid encoding")
	ErrBadSignature    = errors.New("signature verification failed")
	ErrEmptyAggregate  = errors.New("empty aggregate")
)

// Signer produces signatures without exposing the secret key.
type Signer interface {
	PublicKey() [PublicKeyLen]byte
	Sign(msg []byte) ([SignatureLen]byte, error)
}

// Sign signs [msg] with [signer] and returns the serialized signature.
func Sign(signer Signer, msg []byte) ([SignatureLen]byte, error) {
	return signer.Sign(msg)
}

// Verify checks that [sig] is a valid signature of [msg] under [pk].
// Malformed or wrong-length inputs return ErrInvalidEncoding; a well-formed
// signature that fails the pairing check returns ErrBadSignature. Never
// panics.
func Verify(pk, msg, sig []byte) error {
	publicKey, err := bls.PublicKeyFromCompressedBytes(pk)
	if err != nil {
		return fmt.Errorf("%w: public key: %w", ErrInvalidEncoding, err)
	}
	signature, err := bls.SignatureFromBytes(sig)
	if err != nil {
		return fmt.Errorf("%w: signature: %w", ErrInvalidEncoding, err)
	}
	if !bls.Verify(publicKey, signature, msg) {
		return ErrBadSignature
	}
	return nil
}

// AggregateSignatures combines signatures over a common message into a
// single signature. Zero inputs are refused rather than mapped to an
// identity element.
func AggregateSignatures(sigs [][SignatureLen]byte) ([SignatureLen]byte, error) {
	var out [SignatureLen]byte
	if len(sigs) == 0 {
		return out, ErrEmptyAggregate
	}

	parsed := make([]*bls.Signature, len(sigs))
	for i, sig := range sigs {
		signature, err := bls.SignatureFromBytes(sig[:])
		if err != nil {
			return out, fmt.Errorf("%w: signature %d: %w", ErrInvalidEncoding, i, err)
		}
		parsed[i] = signature
	}

	agg, err := bls.AggregateSignatures(parsed)
	if err != nil {
		return out, err
	}
	copy(out[:], bls.SignatureToBytes(agg))
	return out, nil
}

// AggregateVerify checks that every key in [pks] signed [msg], given the
// aggregate signature [sig].
func AggregateVerify(pks [][PublicKeyLen]byte, msg []byte, sig [SignatureLen]byte) error {
	if len(pks) == 0 {
		return ErrEmptyAggregate
	}

	keys := make([]*bls.PublicKey, len(pks))
	for i, pk := range pks {
		key, err := bls.PublicKeyFromCompressedBytes(pk[:])
		if err != nil {
			return fmt.Errorf("%w: public key %d: %w", ErrInvalidEncoding, i, err)
		}
		keys[i] = key
	}

	aggKey, err := bls.AggregatePublicKeys(keys)
	if err != nil {
		return err
	}
	signature, err := bls.SignatureFromBytes(sig[:])
	if err != nil {
		return fmt.Errorf("%w: signature: %w", ErrInvalidEncoding, err)
	}
	if !bls.Verify(aggKey, signature, msg) {
		return ErrBadSignature
	}
	return nil
}
