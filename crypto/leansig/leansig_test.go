// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package leansig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	require := require.New(t)

	signer, err := NewLocalSigner()
	require.NoError(err)

	msg := []byte("interval boundary")
	sig, err := Sign(signer, msg)
	require.NoError(err)

	pk := signer.PublicKey()
	require.NoError(Verify(pk[:], msg, sig[:]))
}

func TestVerifyWrongMessage(t *testing.T) {
	require := require.New(t)

	signer, err := NewLocalSigner()
	require.NoError(err)

	sig, err := signer.Sign([]byte("signed"))
	require.NoError(err)

	pk := signer.PublicKey()
	err = Verify(pk[:], []byte("not signed"), sig[:])
	require.ErrorIs(err, ErrBadSignature)
}

func TestVerifyInvalidEncoding(t *testing.T) {
	require := require.New(t)

	signer, err := NewLocalSigner()
	require.NoError(err)

	msg := []byte("msg")
	sig, err := signer.Sign(msg)
	require.NoError(err)
	pk := signer.PublicKey()

	// Truncated public key.
	err = Verify(pk[:PublicKeyLen-1], msg, sig[:])
	require.ErrorIs(err, ErrInvalidEncoding)

	// Garbage signature bytes.
	var garbage [SignatureLen]byte
	for i := range garbage {
		garbage[i] = 0xff
	}
	err = Verify(pk[:], msg, garbage[:])
	require.ErrorIs(err, ErrInvalidEncoding)
}

func TestAggregateRoundTrip(t *testing.T) {
	require := require.New(t)

	const numSigners = 5
	msg := []byte("one data, many attesters")

	pks := make([][PublicKeyLen]byte, numSigners)
	sigs := make([][SignatureLen]byte, numSigners)
	for i := 0; i < numSigners; i++ {
		signer, err := NewLocalSigner()
		require.NoError(err)

		pks[i] = signer.PublicKey()
		sigs[i], err = signer.Sign(msg)
		require.NoError(err)
	}

	agg, err := AggregateSignatures(sigs)
	require.NoError(err)
	require.NoError(AggregateVerify(pks, msg, agg))

	// Dropping a key from the aggregate set must fail verification.
	err = AggregateVerify(pks[1:], msg, agg)
	require.ErrorIs(err, ErrBadSignature)
}

func TestAggregateEmpty(t *testing.T) {
	require := require.New(t)

	_, err := AggregateSignatures(nil)
	require.ErrorIs(err, ErrEmptyAggregate)

	var sig [SignatureLen]byte
	err = AggregateVerify(nil, []byte("msg"), sig)
	require.ErrorIs(err, ErrEmptyAggregate)
}

func TestLocalSignerRoundTrip(t *testing.T) {
	require := require.New(t)

	signer, err := NewLocalSigner()
	require.NoError(err)

	restored, err := LocalSignerFromBytes(signer.ToBytes())
	require.NoError(err)
	require.Equal(signer.PublicKey(), restored.PublicKey())

	msg := []byte("same key, same signature")
	sig, err := restored.Sign(msg)
	require.NoError(err)

	pk := signer.PublicKey()
	require.NoError(Verify(pk[:], msg, sig[:]))
}
