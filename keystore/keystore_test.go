// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/validators"
)

const (
	testPassword = "correct horse battery staple"

	// Light scrypt parameters keep key derivation fast under test.
	testScryptN = 1 << 12
	testScryptR = 8
	testScryptP = 1
)

func testKeyFile(t *testing.T, signer *leansig.LocalSigner, password string) []byte {
	require := require.New(t)
	data, err := encrypt(signer, password, testScryptN, testScryptR, testScryptP)
	require.NoError(err)
	return data
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	require := require.New(t)

	signer, err := Generate()
	require.NoError(err)

	data := testKeyFile(t, signer, testPassword)

	got, err := Decrypt(data, testPassword)
	require.NoError(err)
	require.Equal(signer.PublicKey(), got.PublicKey())
	require.Equal(signer.ToBytes(), got.ToBytes())
}

func TestDecryptWrongPassword(t *testing.T) {
	require := require.New(t)

	signer, err := Generate()
	require.NoError(err)

	data := testKeyFile(t, signer, testPassword)

	_, err = Decrypt(data, "tr0ub4dor &3 horse")
	require.ErrorIs(err, ErrWrongPassword)
}

func TestEncryptWeakPassword(t *testing.T) {
	require := require.New(t)

	signer, err := Generate()
	require.NoError(err)

	_, err = encrypt(signer, "password1", testScryptN, testScryptR, testScryptP)
	require.ErrorIs(err, ErrWeakPassword)
}

func TestDecryptMalformed(t *testing.T) {
	require := require.New(t)

	_, err := Decrypt([]byte("not json"), testPassword)
	require.ErrorIs(err, ErrBadEnvelope)
}

func TestDecryptUnknownVersion(t *testing.T) {
	require := require.New(t)

	_, err := Decrypt([]byte(`{"version": 99}`), testPassword)
	require.ErrorIs(err, ErrUnknownVersion)
}

func TestPublicKeyWithoutPassword(t *testing.T) {
	require := require.New(t)

	signer, err := Generate()
	require.NoError(err)

	data := testKeyFile(t, signer, testPassword)

	pubKey, err := PublicKey(data)
	require.NoError(err)
	require.Equal(signer.PublicKey(), pubKey)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(os.WriteFile(path, data, keyFileMode))
	pubKey, err = PublicKeyFromFile(path)
	require.NoError(err)
	require.Equal(signer.PublicKey(), pubKey)

	_, err = PublicKey([]byte("not json"))
	require.ErrorIs(err, ErrBadEnvelope)
}

func TestOpenDirectory(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	signers := make([]*leansig.LocalSigner, 3)
	vdrs := make([]*types.Validator, 3)
	for i := range signers {
		signer, err := Generate()
		require.NoError(err)
		signers[i] = signer
		vdrs[i] = &types.Validator{
			Index:            uint64(i),
			PublicKey:        signer.PublicKey(),
			EffectiveBalance: 1,
			Status:           types.StatusActive,
			ExitEpoch:        types.FarFutureEpoch,
		}

		data := testKeyFile(t, signer, testPassword)
		path := filepath.Join(dir, "key"+string(rune('0'+i))+".json")
		require.NoError(os.WriteFile(path, data, keyFileMode))
	}
	registry, err := validators.NewRegistry(vdrs)
	require.NoError(err)

	ks, err := Open(dir, testPassword, registry)
	require.NoError(err)
	require.Equal(3, ks.Len())

	for i, want := range signers {
		signer, ok := ks.Signer(uint64(i))
		require.True(ok)
		require.Equal(want.PublicKey(), signer.PublicKey())
	}

	_, ok := ks.Signer(9)
	require.False(ok)

	indices := ks.Indices()
	require.Len(indices, 3)
	_, ok = indices[2]
	require.True(ok)
}

func TestOpenEmptyDirectory(t *testing.T) {
	require := require.New(t)

	signer, err := Generate()
	require.NoError(err)
	registry, err := validators.NewRegistry([]*types.Validator{{
		Index:            0,
		PublicKey:        signer.PublicKey(),
		EffectiveBalance: 1,
		Status:           types.StatusActive,
		ExitEpoch:        types.FarFutureEpoch,
	}})
	require.NoError(err)

	_, err = Open(t.TempDir(), testPassword, registry)
	require.ErrorIs(err, ErrNoKeys)
}

func TestNewRejectsUnknownKey(t *testing.T) {
	require := require.New(t)

	known, err := Generate()
	require.NoError(err)
	stranger, err := Generate()
	require.NoError(err)

	registry, err := validators.NewRegistry([]*types.Validator{{
		Index:            0,
		PublicKey:        known.PublicKey(),
		EffectiveBalance: 1,
		Status:           types.StatusActive,
		ExitEpoch:        types.FarFutureEpoch,
	}})
	require.NoError(err)

	_, err = New([]*leansig.LocalSigner{stranger}, registry)
	require.ErrorIs(err, ErrUnknownPublicKey)
}

func TestSignerSignsWithTheRightKey(t *testing.T) {
	require := require.New(t)

	signer, err := Generate()
	require.NoError(err)

	data := testKeyFile(t, signer, testPassword)
	restored, err := Decrypt(data, testPassword)
	require.NoError(err)

	msg := []byte("duty payload")
	want, err := signer.Sign(msg)
	require.NoError(err)
	got, err := restored.Sign(msg)
	require.NoError(err)
	require.Equal(want, got)
}
