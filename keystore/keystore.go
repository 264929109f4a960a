// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keystore stores validator secret keys encrypted at rest. The duty
// path only ever sees a leansig.Signer; raw secret material stays inside
// this package.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/nbutton23/zxcvbn-go"
	"golang.org/x/crypto/scrypt"

	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/validators"
)

const (
	// EnvelopeVersion is the on-disk key file format version.
	EnvelopeVersion = 1

	keyFileMode = 0o600
	keyFileExt  = ".json"

	saltLen   = 32
	aesKeyLen = 32

	// minPasswordScore is the minimum zxcvbn score accepted at creation.
	minPasswordScore = 2

	// Standard scrypt parameters for key files at rest.
	StandardScryptN = 1 << 18
	StandardScryptR = 8
	StandardScryptP = 1
)

var (
	ErrWeakPassword     = errors.New("password is too weak")
	ErrWrongPassword    = errors.New("wrong password or corrupted key file")
	ErrBadEnvelope      = errors.New("malformed key file")
	ErrUnknownVersion   = errors.New("unsupported key file version")
	ErrNoKeys           = errors.New("no key files found")
	ErrUnknownPublicKey = errors.New("public key not in the validator registry")
)

// envelope is the JSON key file layout. The public key travels in the clear
// so registries can be assembled without decrypting anything.
type envelope struct {
	Version    int    `json:"version"`
	PublicKey  string `json:"pubkey"`
	ScryptN    int    `json:"scrypt_n"`
	ScryptR    int    `json:"scrypt_r"`
	ScryptP    int    `json:"scrypt_p"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Generate creates a fresh secret key.
func Generate() (*leansig.LocalSigner, error) {
	return leansig.NewLocalSigner()
}

// CheckPassword gates password strength at creation time.
func CheckPassword(password string) error {
	if zxcvbn.PasswordStrength(password, nil).Score < minPasswordScore {
		return ErrWeakPassword
	}
	return nil
}

// Encrypt seals the signer's secret key under the password with the
// standard scrypt parameters.
func Encrypt(signer *leansig.LocalSigner, password string) ([]byte, error) {
	return encrypt(signer, password, StandardScryptN, StandardScryptR, StandardScryptP)
}

func encrypt(signer *leansig.LocalSigner, password string, n, r, p int) ([]byte, error) {
	if err := CheckPassword(password); err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := newAEAD(password, salt, n, r, p)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	pubKey := signer.PublicKey()
	ciphertext := aead.Seal(nil, nonce, signer.ToBytes(), pubKey[:])

	return json.MarshalIndent(envelope{
		Version:    EnvelopeVersion,
		PublicKey:  hex.EncodeToString(pubKey[:]),
		ScryptN:    n,
		ScryptR:    r,
		ScryptP:    p,
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
	}, "", "  ")
}

// Decrypt opens a key file payload with the password.
func Decrypt(data []byte, password string) (*leansig.LocalSigner, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	if env.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, env.Version)
	}

	pubKey, err := hex.DecodeString(env.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad pubkey: %w", ErrBadEnvelope, err)
	}
	salt, err := hex.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt: %w", ErrBadEnvelope, err)
	}
	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: bad nonce: %w", ErrBadEnvelope, err)
	}
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext: %w", ErrBadEnvelope, err)
	}

	aead, err := newAEAD(password, salt, env.ScryptN, env.ScryptR, env.ScryptP)
	if err != nil {
		return nil, err
	}
	secret, err := aead.Open(nil, nonce, ciphertext, pubKey)
	if err != nil {
		return nil, ErrWrongPassword
	}

	signer, err := leansig.LocalSignerFromBytes(secret)
	if err != nil {
		return nil, err
	}
	got := signer.PublicKey()
	if hex.EncodeToString(got[:]) != env.PublicKey {
		return nil, fmt.Errorf("%w: pubkey does not match the secret key", ErrBadEnvelope)
	}
	return signer, nil
}

// PublicKey reads the public key of a key file payload. The envelope keeps
// it in the clear, so no password is needed.
func PublicKey(data []byte) ([leansig.PublicKeyLen]byte, error) {
	var pubKey [leansig.PublicKeyLen]byte

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return pubKey, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	if env.Version != EnvelopeVersion {
		return pubKey, fmt.Errorf("%w: %d", ErrUnknownVersion, env.Version)
	}
	raw, err := hex.DecodeString(env.PublicKey)
	if err != nil || len(raw) != leansig.PublicKeyLen {
		return pubKey, fmt.Errorf("%w: bad pubkey", ErrBadEnvelope)
	}
	copy(pubKey[:], raw)
	return pubKey, nil
}

// PublicKeyFromFile reads the public key of an encrypted key file.
func PublicKeyFromFile(path string) ([leansig.PublicKeyLen]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [leansig.PublicKeyLen]byte{}, err
	}
	return PublicKey(data)
}

func newAEAD(password string, salt []byte, n, r, p int) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(password), salt, n, r, p, aesKeyLen)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// WriteFile encrypts the signer and writes the key file atomically.
func WriteFile(path string, signer *leansig.LocalSigner, password string) error {
	data, err := Encrypt(signer, password)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, keyFileMode)
}

// ReadFile opens an encrypted key file.
func ReadFile(path string, password string) (*leansig.LocalSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decrypt(data, password)
}

// Keystore resolves validator indices to signers.
type Keystore struct {
	signers map[uint64]leansig.Signer
}

// New builds a keystore from already-opened signers, matched against the
// registry by public key.
func New(signers []*leansig.LocalSigner, registry *validators.Registry) (*Keystore, error) {
	byKey := make(map[[leansig.PublicKeyLen]byte]uint64, registry.Len())
	for _, vdr := range registry.Validators() {
		byKey[vdr.PublicKey] = vdr.Index
	}

	ks := &Keystore{signers: make(map[uint64]leansig.Signer, len(signers))}
	for _, signer := range signers {
		index, ok := byKey[signer.PublicKey()]
		if !ok {
			pubKey := signer.PublicKey()
			return nil, fmt.Errorf("%w: %s", ErrUnknownPublicKey, hex.EncodeToString(pubKey[:]))
		}
		ks.signers[index] = signer
	}
	return ks, nil
}

// Open decrypts every key file in the directory and matches the keys
// against the registry.
func Open(dir string, password string, registry *validators.Registry) (*Keystore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var signers []*leansig.LocalSigner
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), keyFileExt) {
			continue
		}
		signer, err := ReadFile(filepath.Join(dir, entry.Name()), password)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", entry.Name(), err)
		}
		signers = append(signers, signer)
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoKeys, dir)
	}
	return New(signers, registry)
}

// Signer returns the signer for a validator index, if this keystore holds
// its key.
func (k *Keystore) Signer(index uint64) (leansig.Signer, bool) {
	signer, ok := k.signers[index]
	return signer, ok
}

// Indices lists the validator indices this keystore can sign for.
func (k *Keystore) Indices() map[uint64]struct{} {
	indices := make(map[uint64]struct{}, len(k.signers))
	for index := range k.signers {
		indices[index] = struct{}{}
	}
	return indices
}

// Len reports how many keys the keystore holds.
func (k *Keystore) Len() int {
	return len(k.signers)
}
