// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"errors"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	"github.com/luxfi/lean/crypto/leansig"
)

var (
	ErrInvalidBitSet      = errors.New("bit set is invalid")
	ErrTargetBeforeSource = errors.New("target slot before source slot")

	errNilAttestation = errors.New("nil attestation")
	errEmptyTarget    = errors.New("empty target root")
	errNoAttesters    = errors.New("no attesters")
)

// AttestationData is the vote: the slot it was cast in, the checkpoint it
// supports and the justified checkpoint it builds on. The target doubles as
// the fork-choice weight root; there is no separate head vote.
type AttestationData struct {
	Slot   Slot       `serialize:"true" json:"slot"`
	Target Checkpoint `serialize:"true" json:"target"`
	Source Checkpoint `serialize:"true" json:"source"`
}

// Root computes the content root of the vote. Every attester over the same
// data signs the same root, which is what makes aggregation possible.
func (d *AttestationData) Root() (ids.ID, error) {
	return Root(d)
}

// SigningRoot is the message attesters actually sign.
func (d *AttestationData) SigningRoot() (ids.ID, error) {
	root, err := Root(d)
	if err != nil {
		return ids.Empty, err
	}
	return SigningRoot(root, DomainAttestation), nil
}

func (d *AttestationData) verify() error {
	switch {
	case d.Target.Slot < d.Source.Slot:
		return ErrTargetBeforeSource
	case d.Target.Root == ids.Empty:
		return errEmptyTarget
	}
	return nil
}

// Attestation is a single validator's vote.
type Attestation struct {
	Attester uint64          `serialize:"true" json:"attester"`
	Data     AttestationData `serialize:"true" json:"data"`
}

// SignedAttestation is the gossip form: one attester, one signature over the
// data's signing root.
type SignedAttestation struct {
	Attestation `serialize:"true"`

	Signature [leansig.SignatureLen]byte `serialize:"true" json:"signature"`
}

func (a *SignedAttestation) SyntacticVerify() error {
	if a == nil {
		return errNilAttestation
	}
	return a.Data.verify()
}

// AggregatedAttestation is the block-carried form: a bitset of attester
// indices plus the aggregate of their signatures over one shared data root.
type AggregatedAttestation struct {
	// Attesters is a big-endian byte slice encoding a set.Bits of validator
	// indices. It must be the minimal encoding: no padding bytes.
	Attesters []byte          `serialize:"true" json:"attesters"`
	Data      AttestationData `serialize:"true" json:"data"`

	Signature [leansig.SignatureLen]byte `serialize:"true" json:"signature"`
}

func (a *AggregatedAttestation) SyntacticVerify() error {
	switch {
	case a == nil:
		return errNilAttestation
	case len(a.Attesters) == 0:
		return errNoAttesters
	}
	if err := a.Data.verify(); err != nil {
		return err
	}
	_, err := a.AttesterSet()
	return err
}

// AttesterSet decodes the attester bitset. Padded encodings are refused so
// that equal sets always serialize to equal bytes.
func (a *AggregatedAttestation) AttesterSet() (set.Bits, error) {
	attesters := set.BitsFromBytes(a.Attesters)
	if len(attesters.Bytes()) != len(a.Attesters) {
		return set.NewBits(), ErrInvalidBitSet
	}
	return attesters, nil
}

// AttesterIndices lists the set bits in ascending order.
func (a *AggregatedAttestation) AttesterIndices() ([]uint64, error) {
	attesters, err := a.AttesterSet()
	if err != nil {
		return nil, err
	}
	var out []uint64
	for i := 0; i < attesters.BitLen(); i++ {
		if attesters.Contains(i) {
			out = append(out, uint64(i))
		}
	}
	return out, nil
}

// ParseSignedAttestation deserializes and syntactically verifies a gossip
// attestation.
func ParseSignedAttestation(b []byte) (*SignedAttestation, error) {
	att := &SignedAttestation{}
	if _, err := Codec.Unmarshal(b, att); err != nil {
		return nil, err
	}
	return att, att.SyntacticVerify()
}
