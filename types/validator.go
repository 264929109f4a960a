// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"cmp"
	"errors"

	"github.com/luxfi/ids"

	"github.com/luxfi/lean/crypto/leansig"
)

// ValidatorStatus tracks a validator through its lifecycle. Transitions only
// move forward: Pending -> Active -> Exiting -> Exited, with Slashed as a
// terminal branch.
type ValidatorStatus uint8

const (
	StatusPending ValidatorStatus = iota
	StatusActive
	StatusExiting
	StatusExited
	StatusSlashed
)

func (s ValidatorStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusExiting:
		return "exiting"
	case StatusExited:
		return "exited"
	case StatusSlashed:
		return "slashed"
	default:
		return "unknown"
	}
}

var (
	errNilValidator   = errors.New("nil validator")
	errEmptyPublicKey = errors.New("empty public key")
	errUnknownStatus  = errors.New("unknown validator status")
)

// Validator is one registry record. Indices are stable for the life of the
// chain: never reused, never reassigned, and an index maps to exactly one
// public key forever.
type Validator struct {
	Index            uint64                     `serialize:"true" json:"index"`
	NodeID           ids.NodeID                 `serialize:"true" json:"nodeID"`
	PublicKey        [leansig.PublicKeyLen]byte `serialize:"true" json:"publicKey"`
	EffectiveBalance uint64                     `serialize:"true" json:"effectiveBalance"`
	Status           ValidatorStatus            `serialize:"true" json:"status"`
	ActivationEpoch  Epoch                      `serialize:"true" json:"activationEpoch"`
	ExitEpoch        Epoch                      `serialize:"true" json:"exitEpoch"`
}

// IsActive reports whether the validator participates in consensus at
// [epoch]: status Active or Exiting, activation reached, exit not yet.
func (v *Validator) IsActive(epoch Epoch) bool {
	switch v.Status {
	case StatusActive, StatusExiting:
		return v.ActivationEpoch <= epoch && epoch < v.ExitEpoch
	default:
		return false
	}
}

func (v *Validator) Verify() error {
	switch {
	case v == nil:
		return errNilValidator
	case v.PublicKey == [leansig.PublicKeyLen]byte{}:
		return errEmptyPublicKey
	case v.Status > StatusSlashed:
		return errUnknownStatus
	}
	return nil
}

func (v *Validator) Compare(o *Validator) int {
	return cmp.Compare(v.Index, o.Index)
}
