// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"errors"

	"github.com/luxfi/ids"

	"github.com/luxfi/lean/crypto/leansig"
)

var errNilExit = errors.New("nil voluntary exit")

// VoluntaryExit asks to remove a validator from duty. It is a one-shot
// message: once applied, a second copy is a duplicate, never a reprocess.
type VoluntaryExit struct {
	ValidatorIndex uint64 `serialize:"true" json:"validatorIndex"`
	Epoch          Epoch  `serialize:"true" json:"epoch"`
}

// SigningRoot is the message the exiting validator signs.
func (e *VoluntaryExit) SigningRoot() (ids.ID, error) {
	root, err := Root(e)
	if err != nil {
		return ids.Empty, err
	}
	return SigningRoot(root, DomainExit), nil
}

// SignedVoluntaryExit is the gossip and block-carried form.
type SignedVoluntaryExit struct {
	VoluntaryExit `serialize:"true"`

	Signature [leansig.SignatureLen]byte `serialize:"true" json:"signature"`
}

func (e *SignedVoluntaryExit) SyntacticVerify() error {
	if e == nil {
		return errNilExit
	}
	return nil
}

// ParseSignedVoluntaryExit deserializes and syntactically verifies a signed
// voluntary exit.
func ParseSignedVoluntaryExit(b []byte) (*SignedVoluntaryExit, error) {
	exit := &SignedVoluntaryExit{}
	if _, err := Codec.Unmarshal(b, exit); err != nil {
		return nil, err
	}
	return exit, exit.SyntacticVerify()
}
