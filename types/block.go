// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"errors"

	"github.com/luxfi/ids"

	"github.com/luxfi/lean/crypto/leansig"
)

var (
	errNilBlock     = errors.New("nil block")
	errNilBlockBody = errors.New("nil block body")
	errGenesisSlot  = errors.New("block at genesis slot")
)

// BlockHeader commits to a block without its payload. The state keeps the
// latest header so the parent link can be checked without the parent body.
type BlockHeader struct {
	Slot       Slot   `serialize:"true" json:"slot"`
	Proposer   uint64 `serialize:"true" json:"proposer"`
	ParentRoot ids.ID `serialize:"true" json:"parentRoot"`
	StateRoot  ids.ID `serialize:"true" json:"stateRoot"`
	BodyRoot   ids.ID `serialize:"true" json:"bodyRoot"`
}

func (h *BlockHeader) Root() (ids.ID, error) {
	return Root(h)
}

// BlockBody carries the block's operations in application order.
type BlockBody struct {
	Attestations []*AggregatedAttestation `serialize:"true" json:"attestations"`
	Exits        []*SignedVoluntaryExit   `serialize:"true" json:"exits"`
}

func (b *BlockBody) Root() (ids.ID, error) {
	return Root(b)
}

// Block is immutable once built. Its identity is the content root of its
// derived header, so a header commits to the full block.
type Block struct {
	Slot       Slot       `serialize:"true" json:"slot"`
	Proposer   uint64     `serialize:"true" json:"proposer"`
	ParentRoot ids.ID     `serialize:"true" json:"parentRoot"`
	StateRoot  ids.ID     `serialize:"true" json:"stateRoot"`
	Body       *BlockBody `serialize:"true" json:"body"`
}

// Header derives the block's header, hashing the body.
func (b *Block) Header() (*BlockHeader, error) {
	if b.Body == nil {
		return nil, errNilBlockBody
	}
	bodyRoot, err := b.Body.Root()
	if err != nil {
		return nil, err
	}
	return &BlockHeader{
		Slot:       b.Slot,
		Proposer:   b.Proposer,
		ParentRoot: b.ParentRoot,
		StateRoot:  b.StateRoot,
		BodyRoot:   bodyRoot,
	}, nil
}

// Root is the block's identity.
func (b *Block) Root() (ids.ID, error) {
	header, err := b.Header()
	if err != nil {
		return ids.Empty, err
	}
	return header.Root()
}

// SigningRoot is the message the proposer signs.
func (b *Block) SigningRoot() (ids.ID, error) {
	root, err := b.Root()
	if err != nil {
		return ids.Empty, err
	}
	return SigningRoot(root, DomainBlock), nil
}

func (b *Block) SyntacticVerify() error {
	switch {
	case b == nil:
		return errNilBlock
	case b.Body == nil:
		return errNilBlockBody
	case b.Slot == 0:
		return errGenesisSlot
	}
	for _, att := range b.Body.Attestations {
		if err := att.SyntacticVerify(); err != nil {
			return err
		}
	}
	for _, exit := range b.Body.Exits {
		if err := exit.SyntacticVerify(); err != nil {
			return err
		}
	}
	return nil
}

// SignedBlock wraps a block with the proposer's signature over the block's
// signing root.
type SignedBlock struct {
	Block *Block `serialize:"true" json:"block"`

	Signature [leansig.SignatureLen]byte `serialize:"true" json:"signature"`
}

func (sb *SignedBlock) SyntacticVerify() error {
	if sb == nil {
		return errNilBlock
	}
	return sb.Block.SyntacticVerify()
}

func (sb *SignedBlock) Bytes() ([]byte, error) {
	return Codec.Marshal(CodecVersion, sb)
}

// ParseSignedBlock deserializes and syntactically verifies a signed block.
func ParseSignedBlock(b []byte) (*SignedBlock, error) {
	sb := &SignedBlock{}
	if _, err := Codec.Unmarshal(b, sb); err != nil {
		return nil, err
	}
	return sb, sb.SyntacticVerify()
}
