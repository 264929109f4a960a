// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"fmt"

	p2pgossip "github.com/luxfi/p2p/gossip"

	"github.com/luxfi/ids"

	"github.com/luxfi/lean/gossip"
	"github.com/luxfi/lean/types"
)

var (
	_ p2pgossip.Gossipable = (*Block)(nil)
	_ p2pgossip.Gossipable = (*Attestation)(nil)
	_ p2pgossip.Gossipable = (*Exit)(nil)

	_ p2pgossip.Marshaller[*Block]       = (*blockMarshaller)(nil)
	_ p2pgossip.Marshaller[*Attestation] = (*attestationMarshaller)(nil)
	_ p2pgossip.Marshaller[*Exit]        = (*exitMarshaller)(nil)
)

// Block wraps a signed block for gossip, caching its root.
type Block struct {
	SignedBlock *types.SignedBlock

	id ids.ID
}

func NewBlock(sb *types.SignedBlock) (*Block, error) {
	root, err := sb.Block.Root()
	if err != nil {
		return nil, err
	}
	return &Block{SignedBlock: sb, id: root}, nil
}

func (b *Block) GossipID() ids.ID {
	return b.id
}

// Attestation wraps a signed attestation for gossip; the ID is the content
// root of the signed message, so the same vote re-signed never collides.
type Attestation struct {
	SignedAttestation *types.SignedAttestation

	id ids.ID
}

func NewAttestation(att *types.SignedAttestation) (*Attestation, error) {
	id, err := types.Root(att)
	if err != nil {
		return nil, err
	}
	return &Attestation{SignedAttestation: att, id: id}, nil
}

func (a *Attestation) GossipID() ids.ID {
	return a.id
}

// Exit wraps a signed voluntary exit for gossip.
type Exit struct {
	SignedExit *types.SignedVoluntaryExit

	id ids.ID
}

func NewExit(exit *types.SignedVoluntaryExit) (*Exit, error) {
	id, err := types.Root(exit)
	if err != nil {
		return nil, err
	}
	return &Exit{SignedExit: exit, id: id}, nil
}

func (e *Exit) GossipID() ids.ID {
	return e.id
}

// Marshalling runs the shared frame codec, so every gossiped message carries
// the kind byte, the codec version and a bounded zstd payload.

type blockMarshaller struct {
	frames *gossip.FrameCodec
}

func (m blockMarshaller) MarshalGossip(b *Block) ([]byte, error) {
	payload, err := types.Codec.Marshal(types.CodecVersion, b.SignedBlock)
	if err != nil {
		return nil, err
	}
	return m.frames.Encode(gossip.KindBlock, payload)
}

func (m blockMarshaller) UnmarshalGossip(frame []byte) (*Block, error) {
	payload, err := unwrapFrame(m.frames, frame, gossip.KindBlock)
	if err != nil {
		return nil, err
	}
	sb, err := types.ParseSignedBlock(payload)
	if err != nil {
		return nil, err
	}
	return NewBlock(sb)
}

type attestationMarshaller struct {
	frames *gossip.FrameCodec
}

func (m attestationMarshaller) MarshalGossip(a *Attestation) ([]byte, error) {
	payload, err := types.Codec.Marshal(types.CodecVersion, a.SignedAttestation)
	if err != nil {
		return nil, err
	}
	return m.frames.Encode(gossip.KindAttestation, payload)
}

func (m attestationMarshaller) UnmarshalGossip(frame []byte) (*Attestation, error) {
	payload, err := unwrapFrame(m.frames, frame, gossip.KindAttestation)
	if err != nil {
		return nil, err
	}
	att, err := types.ParseSignedAttestation(payload)
	if err != nil {
		return nil, err
	}
	return NewAttestation(att)
}

type exitMarshaller struct {
	frames *gossip.FrameCodec
}

func (m exitMarshaller) MarshalGossip(e *Exit) ([]byte, error) {
	payload, err := types.Codec.Marshal(types.CodecVersion, e.SignedExit)
	if err != nil {
		return nil, err
	}
	return m.frames.Encode(gossip.KindVoluntaryExit, payload)
}

func (m exitMarshaller) UnmarshalGossip(frame []byte) (*Exit, error) {
	payload, err := unwrapFrame(m.frames, frame, gossip.KindVoluntaryExit)
	if err != nil {
		return nil, err
	}
	exit, err := types.ParseSignedVoluntaryExit(payload)
	if err != nil {
		return nil, err
	}
	return NewExit(exit)
}

func unwrapFrame(frames *gossip.FrameCodec, frame []byte, want gossip.Kind) ([]byte, error) {
	kind, payload, err := frames.Decode(frame)
	if err != nil {
		return nil, err
	}
	if kind != want {
		return nil, fmt.Errorf("%w: got %s, want %s", gossip.ErrUnknownKind, kind, want)
	}
	return payload, nil
}
