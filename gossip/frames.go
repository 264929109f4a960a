// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"errors"
	"fmt"

	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/utils/compression"
	"github.com/luxfi/lean/utils/wrappers"
)

// Kind discriminates the message carried by a gossip frame.
type Kind byte

const (
	KindBlock Kind = iota
	KindAttestation
	KindVoluntaryExit
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindAttestation:
		return "attestation"
	case KindVoluntaryExit:
		return "voluntary_exit"
	default:
		return "unknown"
	}
}

var (
	ErrUnknownKind         = errors.New("unknown message kind")
	ErrUnsupportedEncoding = errors.New("unsupported frame encoding")
	errMalformedFrame      = errors.New("malformed gossip frame")
)

// Topic names the gossip channel for [kind] on [network]. The suffix pins
// the frame encoding, so nodes speaking a different codec never share a
// topic.
func Topic(network string, kind Kind) string {
	return fmt.Sprintf("/lean/%s/%s/codec_zstd", network, kind)
}

// FrameCodec wraps consensus payloads for the wire: a kind byte, the codec
// version, then the zstd-compressed payload. Decompression is bounded, so a
// tiny frame cannot expand into an arbitrarily large allocation.
type FrameCodec struct {
	compressor compression.Compressor
}

func NewFrameCodec(maxPayloadSize int64) (*FrameCodec, error) {
	compressor, err := compression.NewZstdCompressor(maxPayloadSize)
	if err != nil {
		return nil, err
	}
	return &FrameCodec{compressor: compressor}, nil
}

func (c *FrameCodec) Encode(kind Kind, payload []byte) ([]byte, error) {
	compressed, err := c.compressor.Compress(payload)
	if err != nil {
		return nil, err
	}

	p := wrappers.Packer{
		MaxSize: 2 + wrappers.IntLen + len(compressed),
	}
	p.PackByte(byte(kind))
	p.PackByte(types.CodecVersion)
	p.PackBytes(compressed)
	return p.Bytes, p.Err
}

func (c *FrameCodec) Decode(frame []byte) (Kind, []byte, error) {
	p := wrappers.Packer{Bytes: frame}
	kind := Kind(p.UnpackByte())
	version := p.UnpackByte()
	compressed := p.UnpackBytes()
	if p.Err != nil {
		return 0, nil, fmt.Errorf("%w: %s", errMalformedFrame, p.Err)
	}
	if p.Offset != len(frame) {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes", errMalformedFrame, len(frame)-p.Offset)
	}
	if kind > KindVoluntaryExit {
		return 0, nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	if version != types.CodecVersion {
		return 0, nil, fmt.Errorf("%w: codec version %d", ErrUnsupportedEncoding, version)
	}

	payload, err := c.compressor.Decompress(compressed)
	if err != nil {
		return 0, nil, err
	}
	return kind, payload, nil
}
