// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package compression bounds the compressed payloads gossip frames carry.
// Both directions enforce the same size cap: a payload too large to ship
// is refused at Compress, and a frame that would inflate past the cap is
// refused at Decompress before the allocation happens.
package compression

import "errors"

var (
	ErrInvalidMaxSizeCompressor = errors.New("invalid compressor max size")
	ErrMsgTooLarge              = errors.New("msg too large to be compressed")
	ErrDecompressedMsgTooLarge  = errors.New("decompressed msg too large")
)

type Compressor interface {
	Compress([]byte) ([]byte, error)
	Decompress([]byte) ([]byte, error)
}
