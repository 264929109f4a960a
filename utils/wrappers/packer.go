// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wrappers

import (
	"encoding/binary"
	"errors"
)

const (
	// ByteLen is the width of a packed byte.
	ByteLen = 1
	// IntLen is the width of the length prefix PackBytes writes.
	IntLen = 4
)

var (
	errOutOfSpace = errors.New("packed bytes exceed max size")
	errBadLength  = errors.New("insufficient bytes to unpack")
)

// Packer reads and writes the length-checked byte frames gossip messages
// travel in. The first error sticks in Err; later calls are no-ops, so a
// frame codec checks once after the last operation.
type Packer struct {
	// MaxSize bounds the packed form. Packing past it sets Err.
	MaxSize int
	Bytes   []byte
	Offset  int
	Err     error
}

// PackByte appends one byte.
func (p *Packer) PackByte(b byte) {
	if !p.grow(ByteLen) {
		return
	}
	p.Bytes[p.Offset] = b
	p.Offset++
}

// UnpackByte reads one byte.
func (p *Packer) UnpackByte() byte {
	if !p.have(ByteLen) {
		return 0
	}
	b := p.Bytes[p.Offset]
	p.Offset++
	return b
}

// PackInt appends a big-endian uint32.
func (p *Packer) PackInt(v uint32) {
	if !p.grow(IntLen) {
		return
	}
	binary.BigEndian.PutUint32(p.Bytes[p.Offset:], v)
	p.Offset += IntLen
}

// UnpackInt reads a big-endian uint32.
func (p *Packer) UnpackInt() uint32 {
	if !p.have(IntLen) {
		return 0
	}
	v := binary.BigEndian.Uint32(p.Bytes[p.Offset:])
	p.Offset += IntLen
	return v
}

// PackBytes appends a uint32 length prefix followed by [b].
func (p *Packer) PackBytes(b []byte) {
	p.PackInt(uint32(len(b)))
	if !p.grow(len(b)) {
		return
	}
	copy(p.Bytes[p.Offset:], b)
	p.Offset += len(b)
}

// UnpackBytes reads a length-prefixed byte slice. The result aliases the
// frame buffer.
func (p *Packer) UnpackBytes() []byte {
	length := int(p.UnpackInt())
	if !p.have(length) {
		return nil
	}
	b := p.Bytes[p.Offset : p.Offset+length]
	p.Offset += length
	return b
}

// grow extends the buffer by [n] bytes, respecting MaxSize.
func (p *Packer) grow(n int) bool {
	if p.Err != nil {
		return false
	}
	if neededSize := p.Offset + n; neededSize > len(p.Bytes) {
		if neededSize > p.MaxSize {
			p.Err = errOutOfSpace
			return false
		}
		p.Bytes = append(p.Bytes, make([]byte, neededSize-len(p.Bytes))...)
	}
	return true
}

// have reports whether [n] unread bytes remain.
func (p *Packer) have(n int) bool {
	if p.Err != nil {
		return false
	}
	if n < 0 || p.Offset+n > len(p.Bytes) {
		p.Err = errBadLength
		return false
	}
	return true
}
