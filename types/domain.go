// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"crypto/sha256"

	"github.com/luxfi/ids"
)

// Domain tags a signing root with the message kind so a signature over one
// container can never be replayed as another.
type Domain [4]byte

var (
	DomainBlock       = Domain{0x00, 0x00, 0x00, 0x01}
	DomainAttestation = Domain{0x00, 0x00, 0x00, 0x02}
	DomainExit        = Domain{0x00, 0x00, 0x00, 0x03}
	DomainShuffle     = Domain{0x00, 0x00, 0x00, 0x04}
)

// SigningRoot mixes a content root with a domain. Signatures are always made
// over a signing root, never a bare content root.
func SigningRoot(root ids.ID, domain Domain) ids.ID {
	b := make([]byte, 0, len(root)+len(domain))
	b = append(b, root[:]...)
	b = append(b, domain[:]...)
	return ids.ID(sha256.Sum256(b))
}
