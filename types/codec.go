// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"crypto/sha256"
	"errors"

	"github.com/luxfi/codec"
	"github.com/luxfi/codec/linearcodec"
	"github.com/luxfi/constants"
	"github.com/luxfi/ids"
)

const CodecVersion = 0

// Codec serializes every consensus container: blocks, attestations, exits
// and the chain state. One manager covers the wire, the database and root
// computation so the three can never disagree.
var Codec codec.Manager

func init() {
	Codec = codec.NewManager(constants.MiB)
	lc := linearcodec.NewDefault()

	err := errors.Join(
		lc.RegisterType(&BlockHeader{}),
		lc.RegisterType(&BlockBody{}),
		lc.RegisterType(&Block{}),
		lc.RegisterType(&SignedBlock{}),
		lc.RegisterType(&AttestationData{}),
		lc.RegisterType(&Attestation{}),
		lc.RegisterType(&SignedAttestation{}),
		lc.RegisterType(&AggregatedAttestation{}),
		lc.RegisterType(&Validator{}),
		lc.RegisterType(&VoluntaryExit{}),
		lc.RegisterType(&SignedVoluntaryExit{}),
		Codec.RegisterCodec(CodecVersion, lc),
	)
	if err != nil {
		panic(err)
	}
}

// Root computes the content root of a codec-serializable container.
func Root(v interface{}) (ids.ID, error) {
	b, err := Codec.Marshal(CodecVersion, v)
	if err != nil {
		return ids.Empty, err
	}
	return ids.ID(sha256.Sum256(b)), nil
}
