// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
	"github.com/stretchr/testify/require"
)

func TestBlockRootDeterministic(t *testing.T) {
	require := require.New(t)

	blk := &Block{
		Slot:       7,
		Proposer:   3,
		ParentRoot: ids.GenerateTestID(),
		StateRoot:  ids.GenerateTestID(),
		Body:       &BlockBody{},
	}

	root, err := blk.Root()
	require.NoError(err)
	require.NotEqual(ids.Empty, root)

	again, err := blk.Root()
	require.NoError(err)
	require.Equal(root, again)

	// The header commits to the same identity as the block.
	header, err := blk.Header()
	require.NoError(err)
	headerRoot, err := header.Root()
	require.NoError(err)
	require.Equal(root, headerRoot)
}

func TestBlockRootChangesWithContent(t *testing.T) {
	require := require.New(t)

	parent := ids.GenerateTestID()
	blkA := &Block{Slot: 1, Proposer: 1, ParentRoot: parent, Body: &BlockBody{}}
	blkB := &Block{Slot: 2, Proposer: 1, ParentRoot: parent, Body: &BlockBody{}}

	rootA, err := blkA.Root()
	require.NoError(err)
	rootB, err := blkB.Root()
	require.NoError(err)
	require.NotEqual(rootA, rootB)
}

func TestSignedBlockRoundTrip(t *testing.T) {
	require := require.New(t)

	sb := &SignedBlock{
		Block: &Block{
			Slot:       1,
			Proposer:   1,
			ParentRoot: ids.GenerateTestID(),
			StateRoot:  ids.GenerateTestID(),
			Body: &BlockBody{
				Exits: []*SignedVoluntaryExit{{
					VoluntaryExit: VoluntaryExit{ValidatorIndex: 2, Epoch: 0},
				}},
			},
		},
	}

	b, err := sb.Bytes()
	require.NoError(err)

	parsed, err := ParseSignedBlock(b)
	require.NoError(err)
	require.Equal(sb, parsed)
}

func TestBlockSyntacticVerify(t *testing.T) {
	tests := []struct {
		name        string
		block       *Block
		expectedErr error
	}{
		{
			name:        "nil body",
			block:       &Block{Slot: 1},
			expectedErr: errNilBlockBody,
		},
		{
			name:        "genesis slot",
			block:       &Block{Slot: 0, Body: &BlockBody{}},
			expectedErr: errGenesisSlot,
		},
		{
			name: "target before source",
			block: &Block{
				Slot: 1,
				Body: &BlockBody{
					Attestations: []*AggregatedAttestation{{
						Attesters: set.NewBits(0).Bytes(),
						Data: AttestationData{
							Slot:   1,
							Target: Checkpoint{Root: ids.GenerateTestID(), Slot: 1},
							Source: Checkpoint{Root: ids.GenerateTestID(), Slot: 2},
						},
					}},
				},
			},
			expectedErr: ErrTargetBeforeSource,
		},
		{
			name:        "valid",
			block:       &Block{Slot: 1, Body: &BlockBody{}},
			expectedErr: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.block.SyntacticVerify()
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestAggregatedAttestationBitSet(t *testing.T) {
	require := require.New(t)

	target := Checkpoint{Root: ids.GenerateTestID(), Slot: 3}
	data := AttestationData{Slot: 3, Target: target, Source: Checkpoint{Root: ids.GenerateTestID()}}

	attesters := set.NewBits(0, 2, 5)
	agg := &AggregatedAttestation{
		Attesters: attesters.Bytes(),
		Data:      data,
	}
	require.NoError(agg.SyntacticVerify())

	indices, err := agg.AttesterIndices()
	require.NoError(err)
	require.Equal([]uint64{0, 2, 5}, indices)

	// Zero-padding the bitset breaks the canonical encoding.
	agg.Attesters = append(agg.Attesters, 0x00)
	err = agg.SyntacticVerify()
	require.ErrorIs(err, ErrInvalidBitSet)

	// An empty bitset never aggregates anything.
	agg.Attesters = nil
	err = agg.SyntacticVerify()
	require.ErrorIs(err, errNoAttesters)
}

func TestSigningRootDomainSeparation(t *testing.T) {
	require := require.New(t)

	root := ids.GenerateTestID()
	block := SigningRoot(root, DomainBlock)
	att := SigningRoot(root, DomainAttestation)
	exit := SigningRoot(root, DomainExit)

	require.NotEqual(block, att)
	require.NotEqual(att, exit)
	require.NotEqual(block, exit)
	require.NotEqual(root, block)
}

func TestAttestationDataRootSharedByAttesters(t *testing.T) {
	require := require.New(t)

	data := AttestationData{
		Slot:   9,
		Target: Checkpoint{Root: ids.GenerateTestID(), Slot: 9},
		Source: Checkpoint{Root: ids.GenerateTestID(), Slot: 4},
	}

	a := &SignedAttestation{Attestation: Attestation{Attester: 1, Data: data}}
	b := &SignedAttestation{Attestation: Attestation{Attester: 2, Data: data}}

	rootA, err := a.Data.SigningRoot()
	require.NoError(err)
	rootB, err := b.Data.SigningRoot()
	require.NoError(err)
	require.Equal(rootA, rootB)
}

func TestSlotEpochMath(t *testing.T) {
	require := require.New(t)

	require.Equal(Epoch(0), Slot(0).Epoch())
	require.Equal(Epoch(0), Slot(SlotsPerEpoch-1).Epoch())
	require.Equal(Epoch(1), Slot(SlotsPerEpoch).Epoch())
	require.Equal(Slot(2*SlotsPerEpoch), Epoch(2).FirstSlot())
}

func TestValidatorIsActive(t *testing.T) {
	tests := []struct {
		name      string
		validator Validator
		epoch     Epoch
		active    bool
	}{
		{
			name:      "pending",
			validator: Validator{Status: StatusPending, ExitEpoch: FarFutureEpoch},
			epoch:     5,
			active:    false,
		},
		{
			name:      "active",
			validator: Validator{Status: StatusActive, ExitEpoch: FarFutureEpoch},
			epoch:     5,
			active:    true,
		},
		{
			name:      "not yet activated",
			validator: Validator{Status: StatusActive, ActivationEpoch: 8, ExitEpoch: FarFutureEpoch},
			epoch:     5,
			active:    false,
		},
		{
			name:      "exiting still active",
			validator: Validator{Status: StatusExiting, ExitEpoch: 10},
			epoch:     5,
			active:    true,
		},
		{
			name:      "exit epoch reached",
			validator: Validator{Status: StatusExiting, ExitEpoch: 5},
			epoch:     5,
			active:    false,
		},
		{
			name:      "exited",
			validator: Validator{Status: StatusExited, ExitEpoch: 3},
			epoch:     5,
			active:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.active, tt.validator.IsActive(tt.epoch))
		})
	}
}
