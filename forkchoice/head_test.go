// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package forkchoice

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/lean/types"
)

func TestSafeTargetAdvancesWithQuorum(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	s.Tick(1, types.IntervalPropose)
	b1 := c.build(t, s, c.genesisRoot, 1, nil)
	require.NoError(s.OnBlock(b1))
	b1Root := blockRoot(t, b1)

	// No votes yet: the safe target stays at the justified root.
	s.Tick(1, types.IntervalSafeTarget)
	require.Equal(c.genesisRoot, s.SafeTarget().Root)

	data := types.AttestationData{
		Slot:   1,
		Target: types.Checkpoint{Root: b1Root, Slot: 1},
		Source: types.Checkpoint{Root: c.genesisRoot, Slot: 0},
	}
	for i := uint64(0); i < 2; i++ {
		require.NoError(s.OnAttestation(c.attest(t, i, data), false))
	}
	s.Tick(1, types.IntervalAcceptVotes)

	// Two of three meets the two-thirds quorum exactly: 3*2 >= 2*3.
	s.Tick(2, types.IntervalSafeTarget)
	require.Equal(types.Checkpoint{Root: b1Root, Slot: 1}, s.SafeTarget())
}

func TestSafeTargetBelowQuorumStays(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	s.Tick(1, types.IntervalPropose)
	b1 := c.build(t, s, c.genesisRoot, 1, nil)
	require.NoError(s.OnBlock(b1))

	data := types.AttestationData{
		Slot:   1,
		Target: types.Checkpoint{Root: blockRoot(t, b1), Slot: 1},
		Source: types.Checkpoint{Root: c.genesisRoot, Slot: 0},
	}
	require.NoError(s.OnAttestation(c.attest(t, 0, data), false))
	s.Tick(1, types.IntervalAcceptVotes)

	s.Tick(2, types.IntervalSafeTarget)
	require.Equal(c.genesisRoot, s.SafeTarget().Root)
}

func TestAttestationTargetBacksOffFromHead(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	// Five empty blocks: head at slot 5, safe target still at genesis.
	parent := c.genesisRoot
	roots := []types.Checkpoint{{Root: c.genesisRoot, Slot: 0}}
	for slot := types.Slot(1); slot <= 5; slot++ {
		s.Tick(slot, types.IntervalPropose)
		sb := c.build(t, s, parent, slot, nil)
		require.NoError(s.OnBlock(sb))
		parent = blockRoot(t, sb)
		roots = append(roots, types.Checkpoint{Root: parent, Slot: slot})
	}
	require.Equal(roots[5], s.Head())

	// Three steps back from the head lands on slot 2, which is justifiable
	// relative to the finalized slot, so it is the vote target.
	require.Equal(roots[2], s.AttestationTarget())
}

func TestAttestationTargetStopsAtSafeTarget(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	s.Tick(1, types.IntervalPropose)
	b1 := c.build(t, s, c.genesisRoot, 1, nil)
	require.NoError(s.OnBlock(b1))
	b1Root := blockRoot(t, b1)

	data := types.AttestationData{
		Slot:   1,
		Target: types.Checkpoint{Root: b1Root, Slot: 1},
		Source: types.Checkpoint{Root: c.genesisRoot, Slot: 0},
	}
	for i := uint64(0); i < 3; i++ {
		require.NoError(s.OnAttestation(c.attest(t, i, data), false))
	}
	s.Tick(1, types.IntervalAcceptVotes)
	s.Tick(2, types.IntervalSafeTarget)
	require.Equal(types.Checkpoint{Root: b1Root, Slot: 1}, s.SafeTarget())

	s.Tick(2, types.IntervalPropose)
	b2 := c.build(t, s, b1Root, 2, nil)
	require.NoError(s.OnBlock(b2))

	// Head is one slot past the safe target: back off stops there rather
	// than walking all the way to genesis.
	require.Equal(types.Checkpoint{Root: b1Root, Slot: 1}, s.AttestationTarget())
}
