// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package forkchoice

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/lean/types"
)

func TestGenesisHead(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	anchor := types.Checkpoint{Root: c.genesisRoot, Slot: 0}
	require.Equal(anchor, s.Head())
	require.Equal(anchor, s.Justified())
	require.Equal(anchor, s.Finalized())

	s.Tick(1, types.IntervalPropose)
	b1 := c.build(t, s, c.genesisRoot, 1, nil)
	require.NoError(s.OnBlock(b1))

	require.Equal(blockRoot(t, b1), s.Head().Root)
	require.Equal(types.Slot(1), s.Head().Slot)
}

func TestDuplicateBlockIsNoOp(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	s.Tick(1, types.IntervalPropose)
	b1 := c.build(t, s, c.genesisRoot, 1, nil)
	require.NoError(s.OnBlock(b1))
	require.NoError(s.OnBlock(b1))
	require.Equal(blockRoot(t, b1), s.Head().Root)
}

func TestUnknownParentBufferedAndRetried(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	// Assemble b1 and b2 against a shadow store, then deliver out of order.
	shadow := c.newStore(t)
	shadow.Tick(2, types.IntervalPropose)
	b1 := c.build(t, shadow, c.genesisRoot, 1, nil)
	require.NoError(shadow.OnBlock(b1))
	b2 := c.build(t, shadow, blockRoot(t, b1), 2, nil)

	s.Tick(2, types.IntervalPropose)
	err := s.OnBlock(b2)
	require.ErrorIs(err, ErrUnknownParent)
	require.False(s.HasBlock(blockRoot(t, b2)))

	// The parent's arrival drains the buffer.
	require.NoError(s.OnBlock(b1))
	require.True(s.HasBlock(blockRoot(t, b2)))
	require.Equal(blockRoot(t, b2), s.Head().Root)
}

func TestFutureBlockRefused(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	shadow := c.newStore(t)
	shadow.Tick(1, types.IntervalPropose)
	b1 := c.build(t, shadow, c.genesisRoot, 1, nil)

	// Local clock still at slot 0: one slot of drift is tolerated.
	require.NoError(s.OnBlock(b1))

	shadow2 := c.newStore(t)
	shadow2.Tick(3, types.IntervalPropose)
	b3 := c.build(t, shadow2, c.genesisRoot, 3, nil)
	err := s.OnBlock(b3)
	require.ErrorIs(err, ErrFutureSlot)
}

func TestUnknownTargetBufferedAndRetried(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	shadow := c.newStore(t)
	shadow.Tick(1, types.IntervalPropose)
	b1 := c.build(t, shadow, c.genesisRoot, 1, nil)
	b1Root := blockRoot(t, b1)

	att := c.attest(t, 0, types.AttestationData{
		Slot:   1,
		Target: types.Checkpoint{Root: b1Root, Slot: 1},
		Source: types.Checkpoint{Root: c.genesisRoot, Slot: 0},
	})

	s.Tick(1, types.IntervalPropose)
	err := s.OnAttestation(att, false)
	require.ErrorIs(err, ErrUnknownTarget)

	// Once the target block lands, the buffered vote applies and shows up
	// in the new-vote set, then moves the head after the accept interval.
	require.NoError(s.OnBlock(b1))
	s.Tick(1, types.IntervalAcceptVotes)
	require.Equal(b1Root, s.Head().Root)

	votes := s.CollectVotes(types.Checkpoint{Root: c.genesisRoot, Slot: 0})
	require.Len(votes, 1)
	require.Equal(uint64(0), votes[0].Attester)
}

func TestFutureAttestationBufferedUntilTick(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	s.Tick(1, types.IntervalPropose)
	b1 := c.build(t, s, c.genesisRoot, 1, nil)
	require.NoError(s.OnBlock(b1))

	att := c.attest(t, 1, types.AttestationData{
		Slot:   2,
		Target: types.Checkpoint{Root: blockRoot(t, b1), Slot: 1},
		Source: types.Checkpoint{Root: c.genesisRoot, Slot: 0},
	})
	err := s.OnAttestation(att, false)
	require.ErrorIs(err, ErrFutureSlot)

	// The slot's tick replays the buffered vote.
	s.Tick(2, types.IntervalPropose)
	s.mu.RLock()
	_, buffered := s.latestNew[1]
	s.mu.RUnlock()
	require.True(buffered)
}

func TestSiblingWeights(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 5)
	s := c.newStore(t)

	s.Tick(2, types.IntervalPropose)
	b1 := c.build(t, s, c.genesisRoot, 1, nil)
	require.NoError(s.OnBlock(b1))
	b1Root := blockRoot(t, b1)

	// Two competing children of b1 at slot 2. The sibling is forged from
	// the honest block by changing its vote payload, re-deriving the state
	// root against the same parent.
	b2a := c.build(t, s, b1Root, 2, nil)
	b2b := c.build(t, s, b1Root, 2, []*types.SignedAttestation{
		c.attest(t, 0, types.AttestationData{
			Slot:   1,
			Target: types.Checkpoint{Root: b1Root, Slot: 1},
			Source: types.Checkpoint{Root: c.genesisRoot, Slot: 0},
		}),
	})
	require.NoError(s.OnBlock(b2a))
	require.NoError(s.OnBlock(b2b))
	rootA := blockRoot(t, b2a)
	rootB := blockRoot(t, b2b)
	require.NotEqual(rootA, rootB)

	// Three of five validators back A, two back B: A wins.
	voteFor := func(attester uint64, root types.Checkpoint) {
		att := c.attest(t, attester, types.AttestationData{
			Slot:   2,
			Target: root,
			Source: types.Checkpoint{Root: c.genesisRoot, Slot: 0},
		})
		require.NoError(s.OnAttestation(att, false))
	}
	cpA := types.Checkpoint{Root: rootA, Slot: 2}
	cpB := types.Checkpoint{Root: rootB, Slot: 2}
	voteFor(0, cpA)
	voteFor(1, cpA)
	voteFor(2, cpA)
	voteFor(3, cpB)
	voteFor(4, cpB)

	s.Tick(2, types.IntervalAcceptVotes)
	require.Equal(rootA, s.Head().Root)
}

func TestTieBreakSmallestRoot(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 5)

	build := func() (*types.SignedBlock, *types.SignedBlock, *types.SignedBlock) {
		s := c.newStore(t)
		s.Tick(2, types.IntervalPropose)
		b1 := c.build(t, s, c.genesisRoot, 1, nil)
		require.NoError(s.OnBlock(b1))
		b2a := c.build(t, s, blockRoot(t, b1), 2, nil)
		b2b := c.build(t, s, blockRoot(t, b1), 2, []*types.SignedAttestation{
			c.attest(t, 0, types.AttestationData{
				Slot:   1,
				Target: types.Checkpoint{Root: blockRoot(t, b1), Slot: 1},
				Source: types.Checkpoint{Root: c.genesisRoot, Slot: 0},
			}),
		})
		return b1, b2a, b2b
	}

	b1, b2a, b2b := build()
	rootA := blockRoot(t, b2a)
	rootB := blockRoot(t, b2b)
	smaller := rootA
	if bytes.Compare(rootB[:], rootA[:]) < 0 {
		smaller = rootB
	}

	// Same zero weight on both siblings: the lexicographically smaller
	// root wins no matter the arrival order.
	for _, order := range [][]*types.SignedBlock{
		{b2a, b2b},
		{b2b, b2a},
	} {
		s := c.newStore(t)
		s.Tick(2, types.IntervalPropose)
		require.NoError(s.OnBlock(b1))
		for _, sb := range order {
			require.NoError(s.OnBlock(sb))
		}
		require.Equal(smaller, s.Head().Root)
	}
}

func TestConvergenceAcrossDeliveryOrders(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)

	shadow := c.newStore(t)
	shadow.Tick(3, types.IntervalPropose)
	b1 := c.build(t, shadow, c.genesisRoot, 1, nil)
	require.NoError(shadow.OnBlock(b1))
	b2 := c.build(t, shadow, blockRoot(t, b1), 2, nil)
	require.NoError(shadow.OnBlock(b2))
	b3 := c.build(t, shadow, blockRoot(t, b2), 3, nil)

	orders := [][]*types.SignedBlock{
		{b1, b2, b3},
		{b3, b2, b1},
		{b2, b3, b1},
	}
	for _, order := range orders {
		s := c.newStore(t)
		s.Tick(3, types.IntervalPropose)
		for _, sb := range order {
			_ = s.OnBlock(sb) // unknown-parent errors expected mid-order
		}
		require.Equal(blockRoot(t, b3), s.Head().Root)
	}
}

func TestFinalizationPrunes(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	s.Tick(2, types.IntervalPropose)
	b1 := c.build(t, s, c.genesisRoot, 1, nil)
	require.NoError(s.OnBlock(b1))
	b1Root := blockRoot(t, b1)

	votes1 := []*types.SignedAttestation{}
	data1 := types.AttestationData{
		Slot:   1,
		Target: types.Checkpoint{Root: b1Root, Slot: 1},
		Source: types.Checkpoint{Root: c.genesisRoot, Slot: 0},
	}
	for i := uint64(0); i < 3; i++ {
		votes1 = append(votes1, c.attest(t, i, data1))
	}
	b2 := c.build(t, s, b1Root, 2, votes1)
	require.NoError(s.OnBlock(b2))
	b2Root := blockRoot(t, b2)
	require.Equal(types.Checkpoint{Root: b1Root, Slot: 1}, s.Justified())

	// A competing empty sibling of b2 that finalization must sweep away.
	b2x := c.build(t, s, b1Root, 2, nil)
	require.NoError(s.OnBlock(b2x))
	b2xRoot := blockRoot(t, b2x)
	require.True(s.HasBlock(b2xRoot))

	s.Tick(3, types.IntervalPropose)
	data2 := types.AttestationData{
		Slot:   2,
		Target: types.Checkpoint{Root: b2Root, Slot: 2},
		Source: types.Checkpoint{Root: b1Root, Slot: 1},
	}
	votes2 := []*types.SignedAttestation{}
	for i := uint64(0); i < 3; i++ {
		votes2 = append(votes2, c.attest(t, i, data2))
	}
	b3 := c.build(t, s, b2Root, 3, votes2)
	require.NoError(s.OnBlock(b3))
	b3Root := blockRoot(t, b3)
	require.Equal(types.Checkpoint{Root: b2Root, Slot: 2}, s.Justified())
	require.Equal(types.Checkpoint{Root: b1Root, Slot: 1}, s.Finalized())

	s.Tick(4, types.IntervalPropose)
	data3 := types.AttestationData{
		Slot:   3,
		Target: types.Checkpoint{Root: b3Root, Slot: 3},
		Source: types.Checkpoint{Root: b2Root, Slot: 2},
	}
	votes3 := []*types.SignedAttestation{}
	for i := uint64(0); i < 3; i++ {
		votes3 = append(votes3, c.attest(t, i, data3))
	}
	b4 := c.build(t, s, b3Root, 4, votes3)
	require.NoError(s.OnBlock(b4))
	require.Equal(types.Checkpoint{Root: b2Root, Slot: 2}, s.Finalized())

	// b2x did not descend from the finalized root: gone, and so is the
	// genesis branch above it.
	require.False(s.HasBlock(b2xRoot))
	require.False(s.HasBlock(b1Root))
	require.False(s.HasBlock(c.genesisRoot))
	require.True(s.HasBlock(b2Root))
	require.True(s.HasBlock(blockRoot(t, b4)))
	require.Equal(blockRoot(t, b4), s.Head().Root)
}

func TestRestartReplaysTree(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	s.Tick(2, types.IntervalPropose)
	b1 := c.build(t, s, c.genesisRoot, 1, nil)
	require.NoError(s.OnBlock(b1))
	b2 := c.build(t, s, blockRoot(t, b1), 2, nil)
	require.NoError(s.OnBlock(b2))

	// Reopen over the same database: the tree and head come back.
	reopened, err := New(s.log, testConfig, s.db, s.m, c.genesis)
	require.NoError(err)
	require.True(reopened.HasBlock(blockRoot(t, b1)))
	require.True(reopened.HasBlock(blockRoot(t, b2)))
	require.Equal(blockRoot(t, b2), reopened.Head().Root)
	require.Equal(s.Justified(), reopened.Justified())
	require.Equal(s.Finalized(), reopened.Finalized())
}

func TestBlockAtSlot(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, 3)
	s := c.newStore(t)

	s.Tick(3, types.IntervalPropose)
	b1 := c.build(t, s, c.genesisRoot, 1, nil)
	require.NoError(s.OnBlock(b1))
	b3 := c.build(t, s, blockRoot(t, b1), 3, nil)
	require.NoError(s.OnBlock(b3))

	root, ok := s.BlockAtSlot(1)
	require.True(ok)
	require.Equal(blockRoot(t, b1), root)

	_, ok = s.BlockAtSlot(2)
	require.False(ok)

	root, ok = s.BlockAtSlot(3)
	require.True(ok)
	require.Equal(blockRoot(t, b3), root)
}
