// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package core is the pure state-transition engine: no clocks, no I/O, no
// locks. A Transition either returns a fresh post-state or an error; the
// parent state is never touched.
package core

import (
	"crypto/sha256"
	"encoding/binary"
	"slices"
	"sort"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/validators"
)

// Justification tracks which validators voted for one target checkpoint.
// Entries exist only for targets between the latest finalized checkpoint and
// the head, and are removed once the target justifies.
type Justification struct {
	Target types.Checkpoint `serialize:"true" json:"target"`

	// Votes is a set.Bits of validator indices, minimally encoded.
	Votes []byte `serialize:"true" json:"votes"`
}

// State is the post-state of a block. It is never mutated in place: every
// transition copies, then applies.
type State struct {
	Params Params     `serialize:"true" json:"params"`
	Slot   types.Slot `serialize:"true" json:"slot"`

	// LatestHeader is the header of the last applied block. Its StateRoot
	// stays empty until the next slot is processed, when it is filled with
	// this state's root.
	LatestHeader *types.BlockHeader `serialize:"true" json:"latestHeader"`

	LatestJustified types.Checkpoint `serialize:"true" json:"latestJustified"`
	LatestFinalized types.Checkpoint `serialize:"true" json:"latestFinalized"`

	// HistoricalRoots[i] is the root of the block at slot i, or ids.Empty
	// for an empty slot. A block's own root is appended when its first
	// child is applied, so the list always covers slots [0, LatestHeader.Slot).
	HistoricalRoots []ids.ID `serialize:"true" json:"historicalRoots"`

	// JustifiedSlots is a set.Bits of slots whose checkpoint justified.
	JustifiedSlots []byte `serialize:"true" json:"justifiedSlots"`

	Validators []*types.Validator `serialize:"true" json:"validators"`

	// RandaoMix accumulates per-slot randomness for the duty shuffle.
	RandaoMix ids.ID `serialize:"true" json:"randaoMix"`

	// Justifications is kept sorted by target root so identical vote sets
	// always serialize to identical bytes.
	Justifications []*Justification `serialize:"true" json:"justifications"`
}

// Root is the state's content root.
func (s *State) Root() (ids.ID, error) {
	return types.Root(s)
}

// Bytes is the state's codec serialization.
func (s *State) Bytes() ([]byte, error) {
	return types.Codec.Marshal(types.CodecVersion, s)
}

// ParseState inverts Bytes.
func ParseState(b []byte) (*State, error) {
	s := &State{}
	if _, err := types.Codec.Unmarshal(b, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Copy returns a deep copy. Validator records are shared: they are immutable
// by convention and replaced wholesale on change.
func (s *State) Copy() *State {
	cp := *s

	header := *s.LatestHeader
	cp.LatestHeader = &header

	cp.HistoricalRoots = slices.Clone(s.HistoricalRoots)
	cp.JustifiedSlots = slices.Clone(s.JustifiedSlots)
	cp.Validators = slices.Clone(s.Validators)

	cp.Justifications = make([]*Justification, len(s.Justifications))
	for i, j := range s.Justifications {
		jc := *j
		jc.Votes = slices.Clone(j.Votes)
		cp.Justifications[i] = &jc
	}
	return &cp
}

// Registry wraps the state's validator records.
func (s *State) Registry() (*validators.Registry, error) {
	return validators.NewRegistry(s.Validators)
}

// Proposer returns the scheduled proposer for [slot]: round robin over the
// full registry.
func (s *State) Proposer(slot types.Slot) uint64 {
	return uint64(slot) % uint64(len(s.Validators))
}

// HistoricalRoot returns the chain's block root at [slot], if recorded.
// Empty slots report ids.Empty and false.
func (s *State) HistoricalRoot(slot types.Slot) (ids.ID, bool) {
	if uint64(slot) >= uint64(len(s.HistoricalRoots)) {
		return ids.Empty, false
	}
	root := s.HistoricalRoots[slot]
	return root, root != ids.Empty
}

// IsJustifiedSlot reports whether [slot]'s checkpoint justified.
func (s *State) IsJustifiedSlot(slot types.Slot) bool {
	return set.BitsFromBytes(s.JustifiedSlots).Contains(int(slot))
}

func (s *State) markJustifiedSlot(slot types.Slot) {
	bits := set.BitsFromBytes(s.JustifiedSlots)
	bits.Add(int(slot))
	s.JustifiedSlots = bits.Bytes()
}

// justification returns the vote tracker for [target], creating it in root
// order if absent.
func (s *State) justification(target types.Checkpoint) *Justification {
	i := sort.Search(len(s.Justifications), func(i int) bool {
		return s.Justifications[i].Target.Root.Compare(target.Root) >= 0
	})
	if i < len(s.Justifications) && s.Justifications[i].Target.Root == target.Root {
		return s.Justifications[i]
	}

	j := &Justification{Target: target}
	s.Justifications = slices.Insert(s.Justifications, i, j)
	return j
}

func (s *State) dropJustification(root ids.ID) {
	i := sort.Search(len(s.Justifications), func(i int) bool {
		return s.Justifications[i].Target.Root.Compare(root) >= 0
	})
	if i < len(s.Justifications) && s.Justifications[i].Target.Root == root {
		s.Justifications = slices.Delete(s.Justifications, i, i+1)
	}
}

// rollRandao folds the new slot into the randomness accumulator.
func (s *State) rollRandao() {
	b := make([]byte, 0, len(s.RandaoMix)+8)
	b = append(b, s.RandaoMix[:]...)
	b = binary.BigEndian.AppendUint64(b, uint64(s.Slot))
	s.RandaoMix = ids.ID(sha256.Sum256(b))
}
