// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package duties computes the proposer and attester schedule. Everything here
// is a pure function of the epoch and a state snapshot, so two nodes holding
// the same state always derive the same schedule.
package duties

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/lean/core"
	"github.com/luxfi/lean/types"
)

var ErrNoActiveValidators = errors.New("no active validators")

// Duty is one slot's assignment for a single validator.
type Duty struct {
	Validator uint64
	Slot      types.Slot

	// Propose is set when the validator is the slot's proposer. Every
	// active validator also attests each slot, so an attest duty is
	// implied for all committee members.
	Propose bool

	// CommitteePosition is the validator's position in the epoch's
	// shuffled attester ordering.
	CommitteePosition int
}

// Proposer returns the validator scheduled to propose at [slot]. The
// schedule is round-robin over the registry, so a duty only exists when the
// scheduled validator is active at the slot's epoch.
func Proposer(state *core.State, slot types.Slot) (uint64, bool, error) {
	registry, err := state.Registry()
	if err != nil {
		return 0, false, err
	}
	if registry.Len() == 0 {
		return 0, false, ErrNoActiveValidators
	}
	index := state.Proposer(slot)
	return index, registry.IsActive(index, slot.Epoch()), nil
}

// Committee returns the active validator indices for [epoch] in shuffled
// order. The shuffle is a seeded Fisher-Yates over the ascending active set;
// it changes ordering only, since every active validator attests every slot.
func Committee(state *core.State, epoch types.Epoch) ([]uint64, error) {
	registry, err := state.Registry()
	if err != nil {
		return nil, err
	}
	active := registry.ActiveIndices(epoch)
	if len(active) == 0 {
		return nil, fmt.Errorf("%w: epoch %d", ErrNoActiveValidators, epoch)
	}

	shuffle(active, seed(state, epoch))
	return active, nil
}

// seed binds the shuffle to the chain's accumulated randomness and the epoch.
func seed(state *core.State, epoch types.Epoch) [32]byte {
	b := make([]byte, 0, len(state.RandaoMix)+8+len(types.DomainShuffle))
	b = append(b, state.RandaoMix[:]...)
	b = binary.BigEndian.AppendUint64(b, uint64(epoch))
	b = append(b, types.DomainShuffle[:]...)
	return sha256.Sum256(b)
}

// shuffle is a Fisher-Yates permutation driven by a sha256 counter stream.
// The stream yields 8-byte words; each word is reduced modulo the remaining
// range. The modulo bias is negligible for registry sizes and, more
// importantly, identical on every node.
func shuffle(indices []uint64, seed [32]byte) {
	stream := newSeedStream(seed)
	for i := len(indices) - 1; i > 0; i-- {
		j := int(stream.next() % uint64(i+1))
		indices[i], indices[j] = indices[j], indices[i]
	}
}

type seedStream struct {
	seed    [32]byte
	counter uint64
	block   [32]byte
	used    int
}

func newSeedStream(seed [32]byte) *seedStream {
	s := &seedStream{seed: seed}
	s.refill()
	return s
}

func (s *seedStream) refill() {
	b := make([]byte, 0, len(s.seed)+8)
	b = append(b, s.seed[:]...)
	b = binary.BigEndian.AppendUint64(b, s.counter)
	s.block = sha256.Sum256(b)
	s.counter++
	s.used = 0
}

func (s *seedStream) next() uint64 {
	if s.used+8 > len(s.block) {
		s.refill()
	}
	word := binary.BigEndian.Uint64(s.block[s.used:])
	s.used += 8
	return word
}

// SlotDuties lists every duty at [slot]: the proposer first (when active),
// then the shuffled attester committee.
func SlotDuties(state *core.State, slot types.Slot) ([]Duty, error) {
	committee, err := Committee(state, slot.Epoch())
	if err != nil {
		return nil, err
	}
	proposer, active, err := Proposer(state, slot)
	if err != nil {
		return nil, err
	}

	out := make([]Duty, 0, len(committee)+1)
	if active {
		out = append(out, Duty{Validator: proposer, Slot: slot, Propose: true})
	}
	for pos, index := range committee {
		out = append(out, Duty{
			Validator:         index,
			Slot:              slot,
			CommitteePosition: pos,
		})
	}
	return out, nil
}

// Schedule maps every slot of [epoch] to its duties.
func Schedule(state *core.State, epoch types.Epoch) (map[types.Slot][]Duty, error) {
	out := make(map[types.Slot][]Duty, types.SlotsPerEpoch)
	for slot := epoch.FirstSlot(); slot.Epoch() == epoch; slot++ {
		duties, err := SlotDuties(state, slot)
		if err != nil {
			return nil, err
		}
		out[slot] = duties
	}
	return out, nil
}

// DutiesFor filters [slot]'s duties down to the validators in [indices].
func DutiesFor(state *core.State, slot types.Slot, indices map[uint64]struct{}) ([]Duty, error) {
	all, err := SlotDuties(state, slot)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, d := range all {
		if _, ok := indices[d.Validator]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}
