// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package forkchoice

import (
	"bytes"
	"cmp"
	"math/big"
	"slices"

	"github.com/luxfi/ids"
	safemath "github.com/luxfi/math"

	"github.com/luxfi/lean/core"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/validators"
)

var (
	quorumNum = big.NewInt(3)
	quorumDen = big.NewInt(2)
)

// recomputeHead runs weighted child selection from the latest justified
// root. Every latest known vote adds its validator's effective balance to
// the vote's target and all of the target's ancestors; at each step the
// child with the strictly greatest weight wins, ties go to the greater
// slot, and remaining ties to the lexicographically smallest root. The
// rule is identical on every node, which is what makes heads converge.
func (s *Store) recomputeHead() error {
	registry, epoch, err := s.weighingRegistry()
	if err != nil {
		return err
	}
	weights, err := s.voteWeights(registry, epoch)
	if err != nil {
		return err
	}

	root := s.justified.Root
	for {
		children := s.children[root]
		if len(children) == 0 {
			break
		}
		best := children[0]
		for _, child := range children[1:] {
			if s.better(child, best, weights) {
				best = child
			}
		}
		root = best
	}

	if root != s.head.Root {
		s.head = types.Checkpoint{Root: root, Slot: s.nodes[root].slot}
		s.m.SetHead(s.head.Slot)
		s.m.MarkHeadChange()
	}
	return nil
}

func (s *Store) better(a, b ids.ID, weights map[ids.ID]uint64) bool {
	wa, wb := weights[a], weights[b]
	if wa != wb {
		return wa > wb
	}
	sa, sb := s.nodes[a].slot, s.nodes[b].slot
	if sa != sb {
		return sa > sb
	}
	return bytes.Compare(a[:], b[:]) < 0
}

// weighingRegistry is the validator set votes are weighed against: the
// registry of the justified state, at the epoch of the local clock.
func (s *Store) weighingRegistry() (*validators.Registry, types.Epoch, error) {
	justifiedState, err := s.db.GetState(s.justified.Root)
	if err != nil {
		return nil, 0, err
	}
	registry, err := justifiedState.Registry()
	if err != nil {
		return nil, 0, err
	}
	epoch := s.currentSlot.Epoch()
	if justifiedState.Slot.Epoch() > epoch {
		epoch = justifiedState.Slot.Epoch()
	}
	return registry, epoch, nil
}

// voteWeights accumulates each known vote's effective balance onto the
// vote's target and every ancestor up to the justified root.
func (s *Store) voteWeights(registry *validators.Registry, epoch types.Epoch) (map[ids.ID]uint64, error) {
	weights := make(map[ids.ID]uint64, len(s.nodes))
	for index, v := range s.latestKnown {
		if !registry.IsActive(index, epoch) {
			continue
		}
		balance, ok := registry.EffectiveBalance(index)
		if !ok {
			continue
		}

		root := v.data.Target.Root
		for {
			n, ok := s.nodes[root]
			if !ok {
				break
			}
			sum, err := safemath.Add(weights[root], balance)
			if err != nil {
				return nil, err
			}
			weights[root] = sum
			if root == s.justified.Root {
				break
			}
			root = n.parent
		}
	}
	return weights, nil
}

// updateSafeTarget walks from the justified root to the deepest descendant
// every hop of which is backed by a vote-weight supermajority. Attesting
// there is safe: a checkpoint with that much support cannot be abandoned
// without equivocation.
func (s *Store) updateSafeTarget() error {
	registry, epoch, err := s.weighingRegistry()
	if err != nil {
		return err
	}
	total, err := registry.ActiveBalance(epoch)
	if err != nil {
		return err
	}
	weights, err := s.voteWeights(registry, epoch)
	if err != nil {
		return err
	}

	root := s.justified.Root
	for {
		advanced := false
		for _, child := range s.children[root] {
			if meetsQuorum(weights[child], total) {
				root = child
				advanced = true
				break
			}
		}
		if !advanced {
			break
		}
	}

	s.safeTarget = types.Checkpoint{Root: root, Slot: s.nodes[root].slot}
	return nil
}

// meetsQuorum reports whether 3*weight >= 2*total without overflowing.
func meetsQuorum(weight, total uint64) bool {
	scaledWeight := new(big.Int).SetUint64(weight)
	scaledWeight.Mul(scaledWeight, quorumNum)
	scaledTotal := new(big.Int).SetUint64(total)
	scaledTotal.Mul(scaledTotal, quorumDen)
	return scaledWeight.Cmp(scaledTotal) >= 0
}

// AttestationTarget picks the checkpoint a fresh attestation should vote
// for: starting at the head, back off at most three steps toward the safe
// target, then continue to the nearest justifiable slot so the vote can
// actually count toward justification.
func (s *Store) AttestationTarget() types.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.nodes[s.head.Root]
	for i := 0; i < 3 && n.slot > s.safeTarget.Slot; i++ {
		parent, ok := s.nodes[n.parent]
		if !ok {
			break
		}
		n = parent
	}
	for !core.IsJustifiableSlot(s.finalized.Slot, n.slot) {
		parent, ok := s.nodes[n.parent]
		if !ok {
			break
		}
		n = parent
	}
	return types.Checkpoint{Root: n.root, Slot: n.slot}
}

// ForkNode is one block-tree entry with its accumulated vote weight.
type ForkNode struct {
	Root   ids.ID
	Parent ids.ID
	Slot   types.Slot
	Weight uint64
	Head   bool
}

// ForkNodes snapshots the block tree with current vote weights, ordered by
// slot then root. The view serves diagnostics; fork choice itself never
// reads it.
func (s *Store) ForkNodes() ([]ForkNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	registry, epoch, err := s.weighingRegistry()
	if err != nil {
		return nil, err
	}
	weights, err := s.voteWeights(registry, epoch)
	if err != nil {
		return nil, err
	}

	out := make([]ForkNode, 0, len(s.nodes))
	for root, n := range s.nodes {
		out = append(out, ForkNode{
			Root:   root,
			Parent: n.parent,
			Slot:   n.slot,
			Weight: weights[root],
			Head:   root == s.head.Root,
		})
	}
	slices.SortFunc(out, func(a, b ForkNode) int {
		if a.Slot != b.Slot {
			return cmp.Compare(a.Slot, b.Slot)
		}
		return bytes.Compare(a.Root[:], b.Root[:])
	})
	return out, nil
}
