// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"fmt"
	"math/big"
	"runtime"

	"golang.org/x/sync/errgroup"

	safemath "github.com/luxfi/math"
	"github.com/luxfi/math/set"

	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/validators"
)

var (
	quorumNum = big.NewInt(3)
	quorumDen = big.NewInt(2)
)

// verifyAggregateSignatures checks every aggregate in [atts] concurrently.
// The reported error is always the one belonging to the lowest attestation
// index, so verification order never leaks into the result.
func verifyAggregateSignatures(registry *validators.Registry, atts []*types.AggregatedAttestation) error {
	errs := make([]error, len(atts))
	g := errgroup.Group{}
	g.SetLimit(runtime.NumCPU())
	for i, att := range atts {
		g.Go(func() error {
			errs[i] = verifyAggregate(registry, att)
			return nil
		})
	}
	_ = g.Wait()
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("attestation %d: %w", i, err)
		}
	}
	return nil
}

func verifyAggregate(registry *validators.Registry, att *types.AggregatedAttestation) error {
	indices, err := att.AttesterIndices()
	if err != nil {
		return err
	}
	pks := make([][leansig.PublicKeyLen]byte, len(indices))
	for i, index := range indices {
		vdr, ok := registry.Lookup(index)
		if !ok {
			return fmt.Errorf("%w: attester %d", validators.ErrUnknownValidator, index)
		}
		pks[i] = vdr.PublicKey
	}
	msg, err := att.Data.SigningRoot()
	if err != nil {
		return err
	}
	return leansig.AggregateVerify(pks, msg[:], att.Signature)
}

// processAttestation folds one aggregate into the justification tallies.
//
// Every attester must be registered; beyond that a vote that fails any of
// the counting conditions is simply skipped rather than rejected, because a
// proposer may legitimately package votes collected before the justified
// checkpoint moved.
func processAttestation(s *State, registry *validators.Registry, att *types.AggregatedAttestation) error {
	indices, err := att.AttesterIndices()
	if err != nil {
		return err
	}
	for _, index := range indices {
		if _, ok := registry.Lookup(index); !ok {
			return fmt.Errorf("%w: attester %d", validators.ErrUnknownValidator, index)
		}
	}

	data := att.Data
	if data.Source != s.LatestJustified {
		return nil
	}
	if data.Target.Slot <= data.Source.Slot {
		return nil
	}
	if s.IsJustifiedSlot(data.Target.Slot) {
		return nil
	}
	if !IsJustifiableSlot(s.LatestFinalized.Slot, data.Target.Slot) {
		return nil
	}
	root, ok := s.HistoricalRoot(data.Target.Slot)
	if !ok || root != data.Target.Root {
		return nil
	}

	// Exited and pending weight never counts toward a quorum. Without at
	// least one active attester there is nothing to tally, and no entry
	// is opened for the target.
	epoch := s.Slot.Epoch()
	var active []uint64
	for _, index := range indices {
		if registry.IsActive(index, epoch) {
			active = append(active, index)
		}
	}
	if len(active) == 0 {
		return nil
	}

	j := s.justification(data.Target)
	votes := set.BitsFromBytes(j.Votes)
	changed := false
	for _, index := range active {
		if votes.Contains(int(index)) {
			continue
		}
		votes.Add(int(index))
		changed = true
	}
	if !changed {
		return nil
	}
	j.Votes = votes.Bytes()

	weight, err := votedBalance(registry, votes, epoch)
	if err != nil {
		return err
	}
	total, err := registry.ActiveBalance(epoch)
	if err != nil {
		return err
	}
	if meetsQuorum(weight, total) {
		s.justify(data.Target)
	}
	return nil
}

func votedBalance(registry *validators.Registry, votes set.Bits, epoch types.Epoch) (uint64, error) {
	var (
		weight uint64
		err    error
	)
	for index := 0; index < votes.BitLen(); index++ {
		if !votes.Contains(index) {
			continue
		}
		if !registry.IsActive(uint64(index), epoch) {
			continue
		}
		balance, ok := registry.EffectiveBalance(uint64(index))
		if !ok {
			continue
		}
		weight, err = safemath.Add(weight, balance)
		if err != nil {
			return 0, err
		}
	}
	return weight, nil
}

// meetsQuorum reports whether 3*weight >= 2*total without overflowing.
func meetsQuorum(weight, total uint64) bool {
	scaledWeight := new(big.Int).SetUint64(weight)
	scaledWeight.Mul(scaledWeight, quorumNum)
	scaledTotal := new(big.Int).SetUint64(total)
	scaledTotal.Mul(scaledTotal, quorumDen)
	return scaledWeight.Cmp(scaledTotal) >= 0
}

// justify promotes [target] to a justified checkpoint and, when the target
// sits at the next justifiable slot after its source, finalizes the source.
func (s *State) justify(target types.Checkpoint) {
	source := s.LatestJustified

	s.markJustifiedSlot(target.Slot)
	s.dropJustification(target.Root)
	if target.Slot > s.LatestJustified.Slot {
		s.LatestJustified = target
	}
	if NextJustifiableSlot(s.LatestFinalized.Slot, source.Slot) == target.Slot {
		s.LatestFinalized = source
	}
}

