// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
	"github.com/luxfi/utils"

	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/validators"
)

// BuildBlock assembles an unsigned block for [slot] on top of [parent].
//
// Votes are aggregated per identical attestation data and exits are
// dry-run against the advancing registry, so anything that no longer
// applies is dropped rather than invalidating the block. The returned
// block already carries its post-state root; the caller only signs it.
func BuildBlock(
	parent *State,
	slot types.Slot,
	votes []*types.SignedAttestation,
	exits []*types.SignedVoluntaryExit,
) (*types.Block, error) {
	s := parent.Copy()
	if err := ProcessSlots(s, slot); err != nil {
		return nil, err
	}
	registry, err := s.Registry()
	if err != nil {
		return nil, err
	}
	epoch := s.Slot.Epoch()

	proposer := s.Proposer(slot)
	if !registry.IsActive(proposer, epoch) {
		return nil, fmt.Errorf("%w: proposer %d at epoch %d",
			ErrInactiveProposer, proposer, epoch)
	}
	parentRoot, err := s.LatestHeader.Root()
	if err != nil {
		return nil, err
	}

	aggregated, err := aggregateVotes(registry, votes, int(s.Params.MaxAttestationsPerBlock))
	if err != nil {
		return nil, err
	}
	block := &types.Block{
		Slot:       slot,
		Proposer:   proposer,
		ParentRoot: parentRoot,
		Body: &types.BlockBody{
			Attestations: aggregated,
			Exits:        selectExits(registry, exits, epoch, s.Params.ExitRules(), int(s.Params.MaxExitsPerBlock)),
		},
	}

	// Fill in the state root by applying the block to the copy.
	if err := processBlock(s, &types.SignedBlock{Block: block}, false); err != nil {
		return nil, err
	}
	root, err := s.Root()
	if err != nil {
		return nil, err
	}
	block.StateRoot = root
	return block, nil
}

type voteGroup struct {
	data types.AttestationData
	bits set.Bits
	sigs [][leansig.SignatureLen]byte
}

// aggregateVotes groups [votes] by attestation data and merges each group
// into one aggregate. Groups are emitted in data-root order so the same
// inputs always yield the same body.
func aggregateVotes(
	registry *validators.Registry,
	votes []*types.SignedAttestation,
	max int,
) ([]*types.AggregatedAttestation, error) {
	groups := make(map[ids.ID]*voteGroup)
	for _, vote := range votes {
		if _, ok := registry.Lookup(vote.Attester); !ok {
			continue
		}
		root, err := vote.Data.Root()
		if err != nil {
			return nil, err
		}
		group, ok := groups[root]
		if !ok {
			group = &voteGroup{
				data: vote.Data,
				bits: set.NewBits(),
			}
			groups[root] = group
		}
		if group.bits.Contains(int(vote.Attester)) {
			continue
		}
		group.bits.Add(int(vote.Attester))
		group.sigs = append(group.sigs, vote.Signature)
	}

	roots := make([]ids.ID, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	utils.Sort(roots)
	if len(roots) > max {
		roots = roots[:max]
	}

	aggregated := make([]*types.AggregatedAttestation, len(roots))
	for i, root := range roots {
		group := groups[root]
		sig, err := leansig.AggregateSignatures(group.sigs)
		if err != nil {
			return nil, err
		}
		aggregated[i] = &types.AggregatedAttestation{
			Attesters: group.bits.Bytes(),
			Data:      group.data,
			Signature: sig,
		}
	}
	return aggregated, nil
}

// selectExits keeps the prefix of [exits] that still applies when executed
// in order against [registry].
func selectExits(
	registry *validators.Registry,
	exits []*types.SignedVoluntaryExit,
	epoch types.Epoch,
	rules validators.Rules,
	max int,
) []*types.SignedVoluntaryExit {
	var picked []*types.SignedVoluntaryExit
	for _, exit := range exits {
		if len(picked) == max {
			break
		}
		next, err := registry.ApplyExit(&exit.VoluntaryExit, epoch, rules)
		if err != nil {
			continue
		}
		registry = next
		picked = append(picked, exit)
	}
	return picked
}
