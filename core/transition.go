// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/validators"
)

var (
	ErrStaleSlot          = errors.New("block slot not after state slot")
	ErrWrongProposer      = errors.New("wrong proposer")
	ErrInactiveProposer   = errors.New("scheduled proposer inactive")
	ErrBadSignature       = errors.New("bad signature")
	ErrParentRootMismatch = errors.New("parent root mismatch")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrStateRootMismatch  = errors.New("state root mismatch")
)

// Transition applies [sb] on top of [parent] and returns the post-state.
// Gates run in a fixed order and the first failure decides the error; a
// rejected block leaves no partial effects. With [verifySigs] false the
// proposer, attestation and exit signatures are assumed valid; that path is
// for blocks this node assembled itself.
//
// Identical (parent, block) inputs always produce codec-identical states.
func Transition(parent *State, sb *types.SignedBlock, verifySigs bool) (*State, error) {
	if err := sb.SyntacticVerify(); err != nil {
		return nil, err
	}
	block := sb.Block

	s := parent.Copy()
	if err := ProcessSlots(s, block.Slot); err != nil {
		return nil, err
	}
	if err := processBlock(s, sb, verifySigs); err != nil {
		return nil, err
	}

	root, err := s.Root()
	if err != nil {
		return nil, err
	}
	if root != block.StateRoot {
		return nil, fmt.Errorf("%w: computed %s, block carries %s",
			ErrStateRootMismatch, root, block.StateRoot)
	}
	return s, nil
}

// ProcessSlots advances [s] to [slot] without applying a block: pending
// header roots are filled, randomness rolls, and registry lifecycle
// transitions run at epoch boundaries.
func ProcessSlots(s *State, slot types.Slot) error {
	if slot <= s.Slot {
		return fmt.Errorf("%w: state at slot %d, block for slot %d",
			ErrStaleSlot, s.Slot, slot)
	}

	for s.Slot < slot {
		// The header of the last applied block carries the root of the
		// state as it stood at the end of its slot.
		if s.LatestHeader.StateRoot == ids.Empty {
			root, err := s.Root()
			if err != nil {
				return err
			}
			s.LatestHeader.StateRoot = root
		}

		s.Slot++
		s.rollRandao()

		if uint64(s.Slot)%types.SlotsPerEpoch == 0 {
			if err := s.advanceRegistry(s.Slot.Epoch()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *State) advanceRegistry(epoch types.Epoch) error {
	registry, err := s.Registry()
	if err != nil {
		return err
	}
	s.Validators = registry.AdvanceEpoch(epoch).Validators()
	return nil
}

func processBlock(s *State, sb *types.SignedBlock, verifySigs bool) error {
	block := sb.Block
	registry, err := s.Registry()
	if err != nil {
		return err
	}
	epoch := s.Slot.Epoch()

	scheduled := s.Proposer(block.Slot)
	if block.Proposer != scheduled {
		return fmt.Errorf("%w: block names %d, schedule names %d",
			ErrWrongProposer, block.Proposer, scheduled)
	}
	if !registry.IsActive(scheduled, epoch) {
		return fmt.Errorf("%w: proposer %d at epoch %d",
			ErrInactiveProposer, scheduled, epoch)
	}

	if verifySigs {
		if err := verifyBlockSignature(registry, sb); err != nil {
			return err
		}
	}

	if err := processHeader(s, block); err != nil {
		return err
	}
	return processOperations(s, registry, block.Body, verifySigs)
}

func verifyBlockSignature(registry *validators.Registry, sb *types.SignedBlock) error {
	vdr, ok := registry.Lookup(sb.Block.Proposer)
	if !ok {
		return fmt.Errorf("%w: proposer %d", validators.ErrUnknownValidator, sb.Block.Proposer)
	}
	msg, err := sb.Block.SigningRoot()
	if err != nil {
		return err
	}
	if err := leansig.Verify(vdr.PublicKey[:], msg[:], sb.Signature[:]); err != nil {
		return fmt.Errorf("%w: proposer %d: %w", ErrBadSignature, sb.Block.Proposer, err)
	}
	return nil
}

func processHeader(s *State, block *types.Block) error {
	parentRoot, err := s.LatestHeader.Root()
	if err != nil {
		return err
	}
	if block.ParentRoot != parentRoot {
		return fmt.Errorf("%w: block links %s, chain tip is %s",
			ErrParentRootMismatch, block.ParentRoot, parentRoot)
	}

	parentSlot := s.LatestHeader.Slot

	// The first block on top of genesis makes the genesis checkpoint both
	// justified and finalized; before that the checkpoints are zero.
	if parentSlot == 0 {
		genesis := types.Checkpoint{Root: parentRoot, Slot: 0}
		s.LatestJustified = genesis
		s.LatestFinalized = genesis
		s.markJustifiedSlot(0)
	}

	// Record the parent's root, zero-filling the empty slots between the
	// parent and this block.
	s.HistoricalRoots = append(s.HistoricalRoots, parentRoot)
	for slot := parentSlot + 1; slot < block.Slot; slot++ {
		s.HistoricalRoots = append(s.HistoricalRoots, ids.Empty)
	}

	bodyRoot, err := block.Body.Root()
	if err != nil {
		return err
	}
	s.LatestHeader = &types.BlockHeader{
		Slot:       block.Slot,
		Proposer:   block.Proposer,
		ParentRoot: block.ParentRoot,
		// StateRoot stays empty until the next slot is processed.
		BodyRoot: bodyRoot,
	}
	return nil
}

func processOperations(s *State, registry *validators.Registry, body *types.BlockBody, verifySigs bool) error {
	if len(body.Attestations) > int(s.Params.MaxAttestationsPerBlock) {
		return fmt.Errorf("%w: %d attestations exceed the cap of %d",
			ErrInvalidOperation, len(body.Attestations), s.Params.MaxAttestationsPerBlock)
	}
	if len(body.Exits) > int(s.Params.MaxExitsPerBlock) {
		return fmt.Errorf("%w: %d exits exceed the cap of %d",
			ErrInvalidOperation, len(body.Exits), s.Params.MaxExitsPerBlock)
	}

	if verifySigs {
		if err := verifyAggregateSignatures(registry, body.Attestations); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
		}
	}
	for i, att := range body.Attestations {
		if err := processAttestation(s, registry, att); err != nil {
			return fmt.Errorf("%w: attestation %d: %w", ErrInvalidOperation, i, err)
		}
	}

	rules := s.Params.ExitRules()
	epoch := s.Slot.Epoch()
	for i, exit := range body.Exits {
		if verifySigs {
			if err := verifyExitSignature(registry, exit); err != nil {
				return fmt.Errorf("%w: exit %d: %w", ErrInvalidOperation, i, err)
			}
		}
		next, err := registry.ApplyExit(&exit.VoluntaryExit, epoch, rules)
		if err != nil {
			return fmt.Errorf("%w: exit %d: %w", ErrInvalidOperation, i, err)
		}
		registry = next
	}
	s.Validators = registry.Validators()
	return nil
}

func verifyExitSignature(registry *validators.Registry, exit *types.SignedVoluntaryExit) error {
	vdr, ok := registry.Lookup(exit.ValidatorIndex)
	if !ok {
		return fmt.Errorf("%w: index %d", validators.ErrUnknownValidator, exit.ValidatorIndex)
	}
	msg, err := exit.SigningRoot()
	if err != nil {
		return err
	}
	if err := leansig.Verify(vdr.PublicKey[:], msg[:], exit.Signature[:]); err != nil {
		return fmt.Errorf("%w: validator %d: %w", ErrBadSignature, exit.ValidatorIndex, err)
	}
	return nil
}
