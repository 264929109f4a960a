// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"context"

	validatorstate "github.com/luxfi/consensus/validator"
	"github.com/luxfi/ids"

	"github.com/luxfi/lean/types"
)

// Source supplies the snapshot the networking layer samples peers from.
type Source interface {
	// Registry returns the current snapshot and the slot it reflects.
	Registry() (*Registry, types.Slot)
}

// State adapts a registry Source to the consensus validator state surface
// used for peer sampling. Heights are slots. Only the current snapshot is
// served; staleness is handled by the sampler's refresh policy.
type State struct {
	netID  ids.ID
	source Source
}

func NewState(netID ids.ID, source Source) *State {
	return &State{
		netID:  netID,
		source: source,
	}
}

func (s *State) GetMinimumHeight(ctx context.Context) (uint64, error) {
	return s.GetCurrentHeight(ctx)
}

func (s *State) GetCurrentHeight(context.Context) (uint64, error) {
	_, slot := s.source.Registry()
	return uint64(slot), nil
}

func (s *State) GetNetID(context.Context, ids.ID) (ids.ID, error) {
	return s.netID, nil
}

// GetValidatorSet returns the active validators with a known node identity.
// Records without a node ID cannot be sampled and are skipped.
func (s *State) GetValidatorSet(
	_ context.Context,
	_ uint64,
	_ ids.ID,
) (map[ids.NodeID]*validatorstate.GetValidatorOutput, error) {
	registry, slot := s.source.Registry()
	if registry == nil {
		return nil, nil
	}
	epoch := slot.Epoch()

	out := make(map[ids.NodeID]*validatorstate.GetValidatorOutput, registry.Len())
	for _, vdr := range registry.Validators() {
		if !vdr.IsActive(epoch) || vdr.NodeID == ids.EmptyNodeID {
			continue
		}
		out[vdr.NodeID] = &validatorstate.GetValidatorOutput{
			NodeID: vdr.NodeID,
			Weight: vdr.EffectiveBalance,
		}
	}
	return out, nil
}

func (s *State) GetCurrentValidators(
	ctx context.Context,
	height uint64,
	netID ids.ID,
) (map[ids.NodeID]*validatorstate.GetValidatorOutput, error) {
	return s.GetValidatorSet(ctx, height, netID)
}

// GetWarpValidatorSet reports the sampled set in warp form. Lean validators
// carry no BLS key usable for warp aggregation, so the set is served with
// weights only.
func (s *State) GetWarpValidatorSet(
	ctx context.Context,
	height uint64,
	netID ids.ID,
) (*validatorstate.WarpSet, error) {
	vdrSet, err := s.GetValidatorSet(ctx, height, netID)
	if err != nil {
		return nil, err
	}

	warpValidators := make(map[ids.NodeID]*validatorstate.WarpValidator, len(vdrSet))
	for nodeID, vdr := range vdrSet {
		warpValidators[nodeID] = &validatorstate.WarpValidator{
			NodeID: nodeID,
			Weight: vdr.Weight,
		}
	}
	return &validatorstate.WarpSet{
		Height:     height,
		Validators: warpValidators,
	}, nil
}

func (s *State) GetWarpValidatorSets(
	ctx context.Context,
	heights []uint64,
	netIDs []ids.ID,
) (map[ids.ID]map[uint64]*validatorstate.WarpSet, error) {
	out := make(map[ids.ID]map[uint64]*validatorstate.WarpSet, len(netIDs))
	for _, netID := range netIDs {
		heightMap := make(map[uint64]*validatorstate.WarpSet, len(heights))
		for _, height := range heights {
			warpSet, err := s.GetWarpValidatorSet(ctx, height, netID)
			if err != nil {
				return nil, err
			}
			heightMap[height] = warpSet
		}
		out[netID] = heightMap
	}
	return out, nil
}
