// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/validators"
)

// NewGenesisState builds the slot-0 state: a zeroed header over an empty
// body, no history, zero checkpoints. The genesis block root only becomes
// justified and finalized when the first block is applied on top of it.
func NewGenesisState(params Params, registry *validators.Registry) (*State, error) {
	emptyBody := &types.BlockBody{}
	bodyRoot, err := emptyBody.Root()
	if err != nil {
		return nil, err
	}

	return &State{
		Params: params,
		Slot:   0,
		LatestHeader: &types.BlockHeader{
			Slot:     0,
			BodyRoot: bodyRoot,
		},
		Validators: registry.Validators(),
	}, nil
}

// GenesisBlock derives the block the genesis state stands for. It is never
// signed or gossiped; it anchors the fork-choice tree and is the parent of
// the chain's first real block.
func GenesisBlock(genesis *State) (*types.Block, error) {
	stateRoot, err := genesis.Root()
	if err != nil {
		return nil, err
	}
	return &types.Block{
		Slot:       0,
		Proposer:   0,
		ParentRoot: ids.Empty,
		StateRoot:  stateRoot,
		Body:       &types.BlockBody{},
	}, nil
}
