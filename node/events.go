// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/pubsub"

	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/utils/json"
)

var (
	_ pubsub.Filterer = (*blockFilterer)(nil)
	_ pubsub.Filterer = (*checkpointFilterer)(nil)
)

// BlockEvent is pushed to /events subscribers when a block becomes the
// canonical head.
type BlockEvent struct {
	Root     ids.ID      `json:"root"`
	Parent   ids.ID      `json:"parent"`
	Slot     json.Uint64 `json:"slot"`
	Proposer json.Uint64 `json:"proposer"`
}

// CheckpointEvent is pushed when the finalized checkpoint advances.
type CheckpointEvent struct {
	Root ids.ID      `json:"root"`
	Slot json.Uint64 `json:"slot"`
}

// blockFilterer keys subscriber filters on the proposer's public key, so a
// client can follow the blocks of the validators it cares about.
type blockFilterer struct {
	proposerKey [leansig.PublicKeyLen]byte
	event       *BlockEvent
}

func NewBlockFilterer(root ids.ID, block *types.Block, proposerKey [leansig.PublicKeyLen]byte) pubsub.Filterer {
	return &blockFilterer{
		proposerKey: proposerKey,
		event: &BlockEvent{
			Root:     root,
			Parent:   block.ParentRoot,
			Slot:     json.Uint64(block.Slot),
			Proposer: json.Uint64(block.Proposer),
		},
	}
}

func (f *blockFilterer) Filter(filters []pubsub.Filter) ([]bool, interface{}) {
	resp := make([]bool, len(filters))
	for i, filter := range filters {
		resp[i] = filter.Check(f.proposerKey[:])
	}
	return resp, f.event
}

// checkpointFilterer keys subscriber filters on the finalized root.
type checkpointFilterer struct {
	event *CheckpointEvent
}

func NewCheckpointFilterer(cp types.Checkpoint) pubsub.Filterer {
	return &checkpointFilterer{
		event: &CheckpointEvent{
			Root: cp.Root,
			Slot: json.Uint64(cp.Slot),
		},
	}
}

func (f *checkpointFilterer) Filter(filters []pubsub.Filter) ([]bool, interface{}) {
	resp := make([]bool, len(filters))
	for i, filter := range filters {
		resp[i] = filter.Check(f.event.Root[:])
	}
	return resp, f.event
}
