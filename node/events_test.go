// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/pubsub"

	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/utils/json"
)

type mockFilter struct {
	addr []byte
}

func (f *mockFilter) Check(addr []byte) bool {
	return bytes.Equal(addr, f.addr)
}

func TestBlockFilterer(t *testing.T) {
	require := require.New(t)

	var proposerKey [leansig.PublicKeyLen]byte
	proposerKey[0] = 1

	root := ids.ID{2}
	block := &types.Block{
		Slot:       7,
		Proposer:   1,
		ParentRoot: ids.ID{3},
	}

	fp := pubsub.NewFilterParam()
	require.NoError(fp.Add(proposerKey[:]))

	parser := NewBlockFilterer(root, block, proposerKey)
	fr, event := parser.Filter([]pubsub.Filter{
		&mockFilter{addr: proposerKey[:]},
		&mockFilter{addr: []byte("other")},
	})
	require.Equal([]bool{true, false}, fr)

	blockEvent, ok := event.(*BlockEvent)
	require.True(ok)
	require.Equal(root, blockEvent.Root)
	require.Equal(json.Uint64(7), blockEvent.Slot)
	require.Equal(json.Uint64(1), blockEvent.Proposer)
}

func TestCheckpointFilterer(t *testing.T) {
	require := require.New(t)

	cp := types.Checkpoint{Root: ids.ID{4}, Slot: 32}
	parser := NewCheckpointFilterer(cp)
	fr, event := parser.Filter([]pubsub.Filter{
		&mockFilter{addr: cp.Root[:]},
	})
	require.Equal([]bool{true}, fr)

	checkpointEvent, ok := event.(*CheckpointEvent)
	require.True(ok)
	require.Equal(cp.Root, checkpointEvent.Root)
	require.Equal(json.Uint64(32), checkpointEvent.Slot)
}
