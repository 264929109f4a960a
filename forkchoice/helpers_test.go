// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package forkchoice

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/lean/config"
	"github.com/luxfi/lean/core"
	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/metrics"
	"github.com/luxfi/lean/state"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/validators"
)

var testConfig = config.Config{
	GenesisTime:             1_700_000_000,
	SlotDuration:            config.DefaultConfig.SlotDuration,
	MinActiveEpochs:         0,
	ExitDelayEpochs:         1,
	MaxAttestationsPerBlock: 128,
	MaxExitsPerBlock:        16,
	PendingBlocksLimit:      8,
	PendingTTLSlots:         4,
}

type testChain struct {
	signers     []*leansig.LocalSigner
	genesis     *core.State
	genesisRoot ids.ID
}

func newTestChain(t *testing.T, n int) *testChain {
	require := require.New(t)

	signers := make([]*leansig.LocalSigner, n)
	vdrs := make([]*types.Validator, n)
	for i := range signers {
		signer, err := leansig.NewLocalSigner()
		require.NoError(err)
		signers[i] = signer
		vdrs[i] = &types.Validator{
			Index:            uint64(i),
			PublicKey:        signer.PublicKey(),
			EffectiveBalance: 1,
			Status:           types.StatusActive,
			ExitEpoch:        types.FarFutureEpoch,
		}
	}
	registry, err := validators.NewRegistry(vdrs)
	require.NoError(err)

	genesis, err := core.NewGenesisState(core.ParamsFromConfig(testConfig), registry)
	require.NoError(err)
	genesisBlock, err := core.GenesisBlock(genesis)
	require.NoError(err)
	genesisRoot, err := genesisBlock.Root()
	require.NoError(err)

	return &testChain{
		signers:     signers,
		genesis:     genesis,
		genesisRoot: genesisRoot,
	}
}

func (c *testChain) newStore(t *testing.T) *Store {
	require := require.New(t)

	db, err := state.New(memdb.New(), metric.NewRegistry())
	require.NoError(err)
	m, err := metrics.New(metric.NewRegistry())
	require.NoError(err)

	store, err := New(log.NewNoOpLogger(), testConfig, db, m, c.genesis)
	require.NoError(err)
	return store
}

// build assembles and signs a block for [slot] on top of the state at
// [parent] in [s].
func (c *testChain) build(
	t *testing.T,
	s *Store,
	parent ids.ID,
	slot types.Slot,
	votes []*types.SignedAttestation,
) *types.SignedBlock {
	require := require.New(t)

	parentState, err := s.db.GetState(parent)
	require.NoError(err)
	block, err := core.BuildBlock(parentState, slot, votes, nil)
	require.NoError(err)
	return c.sign(t, block)
}

func (c *testChain) sign(t *testing.T, block *types.Block) *types.SignedBlock {
	require := require.New(t)
	msg, err := block.SigningRoot()
	require.NoError(err)
	sig, err := c.signers[int(block.Proposer)].Sign(msg[:])
	require.NoError(err)
	return &types.SignedBlock{
		Block:     block,
		Signature: sig,
	}
}

func (c *testChain) attest(t *testing.T, attester uint64, data types.AttestationData) *types.SignedAttestation {
	require := require.New(t)
	msg, err := data.SigningRoot()
	require.NoError(err)
	sig, err := c.signers[int(attester)].Sign(msg[:])
	require.NoError(err)
	return &types.SignedAttestation{
		Attestation: types.Attestation{
			Attester: attester,
			Data:     data,
		},
		Signature: sig,
	}
}

func blockRoot(t *testing.T, sb *types.SignedBlock) ids.ID {
	root, err := sb.Block.Root()
	require.NoError(t, err)
	return root
}
