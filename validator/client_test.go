// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validator

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
	"github.com/luxfi/lean/forkchoice"
	"github.com/luxfi/lean/keystore"
	"github.com/luxfi/lean/mempool"
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

// recordingPublisher captures everything the client issues and applies
// blocks to the store so consecutive duties see their own chain.
type recordingPublisher struct {
	store *forkchoice.Store

	blocks       []*types.SignedBlock
	attestations []*types.SignedAttestation
}

func (p *recordingPublisher) IssueBlock(sb *types.SignedBlock) error {
	if err := p.store.OnBlock(sb); err != nil {
		return err
	}
	p.blocks = append(p.blocks, sb)
	return nil
}

func (p *recordingPublisher) IssueAttestation(att *types.SignedAttestation) error {
	if err := p.store.OnAttestation(att, false); err != nil {
		return err
	}
	p.attestations = append(p.attestations, att)
	return nil
}

type clientFixture struct {
	client      *Client
	store       *forkchoice.Store
	pub         *recordingPublisher
	signers     []*leansig.LocalSigner
	genesisRoot ids.ID
}

// newClientFixture builds an n-validator chain with keys for [held] loaded
// into the keystore.
func newClientFixture(t *testing.T, n int, held ...uint64) *clientFixture {
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

	db, err := state.New(memdb.New(), metric.NewRegistry())
	require.NoError(err)
	m, err := metrics.New(metric.NewRegistry())
	require.NoError(err)
	store, err := forkchoice.New(log.NewNoOpLogger(), testConfig, db, m, genesis)
	require.NoError(err)

	heldSigners := make([]*leansig.LocalSigner, len(held))
	for i, index := range held {
		heldSigners[i] = signers[index]
	}
	keys, err := keystore.New(heldSigners, registry)
	require.NoError(err)

	exits := mempool.NewExits(m, 64)
	pub := &recordingPublisher{store: store}
	client := New(log.NewNoOpLogger(), testConfig, m, store, exits, keys, pub)

	return &clientFixture{
		client:      client,
		store:       store,
		pub:         pub,
		signers:     signers,
		genesisRoot: genesisRoot,
	}
}

func TestProposeWhenScheduled(t *testing.T) {
	require := require.New(t)
	// Slot 1's proposer is validator 1.
	f := newClientFixture(t, 3, 1)

	f.store.Tick(1, types.IntervalPropose)
	f.client.OnInterval(1, types.IntervalPropose)

	require.Len(f.pub.blocks, 1)
	block := f.pub.blocks[0].Block
	require.Equal(types.Slot(1), block.Slot)
	require.Equal(uint64(1), block.Proposer)
	require.Equal(f.store.Head().Root, mustRoot(t, f.pub.blocks[0]))
}

func TestProposeWhenNotScheduled(t *testing.T) {
	require := require.New(t)
	// Holding only validator 2's key; slot 1 belongs to validator 1.
	f := newClientFixture(t, 3, 2)

	f.store.Tick(1, types.IntervalPropose)
	f.client.OnInterval(1, types.IntervalPropose)

	require.Empty(f.pub.blocks)
}

func TestProposeSlotZeroSkipped(t *testing.T) {
	require := require.New(t)
	f := newClientFixture(t, 3, 0)

	f.client.OnInterval(0, types.IntervalPropose)

	require.Empty(f.pub.blocks)
}

func TestAttestForEveryHeldKey(t *testing.T) {
	require := require.New(t)
	f := newClientFixture(t, 3, 0, 2)

	f.store.Tick(1, types.IntervalPropose)
	f.store.Tick(1, types.IntervalAttest)
	f.client.OnInterval(1, types.IntervalAttest)

	require.Len(f.pub.attestations, 2)
	require.Equal(uint64(0), f.pub.attestations[0].Attester)
	require.Equal(uint64(2), f.pub.attestations[1].Attester)
	for _, att := range f.pub.attestations {
		require.Equal(types.Slot(1), att.Data.Slot)
		require.Equal(f.store.Justified(), att.Data.Source)
		require.Equal(f.store.AttestationTarget(), att.Data.Target)
	}
}

func TestAttestationsBackOffFromFreshHead(t *testing.T) {
	require := require.New(t)
	f := newClientFixture(t, 3, 0, 1, 2)

	f.store.Tick(1, types.IntervalPropose)
	f.client.OnInterval(1, types.IntervalPropose)
	require.Len(f.pub.blocks, 1)
	blockRoot := mustRoot(t, f.pub.blocks[0])

	f.store.Tick(1, types.IntervalAttest)
	f.client.OnInterval(1, types.IntervalAttest)

	// The head is the fresh proposal, but votes back off toward the safe
	// target until it gathers quorum.
	require.Equal(blockRoot, f.store.Head().Root)
	require.Len(f.pub.attestations, 3)
	for _, att := range f.pub.attestations {
		require.Equal(f.genesisRoot, att.Data.Target.Root)
	}
}

func TestAttestWithoutKeysIsANoOp(t *testing.T) {
	require := require.New(t)
	f := newClientFixture(t, 3)

	f.store.Tick(1, types.IntervalAttest)
	f.client.OnInterval(1, types.IntervalAttest)

	require.Empty(f.pub.attestations)
}

func TestSafeTargetIntervalProducesNothing(t *testing.T) {
	require := require.New(t)
	f := newClientFixture(t, 3, 0, 1, 2)

	f.store.Tick(1, types.IntervalSafeTarget)
	f.client.OnInterval(1, types.IntervalSafeTarget)

	require.Empty(f.pub.blocks)
	require.Empty(f.pub.attestations)
}

func mustRoot(t *testing.T, sb *types.SignedBlock) ids.ID {
	require := require.New(t)
	root, err := sb.Block.Root()
	require.NoError(err)
	return root
}
