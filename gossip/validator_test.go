// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"context"
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

type fixture struct {
	signers     []*leansig.LocalSigner
	genesis     *core.State
	genesisRoot ids.ID
	store       *forkchoice.Store
	exits       *mempool.Exits
	validator   *Validator
}

func newFixture(t *testing.T, n int) *fixture {
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

	f := &fixture{
		signers:     signers,
		genesis:     genesis,
		genesisRoot: genesisRoot,
	}
	f.open(t)
	return f
}

// open attaches a fresh store, pool and validator over the same chain, so
// two fixtures can model two nodes with different local views.
func (f *fixture) open(t *testing.T) {
	require := require.New(t)

	db, err := state.New(memdb.New(), metric.NewRegistry())
	require.NoError(err)
	m, err := metrics.New(metric.NewRegistry())
	require.NoError(err)
	store, err := forkchoice.New(log.NewNoOpLogger(), testConfig, db, m, f.genesis)
	require.NoError(err)

	f.store = store
	f.exits = mempool.NewExits(m, 64)
	f.validator = NewValidator(log.NewNoOpLogger(), m, store, f.exits)
}

// peer builds a second node over the same chain with an empty view.
func (f *fixture) peer(t *testing.T) *fixture {
	g := &fixture{
		signers:     f.signers,
		genesis:     f.genesis,
		genesisRoot: f.genesisRoot,
	}
	g.open(t)
	return g
}

// block assembles and signs a block for [slot] on the current head.
func (f *fixture) block(t *testing.T, slot types.Slot) *types.SignedBlock {
	require := require.New(t)

	parentState, err := f.store.HeadState()
	require.NoError(err)
	block, err := core.BuildBlock(parentState, slot, nil, nil)
	require.NoError(err)

	msg, err := block.SigningRoot()
	require.NoError(err)
	sig, err := f.signers[int(block.Proposer)].Sign(msg[:])
	require.NoError(err)
	return &types.SignedBlock{Block: block, Signature: sig}
}

func (f *fixture) attest(t *testing.T, attester uint64, data types.AttestationData) *types.SignedAttestation {
	require := require.New(t)
	msg, err := data.SigningRoot()
	require.NoError(err)
	sig, err := f.signers[int(attester)].Sign(msg[:])
	require.NoError(err)
	return &types.SignedAttestation{
		Attestation: types.Attestation{Attester: attester, Data: data},
		Signature:   sig,
	}
}

func (f *fixture) exit(t *testing.T, index uint64, epoch types.Epoch) *types.SignedVoluntaryExit {
	require := require.New(t)
	exit := types.VoluntaryExit{ValidatorIndex: index, Epoch: epoch}
	msg, err := exit.SigningRoot()
	require.NoError(err)
	sig, err := f.signers[int(index)].Sign(msg[:])
	require.NoError(err)
	return &types.SignedVoluntaryExit{VoluntaryExit: exit, Signature: sig}
}

func TestValidateBlockAccept(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	f.store.Tick(1, types.IntervalPropose)
	sb := f.block(t, 1)

	d, err := f.validator.ValidateBlock(ctx, sb)
	require.NoError(err)
	require.Equal(Accept, d)

	// Marked seen: a second copy is ignored.
	d, err = f.validator.ValidateBlock(ctx, sb)
	require.ErrorIs(err, ErrAlreadySeen)
	require.Equal(Ignore, d)
}

func TestValidateBlockBadSignature(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	f.store.Tick(1, types.IntervalPropose)
	sb := f.block(t, 1)
	sb.Signature[0] ^= 0xff

	d, err := f.validator.ValidateBlock(ctx, sb)
	require.ErrorIs(err, ErrBadSignature)
	require.Equal(Reject, d)
}

func TestValidateBlockWrongProposer(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	f.store.Tick(1, types.IntervalPropose)
	sb := f.block(t, 1)
	sb.Block.Proposer = 2 // schedule says 1
	msg, err := sb.Block.SigningRoot()
	require.NoError(err)
	sb.Signature, err = f.signers[2].Sign(msg[:])
	require.NoError(err)

	d, err := f.validator.ValidateBlock(ctx, sb)
	require.ErrorIs(err, ErrWrongProposer)
	require.Equal(Reject, d)
}

func TestValidateBlockFutureSlot(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	// Local clock still at slot 0: a slot-2 block is two ahead.
	sb := f.block(t, 2)

	d, err := f.validator.ValidateBlock(ctx, sb)
	require.ErrorIs(err, forkchoice.ErrFutureSlot)
	require.Equal(Ignore, d)
}

func TestValidateBlockUnknownParent(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	f.store.Tick(2, types.IntervalPropose)
	b1 := f.block(t, 1)
	require.NoError(f.store.OnBlock(b1))
	b2 := f.block(t, 2)

	// A peer that never saw b1 cannot resolve b2's parent.
	g := f.peer(t)
	g.store.Tick(2, types.IntervalPropose)
	d, err := g.validator.ValidateBlock(ctx, b2)
	require.ErrorIs(err, forkchoice.ErrUnknownParent)
	require.Equal(Ignore, d)
}

func TestValidateAttestationAccept(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	f.store.Tick(1, types.IntervalPropose)
	b1 := f.block(t, 1)
	require.NoError(f.store.OnBlock(b1))

	att := f.attest(t, 0, types.AttestationData{
		Slot:   1,
		Target: types.Checkpoint{Root: blockRootOf(t, b1), Slot: 1},
		Source: types.Checkpoint{Root: f.genesisRoot, Slot: 0},
	})

	d, err := f.validator.ValidateAttestation(ctx, att)
	require.NoError(err)
	require.Equal(Accept, d)

	d, err = f.validator.ValidateAttestation(ctx, att)
	require.ErrorIs(err, ErrAlreadySeen)
	require.Equal(Ignore, d)
}

func TestValidateAttestationTargetBeforeSource(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	att := f.attest(t, 0, types.AttestationData{
		Slot:   2,
		Target: types.Checkpoint{Root: f.genesisRoot, Slot: 0},
		Source: types.Checkpoint{Root: f.genesisRoot, Slot: 1},
	})

	d, err := f.validator.ValidateAttestation(ctx, att)
	require.ErrorIs(err, ErrTargetBeforeSource)
	require.Equal(Reject, d)
}

func TestValidateAttestationUnknownAttester(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	f.store.Tick(1, types.IntervalPropose)
	att := f.attest(t, 0, types.AttestationData{
		Slot:   1,
		Target: types.Checkpoint{Root: f.genesisRoot, Slot: 0},
		Source: types.Checkpoint{Root: f.genesisRoot, Slot: 0},
	})
	att.Attester = 9

	d, err := f.validator.ValidateAttestation(ctx, att)
	require.ErrorIs(err, ErrUnknownAttester)
	require.Equal(Reject, d)
}

func TestValidateAttestationFutureSlot(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	att := f.attest(t, 0, types.AttestationData{
		Slot:   4,
		Target: types.Checkpoint{Root: f.genesisRoot, Slot: 0},
		Source: types.Checkpoint{Root: f.genesisRoot, Slot: 0},
	})

	d, err := f.validator.ValidateAttestation(ctx, att)
	require.ErrorIs(err, forkchoice.ErrFutureSlot)
	require.Equal(Ignore, d)
}

func TestValidateAttestationUnknownTarget(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	f.store.Tick(1, types.IntervalPropose)
	att := f.attest(t, 0, types.AttestationData{
		Slot:   1,
		Target: types.Checkpoint{Root: ids.GenerateTestID(), Slot: 1},
		Source: types.Checkpoint{Root: f.genesisRoot, Slot: 0},
	})

	d, err := f.validator.ValidateAttestation(ctx, att)
	require.ErrorIs(err, forkchoice.ErrUnknownTarget)
	require.Equal(Ignore, d)
}

func TestValidateExitAccept(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	exit := f.exit(t, 1, 0)
	d, err := f.validator.ValidateExit(ctx, exit)
	require.NoError(err)
	require.Equal(Accept, d)
}

func TestValidateExitAlreadyPooled(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	exit := f.exit(t, 1, 0)
	require.NoError(f.exits.Add(exit))

	d, err := f.validator.ValidateExit(ctx, exit)
	require.ErrorIs(err, ErrAlreadyPooled)
	require.Equal(Ignore, d)
}

func TestValidateExitUnknownValidator(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	exit := f.exit(t, 1, 0)
	exit.ValidatorIndex = 9

	d, err := f.validator.ValidateExit(ctx, exit)
	require.ErrorIs(err, ErrUnknownValidator)
	require.Equal(Reject, d)
}

func TestValidateExitBadSignature(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, 3)
	ctx := context.Background()

	exit := f.exit(t, 1, 0)
	exit.Signature[0] ^= 0xff

	d, err := f.validator.ValidateExit(ctx, exit)
	require.ErrorIs(err, ErrBadSignature)
	require.Equal(Reject, d)
}

func blockRootOf(t *testing.T, sb *types.SignedBlock) ids.ID {
	root, err := sb.Block.Root()
	require.NoError(t, err)
	return root
}
