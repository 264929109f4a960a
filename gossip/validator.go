// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gossip

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/luxfi/cache"
	"github.com/luxfi/cache/lru"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/forkchoice"
	"github.com/luxfi/lean/mempool"
	"github.com/luxfi/lean/metrics"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/validators"
)

const (
	seenCacheSize = 8192

	// maxConcurrentVerifies bounds signature checks across all inbound
	// gossip, so a flood of messages cannot monopolize every core.
	maxConcurrentVerifies = 8
)

var (
	ErrUnknownProposer    = errors.New("proposer not in registry")
	ErrUnknownAttester    = errors.New("attester not in registry")
	ErrUnknownValidator   = errors.New("validator not in registry")
	ErrWrongProposer      = errors.New("proposer does not match the schedule")
	ErrInactiveProposer   = errors.New("proposer inactive")
	ErrBadSignature       = errors.New("bad signature")
	ErrTargetBeforeSource = errors.New("target slot before source slot")
	ErrAlreadySeen        = errors.New("already seen")
	ErrStale              = errors.New("at or below the finalized slot")
	ErrAlreadyPooled      = errors.New("exit already pooled")
)

// Validator classifies gossip messages against the local chain view. It
// reads fork-choice snapshots and the head state; it never mutates either,
// so classification can run concurrently with the store's single writer.
type Validator struct {
	log   log.Logger
	m     *metrics.Metrics
	store *forkchoice.Store
	exits *mempool.Exits

	sigSem *semaphore.Weighted

	seenBlocks       cache.Cacher[ids.ID, struct{}]
	seenAttestations cache.Cacher[ids.ID, struct{}]
	seenExits        cache.Cacher[ids.ID, struct{}]
}

func NewValidator(
	logger log.Logger,
	m *metrics.Metrics,
	store *forkchoice.Store,
	exits *mempool.Exits,
) *Validator {
	return &Validator{
		log:              logger,
		m:                m,
		store:            store,
		exits:            exits,
		sigSem:           semaphore.NewWeighted(maxConcurrentVerifies),
		seenBlocks:       lru.NewCache[ids.ID, struct{}](seenCacheSize),
		seenAttestations: lru.NewCache[ids.ID, struct{}](seenCacheSize),
		seenExits:        lru.NewCache[ids.ID, struct{}](seenCacheSize),
	}
}

// ValidateBlock classifies an inbound signed block. Accepted and rejected
// roots are marked seen; deferred ones are not, so they reclassify when
// their dependencies arrive.
func (v *Validator) ValidateBlock(ctx context.Context, sb *types.SignedBlock) (Decision, error) {
	d, err := v.validateBlock(ctx, sb)
	v.m.MarkGossip(KindBlock.String(), d.String())
	return d, err
}

func (v *Validator) validateBlock(ctx context.Context, sb *types.SignedBlock) (Decision, error) {
	if err := sb.SyntacticVerify(); err != nil {
		return Reject, err
	}
	block := sb.Block
	root, err := block.Root()
	if err != nil {
		return Reject, err
	}

	if _, ok := v.seenBlocks.Get(root); ok {
		return Ignore, fmt.Errorf("%w: block %s", ErrAlreadySeen, root)
	}
	if v.store.HasBlock(root) {
		v.seenBlocks.Put(root, struct{}{})
		return Ignore, fmt.Errorf("%w: block %s", ErrAlreadySeen, root)
	}
	if finalized := v.store.Finalized(); block.Slot <= finalized.Slot {
		return Ignore, fmt.Errorf("%w: block slot %d, finalized slot %d",
			ErrStale, block.Slot, finalized.Slot)
	}
	if current := v.store.CurrentSlot(); block.Slot > current+1 {
		return Ignore, fmt.Errorf("%w: block slot %d, local slot %d",
			forkchoice.ErrFutureSlot, block.Slot, current)
	}

	head, err := v.store.HeadState()
	if err != nil {
		return Ignore, err
	}
	registry, err := head.Registry()
	if err != nil {
		return Ignore, err
	}
	if scheduled := head.Proposer(block.Slot); block.Proposer != scheduled {
		return Reject, fmt.Errorf("%w: got %d, scheduled %d",
			ErrWrongProposer, block.Proposer, scheduled)
	}
	vdr, ok := registry.Lookup(block.Proposer)
	if !ok {
		return Reject, fmt.Errorf("%w: index %d", ErrUnknownProposer, block.Proposer)
	}
	if !vdr.IsActive(block.Slot.Epoch()) {
		return Reject, fmt.Errorf("%w: index %d", ErrInactiveProposer, block.Proposer)
	}

	msg, err := block.SigningRoot()
	if err != nil {
		return Reject, err
	}
	if err := v.verify(ctx, vdr.PublicKey, msg, sb.Signature); err != nil {
		v.seenBlocks.Put(root, struct{}{})
		return Reject, fmt.Errorf("%w: proposer %d", ErrBadSignature, block.Proposer)
	}

	if !v.store.HasBlock(block.ParentRoot) {
		// Deliverable once the parent lands; the store buffers it.
		return Ignore, fmt.Errorf("%w: %s", forkchoice.ErrUnknownParent, block.ParentRoot)
	}

	v.seenBlocks.Put(root, struct{}{})
	return Accept, nil
}

// ValidateAttestation classifies an inbound signed attestation.
func (v *Validator) ValidateAttestation(ctx context.Context, att *types.SignedAttestation) (Decision, error) {
	d, err := v.validateAttestation(ctx, att)
	v.m.MarkGossip(KindAttestation.String(), d.String())
	return d, err
}

func (v *Validator) validateAttestation(ctx context.Context, att *types.SignedAttestation) (Decision, error) {
	if err := att.SyntacticVerify(); err != nil {
		return Reject, err
	}
	data := att.Data
	if data.Target.Slot < data.Source.Slot {
		return Reject, fmt.Errorf("%w: target slot %d, source slot %d",
			ErrTargetBeforeSource, data.Target.Slot, data.Source.Slot)
	}

	id, err := types.Root(att)
	if err != nil {
		return Reject, err
	}
	if _, ok := v.seenAttestations.Get(id); ok {
		return Ignore, fmt.Errorf("%w: attestation %s", ErrAlreadySeen, id)
	}
	if finalized := v.store.Finalized(); data.Slot <= finalized.Slot {
		return Ignore, fmt.Errorf("%w: attestation slot %d, finalized slot %d",
			ErrStale, data.Slot, finalized.Slot)
	}
	if current := v.store.CurrentSlot(); data.Slot > current {
		return Ignore, fmt.Errorf("%w: attestation slot %d, local slot %d",
			forkchoice.ErrFutureSlot, data.Slot, current)
	}

	head, err := v.store.HeadState()
	if err != nil {
		return Ignore, err
	}
	registry, err := head.Registry()
	if err != nil {
		return Ignore, err
	}
	vdr, ok := registry.Lookup(att.Attester)
	if !ok {
		return Reject, fmt.Errorf("%w: index %d", ErrUnknownAttester, att.Attester)
	}

	msg, err := data.SigningRoot()
	if err != nil {
		return Reject, err
	}
	if err := v.verify(ctx, vdr.PublicKey, msg, att.Signature); err != nil {
		v.seenAttestations.Put(id, struct{}{})
		return Reject, fmt.Errorf("%w: attester %d", ErrBadSignature, att.Attester)
	}

	if !v.store.HasBlock(data.Target.Root) {
		return Ignore, fmt.Errorf("%w: %s", forkchoice.ErrUnknownTarget, data.Target.Root)
	}
	if data.Source.Root != ids.Empty && !v.store.HasBlock(data.Source.Root) {
		return Ignore, fmt.Errorf("%w: %s", forkchoice.ErrUnknownTarget, data.Source.Root)
	}

	v.seenAttestations.Put(id, struct{}{})
	return Accept, nil
}

// ValidateExit classifies an inbound signed voluntary exit.
func (v *Validator) ValidateExit(ctx context.Context, exit *types.SignedVoluntaryExit) (Decision, error) {
	d, err := v.validateExit(ctx, exit)
	v.m.MarkGossip(KindVoluntaryExit.String(), d.String())
	return d, err
}

func (v *Validator) validateExit(ctx context.Context, exit *types.SignedVoluntaryExit) (Decision, error) {
	if err := exit.SyntacticVerify(); err != nil {
		return Reject, err
	}

	id, err := types.Root(exit)
	if err != nil {
		return Reject, err
	}
	if _, ok := v.seenExits.Get(id); ok {
		return Ignore, fmt.Errorf("%w: exit %s", ErrAlreadySeen, id)
	}
	if v.exits.Has(exit.ValidatorIndex) {
		return Ignore, fmt.Errorf("%w: validator %d", ErrAlreadyPooled, exit.ValidatorIndex)
	}

	head, err := v.store.HeadState()
	if err != nil {
		return Ignore, err
	}
	registry, err := head.Registry()
	if err != nil {
		return Ignore, err
	}
	vdr, ok := registry.Lookup(exit.ValidatorIndex)
	if !ok {
		return Reject, fmt.Errorf("%w: index %d", ErrUnknownValidator, exit.ValidatorIndex)
	}

	msg, err := exit.SigningRoot()
	if err != nil {
		return Reject, err
	}
	if err := v.verify(ctx, vdr.PublicKey, msg, exit.Signature); err != nil {
		v.seenExits.Put(id, struct{}{})
		return Reject, fmt.Errorf("%w: validator %d", ErrBadSignature, exit.ValidatorIndex)
	}

	epoch := head.Slot.Epoch()
	if _, err := registry.ApplyExit(&exit.VoluntaryExit, epoch, head.Params.ExitRules()); err != nil {
		if errors.Is(err, validators.ErrAlreadyExited) {
			v.seenExits.Put(id, struct{}{})
			return Reject, err
		}
		// Not yet eligible: may become valid in a later epoch.
		return Ignore, err
	}

	v.seenExits.Put(id, struct{}{})
	return Accept, nil
}

// verify runs a signature check under the bounded-parallelism semaphore.
func (v *Validator) verify(
	ctx context.Context,
	pk [leansig.PublicKeyLen]byte,
	msg ids.ID,
	sig [leansig.SignatureLen]byte,
) error {
	if err := v.sigSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer v.sigSem.Release(1)
	return leansig.Verify(pk[:], msg[:], sig[:])
}
