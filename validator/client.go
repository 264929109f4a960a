// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validator produces the duties of locally keyed validators:
// proposals at the start of a scheduled slot and attestations one interval
// later. A duty belongs to its slot; a missed duty is never retried.
package validator

import (
	"slices"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/lean/config"
	"github.com/luxfi/lean/core"
	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/duties"
	"github.com/luxfi/lean/forkchoice"
	"github.com/luxfi/lean/keystore"
	"github.com/luxfi/lean/mempool"
	"github.com/luxfi/lean/metrics"
	"github.com/luxfi/lean/types"
)

// Publisher applies a locally produced message and hands it to gossip.
type Publisher interface {
	IssueBlock(*types.SignedBlock) error
	IssueAttestation(*types.SignedAttestation) error
}

// Client drives duty production off the node's interval ticks.
type Client struct {
	log   log.Logger
	cfg   config.Config
	m     *metrics.Metrics
	store *forkchoice.Store
	exits *mempool.Exits
	keys  *keystore.Keystore
	pub   Publisher
}

func New(
	logger log.Logger,
	cfg config.Config,
	m *metrics.Metrics,
	store *forkchoice.Store,
	exits *mempool.Exits,
	keys *keystore.Keystore,
	pub Publisher,
) *Client {
	return &Client{
		log:   logger,
		cfg:   cfg,
		m:     m,
		store: store,
		exits: exits,
		keys:  keys,
		pub:   pub,
	}
}

// OnInterval runs the duties scheduled for this tick. Proposals go out at
// the slot start, attestations one interval later.
func (c *Client) OnInterval(slot types.Slot, interval types.Interval) {
	switch interval {
	case types.IntervalPropose:
		c.propose(slot)
	case types.IntervalAttest:
		c.attest(slot)
	}
}

func (c *Client) propose(slot types.Slot) {
	if slot == 0 {
		return
	}

	headState, err := c.store.HeadState()
	if err != nil {
		c.log.Warn("skipping proposal, head state unavailable",
			log.Uint64("slot", uint64(slot)),
			log.Err(err),
		)
		c.m.MarkDutyMissed()
		return
	}
	proposer, active, err := duties.Proposer(headState, slot)
	if err != nil {
		c.log.Warn("skipping proposal, no schedule",
			log.Uint64("slot", uint64(slot)),
			log.Err(err),
		)
		c.m.MarkDutyMissed()
		return
	}
	signer, ok := c.keys.Signer(proposer)
	if !ok || !active {
		return
	}

	// Accept the buffered votes first, so the proposal builds on the
	// freshest head and repackages everything collected since the parent.
	parent, err := c.store.ProposalHead(slot)
	if err != nil {
		c.log.Warn("skipping proposal, vote acceptance failed",
			log.Uint64("slot", uint64(slot)),
			log.Err(err),
		)
		c.m.MarkDutyMissed()
		return
	}
	parentState, err := c.store.HeadState()
	if err != nil {
		c.log.Warn("skipping proposal, parent state unavailable",
			log.Uint64("slot", uint64(slot)),
			log.Stringer("parent", parent.Root),
			log.Err(err),
		)
		c.m.MarkDutyMissed()
		return
	}

	votes := c.store.CollectVotes(c.store.Justified())
	exits, err := c.exits.ForInclusion(parentState, c.cfg.MaxExitsPerBlock)
	if err != nil {
		c.log.Warn("skipping proposal, exit selection failed",
			log.Uint64("slot", uint64(slot)),
			log.Err(err),
		)
		c.m.MarkDutyMissed()
		return
	}

	block, err := core.BuildBlock(parentState, slot, votes, exits)
	if err != nil {
		c.log.Warn("skipping proposal, block assembly failed",
			log.Uint64("slot", uint64(slot)),
			log.Err(err),
		)
		c.m.MarkDutyMissed()
		return
	}
	signed, err := signBlock(block, signer)
	if err != nil {
		c.log.Warn("skipping proposal, signing failed",
			log.Uint64("slot", uint64(slot)),
			log.Err(err),
		)
		c.m.MarkDutyMissed()
		return
	}

	if err := c.pub.IssueBlock(signed); err != nil {
		c.log.Warn("proposal not accepted locally",
			log.Uint64("slot", uint64(slot)),
			log.Err(err),
		)
		c.m.MarkDutyMissed()
		return
	}
	c.exits.MarkIncluded(block.Body.Exits)
	c.m.MarkDutyProduced()

	c.log.Info("proposed block",
		log.Uint64("slot", uint64(slot)),
		log.Uint64("proposer", proposer),
		log.Int("attestations", len(block.Body.Attestations)),
		log.Int("exits", len(block.Body.Exits)),
	)
}

func (c *Client) attest(slot types.Slot) {
	indices := c.keys.Indices()
	if len(indices) == 0 {
		return
	}

	headState, err := c.store.HeadState()
	if err != nil {
		c.log.Warn("skipping attestations, head state unavailable",
			log.Uint64("slot", uint64(slot)),
			log.Err(err),
		)
		c.m.MarkDutyMissed()
		return
	}
	registry, err := headState.Registry()
	if err != nil {
		c.log.Warn("skipping attestations, registry unavailable",
			log.Uint64("slot", uint64(slot)),
			log.Err(err),
		)
		c.m.MarkDutyMissed()
		return
	}

	data := types.AttestationData{
		Slot:   slot,
		Target: c.store.AttestationTarget(),
		Source: c.store.Justified(),
	}
	msg, err := data.SigningRoot()
	if err != nil {
		c.log.Warn("skipping attestations, vote encoding failed",
			log.Uint64("slot", uint64(slot)),
			log.Err(err),
		)
		c.m.MarkDutyMissed()
		return
	}

	sorted := make([]uint64, 0, len(indices))
	for index := range indices {
		sorted = append(sorted, index)
	}
	slices.Sort(sorted)

	for _, index := range sorted {
		if !registry.IsActive(index, slot.Epoch()) {
			continue
		}
		signer, ok := c.keys.Signer(index)
		if !ok {
			continue
		}
		if err := c.issueAttestation(index, data, msg, signer); err != nil {
			c.log.Warn("attestation not produced",
				log.Uint64("slot", uint64(slot)),
				log.Uint64("attester", index),
				log.Err(err),
			)
			c.m.MarkDutyMissed()
			continue
		}
		c.m.MarkDutyProduced()
	}

	c.log.Debug("attested",
		log.Uint64("slot", uint64(slot)),
		log.Uint64("targetSlot", uint64(data.Target.Slot)),
		log.Stringer("target", data.Target.Root),
	)
}

func (c *Client) issueAttestation(
	index uint64,
	data types.AttestationData,
	msg ids.ID,
	signer leansig.Signer,
) error {
	sig, err := signer.Sign(msg[:])
	if err != nil {
		return err
	}
	return c.pub.IssueAttestation(&types.SignedAttestation{
		Attestation: types.Attestation{Attester: index, Data: data},
		Signature:   sig,
	})
}

func signBlock(block *types.Block, signer leansig.Signer) (*types.SignedBlock, error) {
	msg, err := block.SigningRoot()
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(msg[:])
	if err != nil {
		return nil, err
	}
	return &types.SignedBlock{Block: block, Signature: sig}, nil
}
