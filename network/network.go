// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"time"

	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	validators "github.com/luxfi/consensus/validator"
	"github.com/luxfi/ids"
	"github.com/luxfi/p2p"
	p2pgossip "github.com/luxfi/p2p/gossip"
	"github.com/luxfi/warp"

	"github.com/luxfi/lean/forkchoice"
	"github.com/luxfi/lean/gossip"
	"github.com/luxfi/lean/mempool"
	"github.com/luxfi/lean/types"
)

// Handler IDs for the three gossip topics. The low range is reserved by the
// p2p package for its own protocols.
const (
	BlockGossipHandlerID uint64 = iota + 0x80
	AttestationGossipHandlerID
	ExitGossipHandlerID
)

// maxFramePayloadSize bounds decompressed gossip payloads.
const maxFramePayloadSize = 10 * 1024 * 1024

// Network gossips blocks, attestations and voluntary exits. Blocks and exits
// are push-only; attestations are additionally pulled from validators, since
// votes are the one message type a late joiner must backfill to vote safely.
type Network struct {
	*p2p.Network

	log log.Logger

	blocks       *blockSet
	attestations *attestationSet
	exits        *exitSet

	blockPushGossiper       *p2pgossip.PushGossiper[*Block]
	attestationPushGossiper *p2pgossip.PushGossiper[*Attestation]
	exitPushGossiper        *p2pgossip.PushGossiper[*Exit]
	attestationPullGossiper p2pgossip.Gossiper

	pushGossipFrequency time.Duration
	pullGossipFrequency time.Duration
}

func New(
	log log.Logger,
	nodeID ids.NodeID,
	netID ids.ID,
	vdrs validators.State,
	gossipValidator *gossip.Validator,
	store *forkchoice.Store,
	attestationPool *mempool.Attestations,
	exitPool *mempool.Exits,
	appSender warp.Sender,
	registerer metric.Registerer,
	config Config,
) (*Network, error) {
	p2pNetwork, err := p2p.NewNetwork(log, appSender, registerer, "p2p")
	if err != nil {
		return nil, err
	}

	frames, err := gossip.NewFrameCodec(maxFramePayloadSize)
	if err != nil {
		return nil, err
	}

	peerValidators := p2p.NewValidators(
		p2pNetwork.Peers,
		log,
		netID,
		vdrs,
		config.MaxValidatorSetStaleness,
	)

	blocks, err := newBlockSet(gossipValidator, store, registerer, config)
	if err != nil {
		return nil, err
	}
	attestations, err := newAttestationSet(gossipValidator, store, attestationPool, registerer, config)
	if err != nil {
		return nil, err
	}
	exits, err := newExitSet(gossipValidator, exitPool, registerer, config)
	if err != nil {
		return nil, err
	}

	pushBranching := p2pgossip.BranchingFactor{
		StakePercentage: config.PushGossipPercentStake,
		Validators:      config.PushGossipNumValidators,
		Peers:           config.PushGossipNumPeers,
	}
	regossipBranching := p2pgossip.BranchingFactor{
		Validators: config.PushRegossipNumValidators,
		Peers:      config.PushRegossipNumPeers,
	}

	blockClient := p2pNetwork.NewClient(
		BlockGossipHandlerID,
		p2p.WithValidatorSampling(peerValidators),
	)
	blockMetrics, err := p2pgossip.NewMetrics(registerer, "block")
	if err != nil {
		return nil, err
	}
	blockPushGossiper, err := p2pgossip.NewPushGossiper[*Block](
		blockMarshaller{frames: frames},
		blocks,
		peerValidators,
		blockClient,
		blockMetrics,
		pushBranching,
		regossipBranching,
		config.PushGossipDiscardedCacheSize,
		config.TargetGossipSize,
		config.PushGossipMaxRegossipFrequency,
	)
	if err != nil {
		return nil, err
	}
	blockHandler := p2pgossip.NewHandler[*Block](
		log,
		blockMarshaller{frames: frames},
		blocks,
		blockMetrics,
		config.TargetGossipSize,
		nil,
	)
	if err := p2pNetwork.AddHandler(BlockGossipHandlerID, blockHandler); err != nil {
		return nil, err
	}

	attestationClient := p2pNetwork.NewClient(
		AttestationGossipHandlerID,
		p2p.WithValidatorSampling(peerValidators),
	)
	attestationMetrics, err := p2pgossip.NewMetrics(registerer, "attestation")
	if err != nil {
		return nil, err
	}
	attestationPushGossiper, err := p2pgossip.NewPushGossiper[*Attestation](
		attestationMarshaller{frames: frames},
		attestations,
		peerValidators,
		attestationClient,
		attestationMetrics,
		pushBranching,
		regossipBranching,
		config.PushGossipDiscardedCacheSize,
		config.TargetGossipSize,
		config.PushGossipMaxRegossipFrequency,
	)
	if err != nil {
		return nil, err
	}

	var attestationPullGossiper p2pgossip.Gossiper = p2pgossip.NewPullGossiper[*Attestation](
		log,
		attestationMarshaller{frames: frames},
		attestations,
		attestationClient,
		attestationMetrics,
		config.PullGossipPollSize,
	)
	// Pull requests are only issued if this node is a validator.
	attestationPullGossiper = p2pgossip.ValidatorGossiper{
		Gossiper:   attestationPullGossiper,
		NodeID:     nodeID,
		Validators: peerValidators,
	}

	attestationHandler := p2pgossip.NewHandler[*Attestation](
		log,
		attestationMarshaller{frames: frames},
		attestations,
		attestationMetrics,
		config.TargetGossipSize,
		nil,
	)
	// Attestation pull requests are served to validators only, and throttled.
	attestationValidatorHandler := p2p.NewValidatorHandler(
		p2p.NewThrottlerHandler(
			attestationHandler,
			p2p.NewSlidingWindowThrottler(
				config.PullGossipThrottlingPeriod,
				config.PullGossipThrottlingLimit,
			),
			log,
		),
		peerValidators,
		log,
	)
	if err := p2pNetwork.AddHandler(AttestationGossipHandlerID, attestationValidatorHandler); err != nil {
		return nil, err
	}

	exitClient := p2pNetwork.NewClient(
		ExitGossipHandlerID,
		p2p.WithValidatorSampling(peerValidators),
	)
	exitMetrics, err := p2pgossip.NewMetrics(registerer, "exit")
	if err != nil {
		return nil, err
	}
	exitPushGossiper, err := p2pgossip.NewPushGossiper[*Exit](
		exitMarshaller{frames: frames},
		exits,
		peerValidators,
		exitClient,
		exitMetrics,
		pushBranching,
		regossipBranching,
		config.PushGossipDiscardedCacheSize,
		config.TargetGossipSize,
		config.PushGossipMaxRegossipFrequency,
	)
	if err != nil {
		return nil, err
	}
	exitHandler := p2pgossip.NewHandler[*Exit](
		log,
		exitMarshaller{frames: frames},
		exits,
		exitMetrics,
		config.TargetGossipSize,
		nil,
	)
	if err := p2pNetwork.AddHandler(ExitGossipHandlerID, exitHandler); err != nil {
		return nil, err
	}

	return &Network{
		Network:                 p2pNetwork,
		log:                     log,
		blocks:                  blocks,
		attestations:            attestations,
		exits:                   exits,
		blockPushGossiper:       blockPushGossiper,
		attestationPushGossiper: attestationPushGossiper,
		exitPushGossiper:        exitPushGossiper,
		attestationPullGossiper: attestationPullGossiper,
		pushGossipFrequency:     config.PushGossipFrequency,
		pullGossipFrequency:     config.PullGossipFrequency,
	}, nil
}

// PushGossip runs the push gossipers until the context is cancelled.
func (n *Network) PushGossip(ctx context.Context) {
	go p2pgossip.Every(ctx, n.log, n.blockPushGossiper, n.pushGossipFrequency)
	go p2pgossip.Every(ctx, n.log, n.attestationPushGossiper, n.pushGossipFrequency)
	p2pgossip.Every(ctx, n.log, n.exitPushGossiper, n.pushGossipFrequency)
}

// PullGossip polls validators for attestations until the context is
// cancelled.
func (n *Network) PullGossip(ctx context.Context) {
	p2pgossip.Every(ctx, n.log, n.attestationPullGossiper, n.pullGossipFrequency)
}

func (n *Network) AppGossip(ctx context.Context, nodeID ids.NodeID, msgBytes []byte) error {
	return n.Network.Gossip(ctx, nodeID, msgBytes)
}

// IssueBlock applies a locally built block and schedules it for push gossip.
func (n *Network) IssueBlock(sb *types.SignedBlock) error {
	wrapped, err := NewBlock(sb)
	if err != nil {
		return err
	}
	if err := n.blocks.Add(wrapped); err != nil {
		return err
	}
	n.blockPushGossiper.Add(wrapped)
	return nil
}

// IssueAttestation applies a locally produced or RPC-submitted attestation
// and schedules it for push gossip.
func (n *Network) IssueAttestation(att *types.SignedAttestation) error {
	wrapped, err := NewAttestation(att)
	if err != nil {
		return err
	}
	if err := n.attestations.Add(wrapped); err != nil {
		return err
	}
	n.attestationPushGossiper.Add(wrapped)
	return nil
}

// IssueExit pools an RPC-submitted voluntary exit and schedules it for push
// gossip.
func (n *Network) IssueExit(exit *types.SignedVoluntaryExit) error {
	wrapped, err := NewExit(exit)
	if err != nil {
		return err
	}
	if err := n.exits.Add(wrapped); err != nil {
		return err
	}
	n.exitPushGossiper.Add(wrapped)
	return nil
}
