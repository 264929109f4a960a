// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package node assembles the consensus engine, gossip transport, duty
// production and the HTTP surface into one runnable service. The node owns
// consensus time: a single loop derives interval ticks from the clock and
// drives the store and the validator client, so duties and vote acceptance
// never race each other.
package node

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/pubsub"
	"github.com/luxfi/warp"

	"github.com/luxfi/lean/config"
	"github.com/luxfi/lean/core"
	"github.com/luxfi/lean/forkchoice"
	"github.com/luxfi/lean/gossip"
	"github.com/luxfi/lean/keystore"
	"github.com/luxfi/lean/mempool"
	"github.com/luxfi/lean/metrics"
	"github.com/luxfi/lean/network"
	"github.com/luxfi/lean/state"
	"github.com/luxfi/lean/types"
	"github.com/luxfi/lean/utils/timer/mockable"
	"github.com/luxfi/lean/validator"
	leanvalidators "github.com/luxfi/lean/validators"
)

// Node is the running service.
type Node struct {
	log     log.Logger
	cfg     config.Config
	nodeCfg Config

	clock mockable.Clock

	db      *state.Store
	store   *forkchoice.Store
	network *network.Network
	vc      *validator.Client // nil without local keys
	events  *pubsub.Server

	httpServer *http.Server
	listener   net.Listener

	cancel   context.CancelFunc
	loopDone chan struct{}

	// lastHead and lastFinalized track what has already been published to
	// /events subscribers. Only the tick loop touches them.
	lastHead      types.Checkpoint
	lastFinalized types.Checkpoint

	tickedSlot     types.Slot
	tickedInterval types.Interval
	ticked         bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// New wires a node over [db]. A fresh database is seeded from [genesis].
// When [keys] holds signers for registered validators, the node produces
// their proposals and attestations.
func New(
	logger log.Logger,
	cfg config.Config,
	nodeCfg Config,
	db database.Database,
	genesis *core.State,
	keys *keystore.Keystore,
	nodeID ids.NodeID,
	netID ids.ID,
	appSender warp.Sender,
) (*Node, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}

	gatherer := metric.NewMultiGatherer()
	consensusRegistry, err := metric.MakeAndRegister(gatherer, "lean")
	if err != nil {
		return nil, err
	}
	dbRegistry, err := metric.MakeAndRegister(gatherer, "db")
	if err != nil {
		return nil, err
	}
	networkRegistry, err := metric.MakeAndRegister(gatherer, "network")
	if err != nil {
		return nil, err
	}

	m, err := metrics.New(consensusRegistry)
	if err != nil {
		return nil, err
	}
	stateStore, err := state.New(db, dbRegistry)
	if err != nil {
		return nil, err
	}
	store, err := forkchoice.New(logger, cfg, stateStore, m, genesis)
	if err != nil {
		return nil, err
	}

	exitPool := mempool.NewExits(m, nodeCfg.ExitPoolSize)
	attestationPool, err := mempool.NewAttestations(m, nodeCfg.AttestationPoolSize)
	if err != nil {
		return nil, err
	}
	gossipValidator := gossip.NewValidator(logger, m, store, exitPool)

	net, err := network.New(
		logger,
		nodeID,
		netID,
		leanvalidators.NewState(netID, storeSource{store: store}),
		gossipValidator,
		store,
		attestationPool,
		exitPool,
		appSender,
		networkRegistry,
		nodeCfg.Network,
	)
	if err != nil {
		return nil, err
	}

	n := &Node{
		log:           logger,
		cfg:           cfg,
		nodeCfg:       nodeCfg,
		db:            stateStore,
		store:         store,
		network:       net,
		events:        pubsub.New(logger),
		loopDone:      make(chan struct{}),
		lastHead:      store.Head(),
		lastFinalized: store.Finalized(),
	}

	if keys != nil && keys.Len() > 0 {
		n.vc = validator.New(logger, cfg, m, store, exitPool, keys, net)
		logger.Info("validator client enabled",
			log.Int("keys", keys.Len()),
		)
	}

	handler, err := n.newHTTPHandler(gatherer, nodeID)
	if err != nil {
		return nil, err
	}
	n.httpServer = &http.Server{
		Handler:           handler,
		ReadTimeout:       nodeCfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: nodeCfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      nodeCfg.HTTP.WriteTimeout,
		IdleTimeout:       nodeCfg.HTTP.IdleTimeout,
	}
	return n, nil
}

// Start binds the HTTP listener and launches the interval loop and the
// gossip drivers. It does not block; use Dispatch to serve requests.
func (n *Node) Start() error {
	listener, err := net.Listen("tcp", n.nodeCfg.HTTP.Addr)
	if err != nil {
		return err
	}
	n.listener = listener

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	go n.network.PushGossip(ctx)
	go n.network.PullGossip(ctx)
	go n.run(ctx)

	n.log.Info("node started",
		log.Stringer("head", n.store.Head()),
		log.String("httpAddr", listener.Addr().String()),
	)
	return nil
}

// Dispatch serves the HTTP API until Shutdown.
func (n *Node) Dispatch() error {
	return n.httpServer.Serve(n.listener)
}

// HTTPAddr returns the bound listen address. Only valid after Start.
func (n *Node) HTTPAddr() string {
	return n.listener.Addr().String()
}

// Shutdown stops duty scheduling, waits for the tick loop to drain, stops
// the HTTP server, commits the database and closes it.
func (n *Node) Shutdown() error {
	n.shutdownOnce.Do(func() {
		if n.cancel != nil {
			n.cancel()
			<-n.loopDone
		}

		ctx, cancel := context.WithTimeout(context.Background(), n.nodeCfg.HTTP.ShutdownTimeout)
		err := n.httpServer.Shutdown(ctx)
		cancel()
		// A timed-out shutdown still must release the listener.
		_ = n.httpServer.Close()

		n.shutdownErr = errors.Join(err, n.db.Commit(), n.db.Close())
		n.log.Info("node stopped")
	})
	return n.shutdownErr
}

// run fires a tick at every interval boundary until the context ends.
func (n *Node) run(ctx context.Context) {
	defer close(n.loopDone)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := n.clock.Time()
		if genesis := n.cfg.SlotStart(0); now.Before(genesis) {
			timer.Reset(genesis.Sub(now))
			continue
		}
		n.tick()

		now = n.clock.Time()
		slot, interval := n.cfg.IntervalAtTime(now)
		next := n.cfg.IntervalStart(slot, interval).Add(n.cfg.IntervalDuration())
		timer.Reset(next.Sub(now))
	}
}

// tick advances consensus time to the clock's current interval, replaying
// any boundary a slow timer skipped so safe-target refresh and vote
// acceptance are never missed. A gap of more than one slot jumps straight
// to the current slot.
func (n *Node) tick() {
	now := n.clock.Time()
	if now.Before(n.cfg.SlotStart(0)) {
		return
	}
	slot, interval := n.cfg.IntervalAtTime(now)

	if !n.ticked {
		n.ticked = true
		n.tickedSlot, n.tickedInterval = slot, interval
		n.onInterval(slot, interval)
		return
	}
	if slot < n.tickedSlot || (slot == n.tickedSlot && interval <= n.tickedInterval) {
		return
	}

	fromSlot, fromInterval := n.tickedSlot, n.tickedInterval
	if slot > fromSlot+1 {
		fromSlot, fromInterval = slot-1, interval
	}
	for fromSlot != slot || fromInterval != interval {
		fromSlot, fromInterval = nextInterval(fromSlot, fromInterval)
		n.onInterval(fromSlot, fromInterval)
	}
	n.tickedSlot, n.tickedInterval = slot, interval
}

func nextInterval(slot types.Slot, interval types.Interval) (types.Slot, types.Interval) {
	if interval == types.IntervalsPerSlot-1 {
		return slot + 1, 0
	}
	return slot, interval + 1
}

func (n *Node) onInterval(slot types.Slot, interval types.Interval) {
	n.store.Tick(slot, interval)
	if n.vc != nil {
		n.vc.OnInterval(slot, interval)
	}
	n.publishEvents()

	if interval == types.IntervalPropose {
		n.log.Info("slot started",
			log.Uint64("slot", uint64(slot)),
			log.Stringer("head", n.store.Head()),
			log.Stringer("justified", n.store.Justified()),
			log.Stringer("finalized", n.store.Finalized()),
		)
	}
}

// publishEvents pushes head and finality changes to /events subscribers.
func (n *Node) publishEvents() {
	if head := n.store.Head(); head != n.lastHead {
		n.lastHead = head
		n.publishHead(head)
	}
	if finalized := n.store.Finalized(); finalized != n.lastFinalized {
		n.lastFinalized = finalized
		n.events.Publish(NewCheckpointFilterer(finalized))
	}
}

func (n *Node) publishHead(head types.Checkpoint) {
	sb, err := n.store.GetBlock(head.Root)
	if err != nil {
		n.log.Debug("head block unavailable for event",
			log.Stringer("root", head.Root),
			log.Err(err),
		)
		return
	}

	headState, err := n.store.HeadState()
	if err != nil {
		return
	}
	registry, err := headState.Registry()
	if err != nil {
		return
	}
	proposer, ok := registry.Lookup(sb.Block.Proposer)
	if !ok {
		return
	}
	n.events.Publish(NewBlockFilterer(head.Root, sb.Block, proposer.PublicKey))
}

// storeSource serves the peer sampler the registry of the current head.
type storeSource struct {
	store *forkchoice.Store
}

func (s storeSource) Registry() (*leanvalidators.Registry, types.Slot) {
	head := s.store.Head()
	headState, err := s.store.HeadState()
	if err != nil {
		return nil, head.Slot
	}
	registry, err := headState.Registry()
	if err != nil {
		return nil, head.Slot
	}
	return registry, head.Slot
}
