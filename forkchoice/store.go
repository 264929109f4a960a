// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package forkchoice tracks the block tree and selects the canonical head.
// The Store is the single writer over shared consensus state: every mutation
// (blocks, attestations, ticks) serializes through one lock, while reads are
// served against the snapshot the lock guards.
package forkchoice

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/lean/config"
	"github.com/luxfi/lean/core"
	"github.com/luxfi/lean/crypto/leansig"
	"github.com/luxfi/lean/metrics"
	"github.com/luxfi/lean/state"
	"github.com/luxfi/lean/types"
)

var (
	ErrUnknownParent = errors.New("unknown parent")
	ErrUnknownTarget = errors.New("unknown target")
	ErrFutureSlot    = errors.New("slot is ahead of the local clock")
	ErrUnknownBlock  = errors.New("unknown block")
)

// node is one entry of the block tree. The tree is rooted at the latest
// finalized block; everything else is pruned.
type node struct {
	root   ids.ID
	parent ids.ID
	slot   types.Slot
}

// vote is a validator's latest attestation. Votes unpacked from block bodies
// carry no individual signature; they weigh on fork choice but can never be
// re-packed into a proposal.
type vote struct {
	data      types.AttestationData
	signature [leansig.SignatureLen]byte
	signed    bool
}

// Store is the fork-choice state machine.
type Store struct {
	log log.Logger
	cfg config.Config
	m   *metrics.Metrics
	db  *state.Store

	mu sync.RWMutex

	genesisRoot ids.ID
	nodes       map[ids.ID]*node
	children    map[ids.ID][]ids.ID

	head       types.Checkpoint
	safeTarget types.Checkpoint
	justified  types.Checkpoint
	finalized  types.Checkpoint

	// latestKnown feeds head selection; latestNew buffers gossip votes
	// until the accept-votes interval so a burst of attestations cannot
	// flap the head mid-slot.
	latestKnown map[uint64]*vote
	latestNew   map[uint64]*vote

	pendingBlocks *pending[*types.SignedBlock]
	pendingVotes  *pending[*types.SignedAttestation]
	futureVotes   map[types.Slot][]*types.SignedAttestation
	futureCount   int

	currentSlot     types.Slot
	currentInterval types.Interval
}

// New opens the store over [db]. A fresh database is seeded with the genesis
// anchor derived from [genesis]; an initialized one is replayed from disk and
// [genesis] must describe the same chain.
func New(
	logger log.Logger,
	cfg config.Config,
	db *state.Store,
	m *metrics.Metrics,
	genesis *core.State,
) (*Store, error) {
	s := &Store{
		log:           logger,
		cfg:           cfg,
		m:             m,
		db:            db,
		nodes:         make(map[ids.ID]*node),
		children:      make(map[ids.ID][]ids.ID),
		latestKnown:   make(map[uint64]*vote),
		latestNew:     make(map[uint64]*vote),
		pendingBlocks: newPending[*types.SignedBlock](cfg.PendingBlocksLimit, cfg.PendingTTLSlots),
		pendingVotes:  newPending[*types.SignedAttestation](cfg.PendingBlocksLimit, cfg.PendingTTLSlots),
		futureVotes:   make(map[types.Slot][]*types.SignedAttestation),
	}

	initialized, err := db.IsInitialized()
	if err != nil {
		return nil, err
	}
	if initialized {
		return s, s.load()
	}
	return s, s.bootstrap(genesis)
}

func (s *Store) bootstrap(genesis *core.State) error {
	genesisBlock, err := core.GenesisBlock(genesis)
	if err != nil {
		return err
	}
	root, err := genesisBlock.Root()
	if err != nil {
		return err
	}

	s.genesisRoot = root
	s.nodes[root] = &node{root: root, slot: 0}
	anchor := types.Checkpoint{Root: root, Slot: 0}
	s.head = anchor
	s.safeTarget = anchor
	s.justified = anchor
	s.finalized = anchor

	if err := s.db.PutState(root, genesis); err != nil {
		return err
	}
	if err := s.persistCheckpoints(); err != nil {
		return err
	}
	if err := s.db.SetGenesis(root); err != nil {
		return err
	}
	if err := s.db.MarkInitialized(); err != nil {
		return err
	}
	if err := s.db.Commit(); err != nil {
		return err
	}

	s.log.Info("initialized fork choice at genesis",
		log.Stringer("root", root),
	)
	return nil
}

// load rebuilds the tree from disk: the genesis anchor, then every stored
// block in slot order, unpacking block-carried votes along the way.
func (s *Store) load() error {
	root, err := s.db.GetGenesis()
	if err != nil {
		return err
	}
	s.genesisRoot = root
	s.nodes[root] = &node{root: root, slot: 0}

	if s.justified, err = s.db.GetJustified(); err != nil {
		return err
	}
	if s.finalized, err = s.db.GetFinalized(); err != nil {
		return err
	}

	blocks, err := s.db.Blocks()
	if err != nil {
		return err
	}
	for _, sb := range blocks {
		blockRoot, err := sb.Block.Root()
		if err != nil {
			return err
		}
		s.insert(blockRoot, sb.Block)
		if err := s.unpackVotes(sb.Block); err != nil {
			return err
		}
	}

	if err := s.recomputeHead(); err != nil {
		return err
	}
	s.log.Info("replayed fork choice from disk",
		log.Int("blocks", len(blocks)),
		log.Stringer("head", s.head.Root),
		log.Uint64("finalizedSlot", uint64(s.finalized.Slot)),
	)
	return nil
}

// OnBlock applies a gossip block: full signature verification, then the
// state transition, then tree insertion. Blocks whose parent is not yet
// known are buffered and retried when the parent lands.
func (s *Store) OnBlock(sb *types.SignedBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onBlock(sb, true)
}

// OnLocalBlock applies a block this node assembled and signed itself, so
// signature verification is skipped.
func (s *Store) OnLocalBlock(sb *types.SignedBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onBlock(sb, false)
}

func (s *Store) onBlock(sb *types.SignedBlock, verifySigs bool) error {
	if err := sb.SyntacticVerify(); err != nil {
		return err
	}
	block := sb.Block
	root, err := block.Root()
	if err != nil {
		return err
	}
	if _, ok := s.nodes[root]; ok {
		return nil
	}
	// One slot of tolerance absorbs clock drift between peers.
	if block.Slot > s.currentSlot+1 {
		return fmt.Errorf("%w: block slot %d, local slot %d",
			ErrFutureSlot, block.Slot, s.currentSlot)
	}

	if _, ok := s.nodes[block.ParentRoot]; !ok {
		s.pendingBlocks.add(block.ParentRoot, sb, s.currentSlot)
		s.m.SetPendingBlocks(s.pendingBlocks.len())
		return fmt.Errorf("%w: block %s waits for parent %s",
			ErrUnknownParent, root, block.ParentRoot)
	}

	parentState, err := s.db.GetState(block.ParentRoot)
	if err != nil {
		return err
	}
	post, err := core.Transition(parentState, sb, verifySigs)
	if err != nil {
		s.m.MarkBlockRejected()
		return err
	}

	if err := s.db.PutBlock(root, sb, post); err != nil {
		return err
	}
	s.insert(root, block)
	if err := s.unpackVotes(block); err != nil {
		return err
	}
	if err := s.onCheckpoints(post); err != nil {
		return err
	}
	if err := s.recomputeHead(); err != nil {
		return err
	}
	if err := s.persistCheckpoints(); err != nil {
		return err
	}
	if err := s.db.Commit(); err != nil {
		return err
	}
	s.m.MarkBlockProcessed()

	s.log.Debug("applied block",
		log.Stringer("root", root),
		log.Uint64("slot", uint64(block.Slot)),
		log.Uint64("proposer", block.Proposer),
	)

	// The new root may unblock buffered children and attestations.
	s.retryPending(root)
	return nil
}

func (s *Store) insert(root ids.ID, block *types.Block) {
	s.nodes[root] = &node{
		root:   root,
		parent: block.ParentRoot,
		slot:   block.Slot,
	}
	s.children[block.ParentRoot] = append(s.children[block.ParentRoot], root)
}

// unpackVotes folds a block's aggregates into the known vote set. These
// carry no individual signatures, yet they still move fork-choice weight.
func (s *Store) unpackVotes(block *types.Block) error {
	for _, att := range block.Body.Attestations {
		indices, err := att.AttesterIndices()
		if err != nil {
			return err
		}
		for _, index := range indices {
			s.applyKnownVote(index, &vote{data: att.Data})
		}
	}
	return nil
}

func (s *Store) retryPending(root ids.ID) {
	for _, sb := range s.pendingBlocks.take(root) {
		if err := s.onBlock(sb, true); err != nil {
			s.log.Debug("buffered block still not applicable",
				log.Stringer("parent", root),
				log.Err(err),
			)
		}
	}
	for _, att := range s.pendingVotes.take(root) {
		if err := s.onAttestation(att, false); err != nil {
			s.log.Debug("buffered attestation still not applicable",
				log.Stringer("target", root),
				log.Err(err),
			)
		}
	}
	s.m.SetPendingBlocks(s.pendingBlocks.len())
	s.m.SetPendingAttestations(s.pendingVotes.len())
}

// OnAttestation records a vote. Gossip votes ([fromBlock] false) land in the
// buffered new set; block-carried votes update the known set immediately.
// Unknown target or source roots buffer the attestation for retry; future
// slots buffer it until the slot's tick.
func (s *Store) OnAttestation(att *types.SignedAttestation, fromBlock bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onAttestation(att, fromBlock)
}

func (s *Store) onAttestation(att *types.SignedAttestation, fromBlock bool) error {
	if err := att.SyntacticVerify(); err != nil {
		return err
	}
	data := att.Data

	if !fromBlock && data.Slot > s.currentSlot {
		s.bufferFutureVote(att)
		return fmt.Errorf("%w: attestation slot %d, local slot %d",
			ErrFutureSlot, data.Slot, s.currentSlot)
	}
	if _, ok := s.nodes[data.Target.Root]; !ok {
		s.pendingVotes.add(data.Target.Root, att, s.currentSlot)
		s.m.SetPendingAttestations(s.pendingVotes.len())
		return fmt.Errorf("%w: attestation targets %s", ErrUnknownTarget, data.Target.Root)
	}
	if data.Source.Root != ids.Empty {
		if _, ok := s.nodes[data.Source.Root]; !ok {
			s.pendingVotes.add(data.Source.Root, att, s.currentSlot)
			s.m.SetPendingAttestations(s.pendingVotes.len())
			return fmt.Errorf("%w: attestation sources %s", ErrUnknownTarget, data.Source.Root)
		}
	}

	v := &vote{
		data:      data,
		signature: att.Signature,
		signed:    !fromBlock,
	}
	if fromBlock {
		s.applyKnownVote(att.Attester, v)
		return s.recomputeHead()
	}

	if cur, ok := s.latestNew[att.Attester]; !ok || data.Slot > cur.data.Slot {
		s.latestNew[att.Attester] = v
		s.m.MarkVoteNew()
	}
	return nil
}

// applyKnownVote updates the known vote set if [v] is newer, purging any
// buffered vote it supersedes.
func (s *Store) applyKnownVote(index uint64, v *vote) {
	if cur, ok := s.latestKnown[index]; ok && v.data.Slot <= cur.data.Slot {
		return
	}
	s.latestKnown[index] = v
	s.m.MarkVoteKnown()
	if buffered, ok := s.latestNew[index]; ok && buffered.data.Slot <= v.data.Slot {
		delete(s.latestNew, index)
	}
}

// acceptNewVotes drains the buffered vote set into the known set.
func (s *Store) acceptNewVotes() error {
	if len(s.latestNew) == 0 {
		return nil
	}
	for index, v := range s.latestNew {
		if cur, ok := s.latestKnown[index]; !ok || v.data.Slot > cur.data.Slot {
			s.latestKnown[index] = v
		}
		delete(s.latestNew, index)
	}
	return s.recomputeHead()
}

func (s *Store) bufferFutureVote(att *types.SignedAttestation) {
	if s.futureCount >= s.cfg.PendingBlocksLimit {
		return
	}
	s.futureVotes[att.Data.Slot] = append(s.futureVotes[att.Data.Slot], att)
	s.futureCount++
}

// Tick advances the store's view of consensus time. Interval duties:
// the safe target refreshes at t2 and buffered votes are accepted at t3.
// Buffered future attestations whose slot arrived are replayed, and
// long-expired pending entries are dropped.
func (s *Store) Tick(slot types.Slot, interval types.Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentSlot = slot
	s.currentInterval = interval

	for due, atts := range s.futureVotes {
		if due > slot {
			continue
		}
		delete(s.futureVotes, due)
		s.futureCount -= len(atts)
		for _, att := range atts {
			if err := s.onAttestation(att, false); err != nil {
				s.log.Debug("future attestation still not applicable",
					log.Uint64("slot", uint64(due)),
					log.Err(err),
				)
			}
		}
	}

	switch interval {
	case types.IntervalSafeTarget:
		if err := s.updateSafeTarget(); err != nil {
			s.log.Error("safe target update failed", log.Err(err))
		}
	case types.IntervalAcceptVotes:
		if err := s.acceptNewVotes(); err != nil {
			s.log.Error("vote acceptance failed", log.Err(err))
		}
	}

	s.pendingBlocks.expire(slot)
	s.pendingVotes.expire(slot)
	s.m.SetPendingBlocks(s.pendingBlocks.len())
	s.m.SetPendingAttestations(s.pendingVotes.len())
}

func (s *Store) onCheckpoints(post *core.State) error {
	if post.LatestJustified.Slot > s.justified.Slot {
		s.justified = post.LatestJustified
		s.m.SetJustified(s.justified.Slot)
		s.log.Info("justified checkpoint advanced",
			log.Stringer("checkpoint", s.justified),
		)
	}
	if post.LatestFinalized.Slot > s.finalized.Slot {
		if err := s.finalize(post.LatestFinalized); err != nil {
			return err
		}
	}
	return nil
}

// finalize moves the tree root to [cp] and prunes everything that does not
// descend from it. Irreversible.
func (s *Store) finalize(cp types.Checkpoint) error {
	s.finalized = cp
	s.m.SetFinalized(cp.Slot)

	keep := make(map[ids.ID]struct{}, len(s.nodes))
	stack := []ids.ID{cp.Root}
	for len(stack) > 0 {
		root := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		keep[root] = struct{}{}
		stack = append(stack, s.children[root]...)
	}

	pruned := 0
	for root, n := range s.nodes {
		if _, ok := keep[root]; ok {
			continue
		}
		delete(s.nodes, root)
		delete(s.children, root)
		s.pendingBlocks.drop(root)
		s.pendingVotes.drop(root)
		if root != s.genesisRoot {
			if err := s.db.DeleteBlock(root, n.slot); err != nil {
				return err
			}
		}
		pruned++
	}
	// Votes for pruned branches can never weigh on the head again.
	for index, v := range s.latestKnown {
		if _, ok := s.nodes[v.data.Target.Root]; !ok {
			delete(s.latestKnown, index)
		}
	}
	for index, v := range s.latestNew {
		if _, ok := s.nodes[v.data.Target.Root]; !ok {
			delete(s.latestNew, index)
		}
	}

	s.m.MarkBlocksPruned(pruned)
	s.log.Info("finalized checkpoint advanced",
		log.Stringer("checkpoint", cp),
		log.Int("pruned", pruned),
	)
	return nil
}

func (s *Store) persistCheckpoints() error {
	if err := s.db.SetHead(s.head); err != nil {
		return err
	}
	if err := s.db.SetJustified(s.justified); err != nil {
		return err
	}
	return s.db.SetFinalized(s.finalized)
}

// Head returns the canonical head checkpoint.
func (s *Store) Head() types.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

// Justified returns the latest justified checkpoint.
func (s *Store) Justified() types.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.justified
}

// Finalized returns the latest finalized checkpoint.
func (s *Store) Finalized() types.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalized
}

// SafeTarget returns the current safe attestation target.
func (s *Store) SafeTarget() types.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.safeTarget
}

// CurrentSlot returns the slot of the last tick.
func (s *Store) CurrentSlot() types.Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSlot
}

// HasBlock reports whether [root] is in the tree.
func (s *Store) HasBlock(root ids.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[root]
	return ok
}

// GetBlock returns the stored block at [root].
func (s *Store) GetBlock(root ids.ID) (*types.SignedBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[root]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, root)
	}
	return s.db.GetBlock(root)
}

// BlockAtSlot returns the canonical block root at [slot], walking the head's
// ancestry. Empty slots report false.
func (s *Store) BlockAtSlot(slot types.Slot) (ids.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := s.head.Root
	for {
		n, ok := s.nodes[root]
		if !ok || n.slot < slot {
			return ids.Empty, false
		}
		if n.slot == slot {
			return root, true
		}
		root = n.parent
	}
}

// HeadState returns the post-state of the canonical head. The state is
// shared with the cache; callers must copy before mutating.
func (s *Store) HeadState() (*core.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.GetState(s.head.Root)
}

// ProposalHead accepts all buffered votes and returns the head a proposal
// for [slot] should build on, so the proposer sees the freshest vote view.
func (s *Store) ProposalHead(slot types.Slot) (types.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentSlot = slot
	if err := s.acceptNewVotes(); err != nil {
		return types.Checkpoint{}, err
	}
	return s.head, nil
}

// CollectVotes returns the freshest signed attestations building on
// [source], in attester order. Only gossip-received votes qualify: votes
// unpacked from blocks carry no individual signature to re-aggregate.
func (s *Store) CollectVotes(source types.Checkpoint) []*types.SignedAttestation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	picked := make(map[uint64]*vote)
	for index, v := range s.latestKnown {
		if v.signed && v.data.Source == source {
			picked[index] = v
		}
	}
	for index, v := range s.latestNew {
		if !v.signed || v.data.Source != source {
			continue
		}
		if cur, ok := picked[index]; !ok || v.data.Slot > cur.data.Slot {
			picked[index] = v
		}
	}

	indices := make([]uint64, 0, len(picked))
	for index := range picked {
		indices = append(indices, index)
	}
	slices.Sort(indices)

	out := make([]*types.SignedAttestation, len(indices))
	for i, index := range indices {
		v := picked[index]
		out[i] = &types.SignedAttestation{
			Attestation: types.Attestation{
				Attester: index,
				Data:     v.data,
			},
			Signature: v.signature,
		}
	}
	return out
}
