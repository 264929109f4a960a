// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	p2pgossip "github.com/luxfi/p2p/gossip"

	"github.com/luxfi/ids"
	"github.com/luxfi/metric"

	"github.com/luxfi/lean/forkchoice"
	"github.com/luxfi/lean/gossip"
	"github.com/luxfi/lean/mempool"
	"github.com/luxfi/lean/types"
)

const recentBlocksSize = 64

var (
	_ p2pgossip.Set[*Block]       = (*blockSet)(nil)
	_ p2pgossip.Set[*Attestation] = (*attestationSet)(nil)
	_ p2pgossip.Set[*Exit]        = (*exitSet)(nil)
)

// blockSet feeds block gossip: inbound blocks classify, then apply to the
// fork-choice store; a short LRU of recent blocks answers regossip reads.
type blockSet struct {
	validator *gossip.Validator
	store     *forkchoice.Store

	lock   sync.RWMutex
	recent *lru.Cache[ids.ID, *Block]
	bloom  *p2pgossip.BloomFilter
}

func newBlockSet(
	validator *gossip.Validator,
	store *forkchoice.Store,
	registerer metric.Registerer,
	cfg Config,
) (*blockSet, error) {
	recent, err := lru.New[ids.ID, *Block](recentBlocksSize)
	if err != nil {
		return nil, err
	}
	bloom, err := p2pgossip.NewBloomFilter(
		registerer,
		"block_bloom",
		cfg.ExpectedBloomFilterElements,
		cfg.ExpectedBloomFilterFalsePositiveProbability,
		cfg.MaxBloomFilterFalsePositiveProbability,
	)
	if err != nil {
		return nil, err
	}
	return &blockSet{
		validator: validator,
		store:     store,
		recent:    recent,
		bloom:     bloom,
	}, nil
}

func (s *blockSet) Add(b *Block) error {
	decision, err := s.validator.ValidateBlock(context.TODO(), b.SignedBlock)
	switch decision {
	case gossip.Accept:
	case gossip.Ignore:
		if errors.Is(err, forkchoice.ErrUnknownParent) {
			// The store buffers it until the parent arrives.
			_ = s.store.OnBlock(b.SignedBlock)
		}
		return err
	default:
		return err
	}

	if err := s.store.OnBlock(b.SignedBlock); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.recent.Add(b.GossipID(), b)
	s.bloom.Add(b)
	if _, err := p2pgossip.ResetBloomFilterIfNeeded(s.bloom, s.recent.Len()); err != nil {
		return err
	}
	return nil
}

func (s *blockSet) Has(gossipID ids.ID) bool {
	s.lock.RLock()
	if s.recent.Contains(gossipID) {
		s.lock.RUnlock()
		return true
	}
	s.lock.RUnlock()
	return s.store.HasBlock(gossipID)
}

func (s *blockSet) Iterate(f func(*Block) bool) {
	s.lock.RLock()
	blocks := s.recent.Values()
	s.lock.RUnlock()

	for _, b := range blocks {
		if !f(b) {
			return
		}
	}
}

func (s *blockSet) GetFilter() ([]byte, []byte) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.bloom.Marshal()
}

// attestationSet feeds attestation gossip: inbound votes classify, land in
// the fork-choice store's vote buffers and the bounded pool that answers
// pull requests.
type attestationSet struct {
	validator *gossip.Validator
	store     *forkchoice.Store
	pool      *mempool.Attestations

	lock  sync.RWMutex
	bloom *p2pgossip.BloomFilter
}

func newAttestationSet(
	validator *gossip.Validator,
	store *forkchoice.Store,
	pool *mempool.Attestations,
	registerer metric.Registerer,
	cfg Config,
) (*attestationSet, error) {
	bloom, err := p2pgossip.NewBloomFilter(
		registerer,
		"attestation_bloom",
		cfg.ExpectedBloomFilterElements,
		cfg.ExpectedBloomFilterFalsePositiveProbability,
		cfg.MaxBloomFilterFalsePositiveProbability,
	)
	if err != nil {
		return nil, err
	}
	return &attestationSet{
		validator: validator,
		store:     store,
		pool:      pool,
		bloom:     bloom,
	}, nil
}

func (s *attestationSet) Add(a *Attestation) error {
	decision, err := s.validator.ValidateAttestation(context.TODO(), a.SignedAttestation)
	switch decision {
	case gossip.Accept:
	case gossip.Ignore:
		if errors.Is(err, forkchoice.ErrUnknownTarget) || errors.Is(err, forkchoice.ErrFutureSlot) {
			// The store buffers these until they become applicable.
			_ = s.store.OnAttestation(a.SignedAttestation, false)
		}
		return err
	default:
		return err
	}

	if err := s.store.OnAttestation(a.SignedAttestation, false); err != nil {
		return err
	}
	if _, err := s.pool.Add(a.SignedAttestation); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.bloom.Add(a)
	if _, err := p2pgossip.ResetBloomFilterIfNeeded(s.bloom, s.pool.Len()); err != nil {
		return err
	}
	return nil
}

func (s *attestationSet) Has(gossipID ids.ID) bool {
	return s.pool.Has(gossipID)
}

func (s *attestationSet) Iterate(f func(*Attestation) bool) {
	s.pool.Iterate(func(id ids.ID, att *types.SignedAttestation) bool {
		return f(&Attestation{SignedAttestation: att, id: id})
	})
}

func (s *attestationSet) GetFilter() ([]byte, []byte) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.bloom.Marshal()
}

// exitSet feeds voluntary-exit gossip from the exit pool.
type exitSet struct {
	validator *gossip.Validator
	pool      *mempool.Exits

	lock  sync.RWMutex
	seen  *lru.Cache[ids.ID, struct{}]
	bloom *p2pgossip.BloomFilter
}

func newExitSet(
	validator *gossip.Validator,
	pool *mempool.Exits,
	registerer metric.Registerer,
	cfg Config,
) (*exitSet, error) {
	seen, err := lru.New[ids.ID, struct{}](cfg.ExpectedBloomFilterElements)
	if err != nil {
		return nil, err
	}
	bloom, err := p2pgossip.NewBloomFilter(
		registerer,
		"exit_bloom",
		cfg.ExpectedBloomFilterElements,
		cfg.ExpectedBloomFilterFalsePositiveProbability,
		cfg.MaxBloomFilterFalsePositiveProbability,
	)
	if err != nil {
		return nil, err
	}
	return &exitSet{
		validator: validator,
		pool:      pool,
		seen:      seen,
		bloom:     bloom,
	}, nil
}

func (s *exitSet) Add(e *Exit) error {
	decision, err := s.validator.ValidateExit(context.TODO(), e.SignedExit)
	if decision != gossip.Accept {
		return err
	}

	if err := s.pool.Add(e.SignedExit); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.seen.Add(e.GossipID(), struct{}{})
	s.bloom.Add(e)
	if _, err := p2pgossip.ResetBloomFilterIfNeeded(s.bloom, s.pool.Len()); err != nil {
		return err
	}
	return nil
}

func (s *exitSet) Has(gossipID ids.ID) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.seen.Contains(gossipID)
}

func (s *exitSet) Iterate(f func(*Exit) bool) {
	var stopped bool
	s.pool.Iterate(func(exit *types.SignedVoluntaryExit) bool {
		if stopped {
			return false
		}
		wrapped, err := NewExit(exit)
		if err != nil {
			return true
		}
		if !f(wrapped) {
			stopped = true
			return false
		}
		return true
	})
}

func (s *exitSet) GetFilter() ([]byte, []byte) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.bloom.Marshal()
}
