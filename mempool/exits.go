// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mempool holds operations waiting for inclusion in a block: signed
// voluntary exits and recently seen attestations.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/luxfi/lean/core"
	"github.com/luxfi/lean/metrics"
	"github.com/luxfi/lean/types"
)

const exitTreeDegree = 2

var (
	ErrDuplicateExit = errors.New("exit already in pool")
	ErrPoolFull      = errors.New("pool is full")
)

// exitEntry orders the pool by (epoch, validator index) so block producers
// drain the longest-waiting requests first.
type exitEntry struct {
	exit *types.SignedVoluntaryExit
}

func (e exitEntry) Less(o exitEntry) bool {
	if e.exit.Epoch != o.exit.Epoch {
		return e.exit.Epoch < o.exit.Epoch
	}
	return e.exit.ValidatorIndex < o.exit.ValidatorIndex
}

// Exits pools pending voluntary exits. One exit per validator index: a
// validator asks to leave once, so a second request is a duplicate no matter
// its epoch.
type Exits struct {
	m     *metrics.Metrics
	limit int

	lock    sync.RWMutex
	byIndex map[uint64]*types.SignedVoluntaryExit
	ordered *btree.BTreeG[exitEntry]
}

func NewExits(m *metrics.Metrics, limit int) *Exits {
	return &Exits{
		m:       m,
		limit:   limit,
		byIndex: make(map[uint64]*types.SignedVoluntaryExit),
		ordered: btree.NewG(exitTreeDegree, exitEntry.Less),
	}
}

// Add admits [exit] to the pool. Signature and eligibility checks belong to
// the gossip layer; the pool only enforces uniqueness and its size bound.
func (p *Exits) Add(exit *types.SignedVoluntaryExit) error {
	if err := exit.SyntacticVerify(); err != nil {
		return err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.byIndex[exit.ValidatorIndex]; ok {
		return fmt.Errorf("%w: validator %d", ErrDuplicateExit, exit.ValidatorIndex)
	}
	if len(p.byIndex) >= p.limit {
		return fmt.Errorf("%w: %d exits", ErrPoolFull, p.limit)
	}

	p.byIndex[exit.ValidatorIndex] = exit
	p.ordered.ReplaceOrInsert(exitEntry{exit: exit})
	p.m.SetExitPoolSize(len(p.byIndex))
	return nil
}

// Has reports whether the pool holds an exit for [index].
func (p *Exits) Has(index uint64) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	_, ok := p.byIndex[index]
	return ok
}

// Get returns the pooled exit for [index], if any.
func (p *Exits) Get(index uint64) (*types.SignedVoluntaryExit, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	exit, ok := p.byIndex[index]
	return exit, ok
}

// Pending returns every pooled exit in (epoch, index) order.
func (p *Exits) Pending() []*types.SignedVoluntaryExit {
	p.lock.RLock()
	defer p.lock.RUnlock()

	out := make([]*types.SignedVoluntaryExit, 0, p.ordered.Len())
	p.ordered.Ascend(func(e exitEntry) bool {
		out = append(out, e.exit)
		return true
	})
	return out
}

// Iterate visits pooled exits in (epoch, index) order until [f] returns
// false.
func (p *Exits) Iterate(f func(*types.SignedVoluntaryExit) bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	p.ordered.Ascend(func(e exitEntry) bool {
		return f(e.exit)
	})
}

// ForInclusion returns up to [max] pooled exits that still apply against
// [state], executed in pool order. Entries invalid against the state are
// dropped from the pool on the spot; they can never become valid again.
func (p *Exits) ForInclusion(state *core.State, max int) ([]*types.SignedVoluntaryExit, error) {
	registry, err := state.Registry()
	if err != nil {
		return nil, err
	}
	epoch := state.Slot.Epoch()
	rules := state.Params.ExitRules()

	p.lock.Lock()
	defer p.lock.Unlock()

	var (
		picked  []*types.SignedVoluntaryExit
		expired []uint64
	)
	p.ordered.Ascend(func(e exitEntry) bool {
		if len(picked) == max {
			return false
		}
		next, err := registry.ApplyExit(&e.exit.VoluntaryExit, epoch, rules)
		if err != nil {
			expired = append(expired, e.exit.ValidatorIndex)
			return true
		}
		registry = next
		picked = append(picked, e.exit)
		return true
	})

	for _, index := range expired {
		p.remove(index)
	}
	p.m.SetExitPoolSize(len(p.byIndex))
	return picked, nil
}

// MarkIncluded drops exits that made it into an accepted block.
func (p *Exits) MarkIncluded(exits []*types.SignedVoluntaryExit) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, exit := range exits {
		p.remove(exit.ValidatorIndex)
	}
	p.m.SetExitPoolSize(len(p.byIndex))
}

func (p *Exits) remove(index uint64) {
	exit, ok := p.byIndex[index]
	if !ok {
		return
	}
	delete(p.byIndex, index)
	p.ordered.Delete(exitEntry{exit: exit})
}

func (p *Exits) Len() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return len(p.byIndex)
}
