// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/luxfi/ids"

	"github.com/luxfi/lean/metrics"
	"github.com/luxfi/lean/types"
)

// Attestations is a bounded pool of recently seen signed attestations. It
// feeds gossip; the fork-choice store keeps the authoritative latest vote
// per validator, so evicting an old entry here loses nothing.
type Attestations struct {
	m    *metrics.Metrics
	pool *lru.Cache[ids.ID, *types.SignedAttestation]
}

func NewAttestations(m *metrics.Metrics, size int) (*Attestations, error) {
	pool, err := lru.New[ids.ID, *types.SignedAttestation](size)
	if err != nil {
		return nil, err
	}
	return &Attestations{m: m, pool: pool}, nil
}

// Add admits [att], returning its content root.
func (p *Attestations) Add(att *types.SignedAttestation) (ids.ID, error) {
	if err := att.SyntacticVerify(); err != nil {
		return ids.Empty, err
	}
	id, err := types.Root(att)
	if err != nil {
		return ids.Empty, err
	}
	p.pool.Add(id, att)
	p.m.SetAttestationPoolSize(p.pool.Len())
	return id, nil
}

func (p *Attestations) Has(id ids.ID) bool {
	return p.pool.Contains(id)
}

func (p *Attestations) Get(id ids.ID) (*types.SignedAttestation, bool) {
	return p.pool.Peek(id)
}

// Iterate visits pooled attestations, oldest first, until [f] returns false.
func (p *Attestations) Iterate(f func(ids.ID, *types.SignedAttestation) bool) {
	for _, id := range p.pool.Keys() {
		att, ok := p.pool.Peek(id)
		if !ok {
			continue
		}
		if !f(id, att) {
			return
		}
	}
}

func (p *Attestations) Len() int {
	return p.pool.Len()
}
