// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package forkchoice

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/lean/types"
)

type pendingEntry[T any] struct {
	item  T
	added types.Slot
}

// pending buffers messages waiting on a missing root. Buckets are FIFO per
// root; the whole buffer is bounded, evicting the oldest entry first, and
// entries that wait past their TTL expire. Adversarial dangling references
// therefore cost bounded memory.
type pending[T any] struct {
	limit int
	ttl   uint64

	byRoot map[ids.ID][]pendingEntry[T]
	count  int
}

func newPending[T any](limit int, ttl uint64) *pending[T] {
	return &pending[T]{
		limit:  limit,
		ttl:    ttl,
		byRoot: make(map[ids.ID][]pendingEntry[T]),
	}
}

func (p *pending[T]) add(root ids.ID, item T, now types.Slot) {
	if p.count >= p.limit {
		p.evictOldest()
	}
	p.byRoot[root] = append(p.byRoot[root], pendingEntry[T]{item: item, added: now})
	p.count++
}

// take removes and returns the bucket for [root] in insertion order.
func (p *pending[T]) take(root ids.ID) []T {
	bucket, ok := p.byRoot[root]
	if !ok {
		return nil
	}
	delete(p.byRoot, root)
	p.count -= len(bucket)

	items := make([]T, len(bucket))
	for i, e := range bucket {
		items[i] = e.item
	}
	return items
}

// drop discards the bucket for [root] without returning it.
func (p *pending[T]) drop(root ids.ID) {
	if bucket, ok := p.byRoot[root]; ok {
		p.count -= len(bucket)
		delete(p.byRoot, root)
	}
}

// expire discards entries added more than ttl slots before [now].
func (p *pending[T]) expire(now types.Slot) {
	if uint64(now) < p.ttl {
		return
	}
	cutoff := types.Slot(uint64(now) - p.ttl)
	for root, bucket := range p.byRoot {
		kept := bucket[:0]
		for _, e := range bucket {
			if e.added >= cutoff {
				kept = append(kept, e)
			}
		}
		p.count -= len(bucket) - len(kept)
		if len(kept) == 0 {
			delete(p.byRoot, root)
			continue
		}
		p.byRoot[root] = kept
	}
}

func (p *pending[T]) evictOldest() {
	var (
		oldestRoot ids.ID
		oldestSlot types.Slot
		found      bool
	)
	for root, bucket := range p.byRoot {
		if !found || bucket[0].added < oldestSlot {
			oldestRoot = root
			oldestSlot = bucket[0].added
			found = true
		}
	}
	if !found {
		return
	}
	bucket := p.byRoot[oldestRoot]
	if len(bucket) == 1 {
		delete(p.byRoot, oldestRoot)
	} else {
		p.byRoot[oldestRoot] = bucket[1:]
	}
	p.count--
}

func (p *pending[T]) len() int {
	return p.count
}
