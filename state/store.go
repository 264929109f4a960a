// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists the block tree and its post-states. All writes
// land in a versiondb and stay in memory until Commit, so a crash between
// commits never leaves a half-written tree.
package state

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/luxfi/cache"
	"github.com/luxfi/cache/lru"
	"github.com/luxfi/cache/metercacher"
	"github.com/luxfi/database"
	"github.com/luxfi/database/linkeddb"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/metric"

	"github.com/luxfi/lean/core"
	"github.com/luxfi/lean/types"
)

const (
	blockCacheSize = 2048
	stateCacheSize = 64
)

var (
	BlockPrefix     = []byte("block")
	StatePrefix     = []byte("blockState")
	SlotIndexPrefix = []byte("slotIndex")
	SingletonPrefix = []byte("singleton")

	HeadKey        = []byte("head")
	JustifiedKey   = []byte("justified")
	FinalizedKey   = []byte("finalized")
	GenesisKey     = []byte("genesis")
	InitializedKey = []byte("initialized")
)

// Store is the durable side of the fork-choice store.
type Store struct {
	baseDB *versiondb.Database

	// root -> signed block bytes
	blockDB    database.Database
	blockCache cache.Cacher[ids.ID, *types.SignedBlock]

	// root -> post-state bytes
	stateDB    database.Database
	stateCache cache.Cacher[ids.ID, *core.State]

	// (slot, root) -> nil; orders Load and prune sweeps
	slotIndex linkeddb.LinkedDB

	singletonDB database.Database
}

func New(db database.Database, reg metric.Registry) (*Store, error) {
	blockCache, err := metercacher.New[ids.ID, *types.SignedBlock](
		"block_cache",
		reg,
		lru.NewCache[ids.ID, *types.SignedBlock](blockCacheSize),
	)
	if err != nil {
		return nil, err
	}
	stateCache, err := metercacher.New[ids.ID, *core.State](
		"state_cache",
		reg,
		lru.NewCache[ids.ID, *core.State](stateCacheSize),
	)
	if err != nil {
		return nil, err
	}

	baseDB := versiondb.New(db)
	return &Store{
		baseDB:      baseDB,
		blockDB:     prefixdb.New(BlockPrefix, baseDB),
		blockCache:  blockCache,
		stateDB:     prefixdb.New(StatePrefix, baseDB),
		stateCache:  stateCache,
		slotIndex:   linkeddb.NewDefault(prefixdb.New(SlotIndexPrefix, baseDB)),
		singletonDB: prefixdb.New(SingletonPrefix, baseDB),
	}, nil
}

// PutState stores a post-state with no block. Only the genesis anchor needs
// this: it is never gossiped, so there is no signed block to keep.
func (s *Store) PutState(root ids.ID, st *core.State) error {
	stateBytes, err := st.Bytes()
	if err != nil {
		return err
	}
	if err := s.stateDB.Put(root[:], stateBytes); err != nil {
		return err
	}
	s.stateCache.Put(root, st)
	return nil
}

// PutBlock stores [sb] and its post-state under the block's root.
func (s *Store) PutBlock(root ids.ID, sb *types.SignedBlock, post *core.State) error {
	blockBytes, err := sb.Bytes()
	if err != nil {
		return err
	}
	stateBytes, err := post.Bytes()
	if err != nil {
		return err
	}

	if err := s.slotIndex.Put(slotKey(sb.Block.Slot, root), nil); err != nil {
		return err
	}
	if err := s.blockDB.Put(root[:], blockBytes); err != nil {
		return err
	}
	if err := s.stateDB.Put(root[:], stateBytes); err != nil {
		return err
	}
	s.blockCache.Put(root, sb)
	s.stateCache.Put(root, post)
	return nil
}

// DeleteBlock removes a pruned block and its state.
func (s *Store) DeleteBlock(root ids.ID, slot types.Slot) error {
	s.blockCache.Evict(root)
	s.stateCache.Evict(root)
	if err := s.slotIndex.Delete(slotKey(slot, root)); err != nil {
		return err
	}
	if err := s.blockDB.Delete(root[:]); err != nil {
		return err
	}
	return s.stateDB.Delete(root[:])
}

func (s *Store) GetBlock(root ids.ID) (*types.SignedBlock, error) {
	if sb, cached := s.blockCache.Get(root); cached {
		if sb == nil {
			return nil, database.ErrNotFound
		}
		return sb, nil
	}

	b, err := s.blockDB.Get(root[:])
	if err == database.ErrNotFound {
		s.blockCache.Put(root, nil)
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sb, err := types.ParseSignedBlock(b)
	if err != nil {
		return nil, err
	}
	s.blockCache.Put(root, sb)
	return sb, nil
}

// GetState returns the post-state of the block at [root]. The returned
// state is shared; callers must copy before mutating.
func (s *Store) GetState(root ids.ID) (*core.State, error) {
	if st, cached := s.stateCache.Get(root); cached {
		if st == nil {
			return nil, database.ErrNotFound
		}
		return st, nil
	}

	b, err := s.stateDB.Get(root[:])
	if err == database.ErrNotFound {
		s.stateCache.Put(root, nil)
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	st, err := core.ParseState(b)
	if err != nil {
		return nil, err
	}
	s.stateCache.Put(root, st)
	return st, nil
}

func (s *Store) HasBlock(root ids.ID) (bool, error) {
	if sb, cached := s.blockCache.Get(root); cached {
		return sb != nil, nil
	}
	return s.blockDB.Has(root[:])
}

// Blocks returns every stored block in slot order, parents before children,
// which is what a restart replay needs.
func (s *Store) Blocks() ([]*types.SignedBlock, error) {
	it := s.slotIndex.NewIterator()
	defer it.Release()

	type entry struct {
		slot types.Slot
		root ids.ID
	}
	var entries []entry
	for it.Next() {
		slot, root, err := parseSlotKey(it.Key())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{slot: slot, root: root})
	}
	if err := it.Error(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].slot < entries[j].slot
	})

	blocks := make([]*types.SignedBlock, len(entries))
	for i, e := range entries {
		sb, err := s.GetBlock(e.root)
		if err != nil {
			return nil, err
		}
		blocks[i] = sb
	}
	return blocks, nil
}

func (s *Store) SetHead(cp types.Checkpoint) error {
	return putCheckpoint(s.singletonDB, HeadKey, cp)
}

func (s *Store) GetHead() (types.Checkpoint, error) {
	return getCheckpoint(s.singletonDB, HeadKey)
}

func (s *Store) SetJustified(cp types.Checkpoint) error {
	return putCheckpoint(s.singletonDB, JustifiedKey, cp)
}

func (s *Store) GetJustified() (types.Checkpoint, error) {
	return getCheckpoint(s.singletonDB, JustifiedKey)
}

func (s *Store) SetFinalized(cp types.Checkpoint) error {
	return putCheckpoint(s.singletonDB, FinalizedKey, cp)
}

func (s *Store) GetFinalized() (types.Checkpoint, error) {
	return getCheckpoint(s.singletonDB, FinalizedKey)
}

func (s *Store) SetGenesis(root ids.ID) error {
	return database.PutID(s.singletonDB, GenesisKey, root)
}

func (s *Store) GetGenesis() (ids.ID, error) {
	return database.GetID(s.singletonDB, GenesisKey)
}

func (s *Store) IsInitialized() (bool, error) {
	return s.singletonDB.Has(InitializedKey)
}

func (s *Store) MarkInitialized() error {
	return s.singletonDB.Put(InitializedKey, nil)
}

// Commit flushes every write since the last commit atomically.
func (s *Store) Commit() error {
	defer s.Abort()
	batch, err := s.baseDB.CommitBatch()
	if err != nil {
		return err
	}
	return batch.Write()
}

// Abort drops uncommitted writes.
func (s *Store) Abort() {
	s.baseDB.Abort()
}

func (s *Store) Close() error {
	return s.baseDB.Close()
}

func slotKey(slot types.Slot, root ids.ID) []byte {
	key := make([]byte, 8+ids.IDLen)
	binary.BigEndian.PutUint64(key, uint64(slot))
	copy(key[8:], root[:])
	return key
}

func parseSlotKey(key []byte) (types.Slot, ids.ID, error) {
	if len(key) != 8+ids.IDLen {
		return 0, ids.Empty, fmt.Errorf("slot index key has length %d", len(key))
	}
	slot := types.Slot(binary.BigEndian.Uint64(key))
	root, err := ids.ToID(key[8:])
	return slot, root, err
}

func putCheckpoint(db database.KeyValueWriter, key []byte, cp types.Checkpoint) error {
	b, err := types.Codec.Marshal(types.CodecVersion, &cp)
	if err != nil {
		return err
	}
	return db.Put(key, b)
}

func getCheckpoint(db database.KeyValueReader, key []byte) (types.Checkpoint, error) {
	b, err := db.Get(key)
	if err != nil {
		return types.Checkpoint{}, err
	}
	cp := types.Checkpoint{}
	if _, err := types.Codec.Unmarshal(b, &cp); err != nil {
		return types.Checkpoint{}, err
	}
	return cp, nil
}
