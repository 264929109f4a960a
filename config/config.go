// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/luxfi/lean/types"
)

var (
	errNoGenesisTime      = errors.New("genesis time is not set")
	errBadSlotDuration    = errors.New("slot duration must be positive")
	errBadPendingLimit    = errors.New("pending buffer limit must be positive")
	errBadAttestationsCap = errors.New("attestations per block must be positive")
	errBadExitsCap        = errors.New("exits per block must be positive")
)

// Config collects the foundational parameters of the chain. Every node on a
// network must agree on all of them.
type Config struct {
	// GenesisTime is the unix time (seconds) of slot 0, interval 0.
	GenesisTime uint64 `json:"genesisTime"`

	// SlotDuration is the wall-clock length of one slot. Each slot is split
	// into types.IntervalsPerSlot equal intervals.
	SlotDuration time.Duration `json:"slotDuration"`

	// MinActiveEpochs is how long a validator must have been active before
	// its voluntary exit becomes eligible.
	MinActiveEpochs uint64 `json:"minActiveEpochs"`

	// ExitDelayEpochs is how long an exiting validator keeps attesting after
	// its exit is applied.
	ExitDelayEpochs uint64 `json:"exitDelayEpochs"`

	// MaxAttestationsPerBlock caps the aggregates a proposer packs.
	MaxAttestationsPerBlock int `json:"maxAttestationsPerBlock"`

	// MaxExitsPerBlock caps the voluntary exits a proposer packs.
	MaxExitsPerBlock int `json:"maxExitsPerBlock"`

	// PendingBlocksLimit bounds each buffer of messages waiting on a missing
	// dependency. The oldest entry is evicted first.
	PendingBlocksLimit int `json:"pendingBlocksLimit"`

	// PendingTTLSlots expires buffered messages that waited too long.
	PendingTTLSlots uint64 `json:"pendingTTLSlots"`
}

var DefaultConfig = Config{
	SlotDuration:            4 * time.Second,
	MinActiveEpochs:         1,
	ExitDelayEpochs:         1,
	MaxAttestationsPerBlock: 128,
	MaxExitsPerBlock:        16,
	PendingBlocksLimit:      512,
	PendingTTLSlots:         64,
}

// ParseConfig returns the config described by [configBytes], filling unset
// fields from DefaultConfig. Empty input is the default config.
func ParseConfig(configBytes []byte) (Config, error) {
	if len(configBytes) == 0 {
		return DefaultConfig, nil
	}

	cfg := DefaultConfig
	err := json.Unmarshal(configBytes, &cfg)
	return cfg, err
}

func (c *Config) Valid() error {
	switch {
	case c.GenesisTime == 0:
		return errNoGenesisTime
	case c.SlotDuration <= 0:
		return errBadSlotDuration
	case c.PendingBlocksLimit <= 0:
		return errBadPendingLimit
	case c.MaxAttestationsPerBlock <= 0:
		return errBadAttestationsCap
	case c.MaxExitsPerBlock <= 0:
		return errBadExitsCap
	}
	return nil
}

// IntervalDuration is the wall-clock length of one interval.
func (c *Config) IntervalDuration() time.Duration {
	return c.SlotDuration / types.IntervalsPerSlot
}

// SlotAtTime returns the slot containing [t]. Times before genesis map to
// slot 0.
func (c *Config) SlotAtTime(t time.Time) types.Slot {
	genesis := time.Unix(int64(c.GenesisTime), 0)
	if t.Before(genesis) {
		return 0
	}
	return types.Slot(t.Sub(genesis) / c.SlotDuration)
}

// IntervalAtTime returns the slot and interval containing [t].
func (c *Config) IntervalAtTime(t time.Time) (types.Slot, types.Interval) {
	slot := c.SlotAtTime(t)
	start := c.SlotStart(slot)
	interval := types.Interval(t.Sub(start) / c.IntervalDuration())
	if interval >= types.IntervalsPerSlot {
		interval = types.IntervalsPerSlot - 1
	}
	return slot, interval
}

// SlotStart returns the wall-clock start of [slot].
func (c *Config) SlotStart(slot types.Slot) time.Time {
	genesis := time.Unix(int64(c.GenesisTime), 0)
	return genesis.Add(time.Duration(slot) * c.SlotDuration)
}

// IntervalStart returns the wall-clock start of [interval] within [slot].
func (c *Config) IntervalStart(slot types.Slot, interval types.Interval) time.Time {
	return c.SlotStart(slot).Add(time.Duration(interval) * c.IntervalDuration())
}
