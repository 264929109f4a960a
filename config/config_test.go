// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/lean/types"
)

func TestParseConfigDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := ParseConfig(nil)
	require.NoError(err)
	require.Equal(DefaultConfig, cfg)

	cfg, err = ParseConfig([]byte(`{"genesisTime": 1700000000}`))
	require.NoError(err)
	require.Equal(uint64(1700000000), cfg.GenesisTime)
	require.Equal(DefaultConfig.SlotDuration, cfg.SlotDuration)
	require.NoError(cfg.Valid())
}

func TestConfigValid(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig
	require.ErrorIs(cfg.Valid(), errNoGenesisTime)

	cfg.GenesisTime = 1700000000
	require.NoError(cfg.Valid())

	cfg.SlotDuration = 0
	require.ErrorIs(cfg.Valid(), errBadSlotDuration)
}

func TestSlotTimeMath(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig
	cfg.GenesisTime = 1700000000
	genesis := time.Unix(int64(cfg.GenesisTime), 0)

	require.Equal(types.Slot(0), cfg.SlotAtTime(genesis))
	require.Equal(types.Slot(0), cfg.SlotAtTime(genesis.Add(-time.Hour)))
	require.Equal(types.Slot(1), cfg.SlotAtTime(genesis.Add(cfg.SlotDuration)))
	require.Equal(types.Slot(2), cfg.SlotAtTime(genesis.Add(2*cfg.SlotDuration+time.Millisecond)))

	require.Equal(genesis.Add(3*cfg.SlotDuration), cfg.SlotStart(3))

	slot, interval := cfg.IntervalAtTime(genesis.Add(cfg.SlotDuration + cfg.IntervalDuration()))
	require.Equal(types.Slot(1), slot)
	require.Equal(types.IntervalAttest, interval)

	// The last instant of a slot still lands in the final interval.
	slot, interval = cfg.IntervalAtTime(genesis.Add(2*cfg.SlotDuration - time.Nanosecond))
	require.Equal(types.Slot(1), slot)
	require.Equal(types.IntervalAcceptVotes, interval)
}
