// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"time"

	"github.com/luxfi/lean/config"
	"github.com/luxfi/lean/validators"
)

// Params is the consensus-critical subset of the chain config, serialized
// into every state so replicas can never disagree on it.
type Params struct {
	GenesisTime             uint64 `serialize:"true" json:"genesisTime"`
	SlotDurationMillis      uint64 `serialize:"true" json:"slotDurationMillis"`
	MinActiveEpochs         uint64 `serialize:"true" json:"minActiveEpochs"`
	ExitDelayEpochs         uint64 `serialize:"true" json:"exitDelayEpochs"`
	MaxAttestationsPerBlock uint32 `serialize:"true" json:"maxAttestationsPerBlock"`
	MaxExitsPerBlock        uint32 `serialize:"true" json:"maxExitsPerBlock"`
}

// ParamsFromConfig flattens the node config into serializable form.
func ParamsFromConfig(cfg config.Config) Params {
	return Params{
		GenesisTime:             cfg.GenesisTime,
		SlotDurationMillis:      uint64(cfg.SlotDuration / time.Millisecond),
		MinActiveEpochs:         cfg.MinActiveEpochs,
		ExitDelayEpochs:         cfg.ExitDelayEpochs,
		MaxAttestationsPerBlock: uint32(cfg.MaxAttestationsPerBlock),
		MaxExitsPerBlock:        uint32(cfg.MaxExitsPerBlock),
	}
}

// ExitRules returns the registry's exit-eligibility parameters.
func (p Params) ExitRules() validators.Rules {
	return validators.Rules{
		MinActiveEpochs: p.MinActiveEpochs,
		ExitDelayEpochs: p.ExitDelayEpochs,
	}
}
