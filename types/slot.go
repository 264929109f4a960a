// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "math"

const (
	// SlotsPerEpoch groups slots for registry lifecycle transitions and duty
	// scheduling. Checkpoints remain slot-granular.
	SlotsPerEpoch = 32

	// IntervalsPerSlot divides every slot into four phases: propose, attest,
	// update the safe target, accept buffered attestations.
	IntervalsPerSlot = 4

	// FarFutureEpoch marks a validator with no scheduled exit.
	FarFutureEpoch = Epoch(math.MaxUint64)
)

// Slot counts slots since genesis. Slot 0 is the genesis slot and never
// carries a block.
type Slot uint64

// Epoch groups SlotsPerEpoch slots.
type Epoch uint64

// Interval is a phase within a slot, in [0, IntervalsPerSlot).
type Interval uint8

const (
	IntervalPropose Interval = iota
	IntervalAttest
	IntervalSafeTarget
	IntervalAcceptVotes
)

func (i Interval) String() string {
	switch i {
	case IntervalPropose:
		return "propose"
	case IntervalAttest:
		return "attest"
	case IntervalSafeTarget:
		return "safeTarget"
	case IntervalAcceptVotes:
		return "acceptVotes"
	default:
		return "unknown"
	}
}

// Epoch returns the epoch containing the slot.
func (s Slot) Epoch() Epoch {
	return Epoch(uint64(s) / SlotsPerEpoch)
}

// FirstSlot returns the first slot of the epoch.
func (e Epoch) FirstSlot() Slot {
	return Slot(uint64(e) * SlotsPerEpoch)
}
