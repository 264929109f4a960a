// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"math"

	"github.com/luxfi/lean/types"
)

// IsJustifiableSlot reports whether [candidate] may hold a justified
// checkpoint given the latest finalized slot. Justifiable deltas are the
// first six slots, perfect squares and pronic numbers (x²+x); the gaps
// between eligible slots grow roughly with the square root of the distance
// from finality, which bounds how much vote bookkeeping an unfinalized span
// can accumulate.
func IsJustifiableSlot(finalized, candidate types.Slot) bool {
	if candidate < finalized {
		return false
	}
	delta := uint64(candidate - finalized)
	if delta <= 5 {
		return true
	}

	// math.Sqrt is exact well past any reachable slot, but probe the
	// neighborhood anyway rather than trust float rounding.
	r := uint64(math.Sqrt(float64(delta)))
	for _, x := range []uint64{r - 1, r, r + 1} {
		if x*x == delta || x*x+x == delta {
			return true
		}
	}
	return false
}

// NextJustifiableSlot returns the first justifiable slot strictly after
// [after], given the latest finalized slot.
func NextJustifiableSlot(finalized, after types.Slot) types.Slot {
	for slot := after + 1; ; slot++ {
		if IsJustifiableSlot(finalized, slot) {
			return slot
		}
	}
}
