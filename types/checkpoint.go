// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"fmt"

	"github.com/luxfi/ids"
)

// Checkpoint names a block root at a slot. Two checkpoints are equal only
// when both fields match; the same root at different slots is a different
// checkpoint.
type Checkpoint struct {
	Root ids.ID `serialize:"true" json:"root"`
	Slot Slot   `serialize:"true" json:"slot"`
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("%s@%d", c.Root, uint64(c.Slot))
}
