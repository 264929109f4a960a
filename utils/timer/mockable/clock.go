// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mockable wraps wall-clock time behind a fakeable source. The
// interval loop reads consensus time through a Clock so tests can walk
// slots without sleeping.
package mockable

import (
	"sync"
	"time"
)

// Clock reports wall-clock time until Set pins it to a fixed instant.
// Safe for concurrent use; the zero value follows the wall clock.
type Clock struct {
	mu    sync.RWMutex
	faked bool
	time  time.Time
}

// Set pins the clock to [t].
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = true
	c.time = t
}

// Sync releases a pinned clock back to wall-clock time.
func (c *Clock) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = false
}

// Time returns the current time on this clock.
func (c *Clock) Time() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.faked {
		return c.time
	}
	return time.Now()
}
