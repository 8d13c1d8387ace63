// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package timeutil

import (
	"context"
	"time"
)

// Cadence paces a loop on a fixed grid of ticks, so the time spent between
// waits does not push later ticks back.
type Cadence struct {
	clock    Clock
	interval time.Duration
	next     time.Time
}

// NewCadence starts a grid at the clock's current time.
func NewCadence(clock Clock, interval time.Duration) *Cadence {
	return &Cadence{clock: clock, interval: interval, next: clock.Now()}
}

// Wait blocks until the next tick or until ctx is done. A loop that has
// fallen a whole interval behind continues at once and the grid restarts
// from now, so missed ticks are dropped rather than bursted.
func (c *Cadence) Wait(ctx context.Context) error {
	c.next = c.next.Add(c.interval)
	now := c.clock.Now()
	d := c.next.Sub(now)
	if d <= 0 {
		c.next = now
		return ctx.Err()
	}

	timer := c.clock.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
