// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that compare against the current time (artifact expiry,
// retention deadlines, rate-limit windows, stream keepalives) take a
// Clock instead of calling the time package directly. Production code
// passes Real(); tests pass Fake() and move time with Advance.
package clock

import "time"

// Clock abstracts the time operations used by workflow-agent.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. The channel has capacity 1;
// ticks are dropped when the consumer falls behind.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. It does not close C.
func (ticker *Ticker) Stop() { ticker.stopFunc() }
