// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock set to initial. Time stands still until
// Advance is called.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.waitersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. Pending After channels
// and tickers fire only when Advance moves the clock past their
// deadline.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	waiters        []*fakeWaiter
	waitersChanged *sync.Cond
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
	interval time.Duration // non-zero for tickers
	stopped  bool
}

// Now returns the current fake time.
func (clock *FakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.current
}

// After registers a one-shot waiter. A non-positive duration fires
// immediately without registering.
func (clock *FakeClock) After(d time.Duration) <-chan time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- clock.current
		return channel
	}
	clock.waiters = append(clock.waiters, &fakeWaiter{
		deadline: clock.current.Add(d),
		channel:  channel,
	})
	clock.waitersChanged.Broadcast()
	return channel
}

// NewTicker registers a periodic waiter.
func (clock *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	clock.mu.Lock()
	defer clock.mu.Unlock()

	channel := make(chan time.Time, 1)
	waiter := &fakeWaiter{
		deadline: clock.current.Add(d),
		channel:  channel,
		interval: d,
	}
	clock.waiters = append(clock.waiters, waiter)
	clock.waitersChanged.Broadcast()

	return &Ticker{
		C: channel,
		stopFunc: func() {
			clock.mu.Lock()
			defer clock.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// Set moves the clock to an absolute time and fires every waiter whose
// deadline is at or before it. Moving backwards only changes Now.
func (clock *FakeClock) Set(target time.Time) {
	clock.mu.Lock()
	delta := target.Sub(clock.current)
	clock.mu.Unlock()
	if delta <= 0 {
		clock.mu.Lock()
		clock.current = target
		clock.mu.Unlock()
		return
	}
	clock.Advance(delta)
}

// Advance moves the clock forward by d and fires due waiters in
// deadline order. Sends never block; a full channel drops the tick.
func (clock *FakeClock) Advance(d time.Duration) {
	clock.mu.Lock()
	clock.current = clock.current.Add(d)
	target := clock.current

	var due []*fakeWaiter
	remaining := clock.waiters[:0]
	for _, waiter := range clock.waiters {
		if waiter.stopped {
			continue
		}
		if waiter.deadline.After(target) {
			remaining = append(remaining, waiter)
			continue
		}
		due = append(due, waiter)
		if waiter.interval > 0 {
			for !waiter.deadline.After(target) {
				waiter.deadline = waiter.deadline.Add(waiter.interval)
			}
			remaining = append(remaining, waiter)
		}
	}
	clock.waiters = remaining
	clock.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, waiter := range due {
		select {
		case waiter.channel <- target:
		default:
		}
	}
}

// WaitForTimers blocks until at least count waiters are pending. Use
// it before Advance when another goroutine is about to register a
// timer, so the advance does not race the registration.
func (clock *FakeClock) WaitForTimers(count int) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	for clock.pendingLocked() < count {
		clock.waitersChanged.Wait()
	}
}

func (clock *FakeClock) pendingLocked() int {
	pending := 0
	for _, waiter := range clock.waiters {
		if !waiter.stopped {
			pending++
		}
	}
	return pending
}
