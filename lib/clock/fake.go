// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called. Sleep blocks until the clock is
// advanced past its deadline.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{current: initial}
	fake.advanced = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock for testing. Time advances only
// when Advance is called.
type FakeClock struct {
	mu       sync.Mutex
	current  time.Time
	advanced *sync.Cond
}

// Now returns the current fake time.
func (fake *FakeClock) Now() time.Time {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.current
}

// Since returns the elapsed fake time since t.
func (fake *FakeClock) Since(t time.Time) time.Duration {
	return fake.Now().Sub(t)
}

// Sleep blocks until the clock has been advanced by at least d.
func (fake *FakeClock) Sleep(d time.Duration) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	deadline := fake.current.Add(d)
	for fake.current.Before(deadline) {
		fake.advanced.Wait()
	}
}

// Advance moves the fake time forward by d and wakes any sleepers
// whose deadline has passed.
func (fake *FakeClock) Advance(d time.Duration) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.current = fake.current.Add(d)
	fake.advanced.Broadcast()
}
