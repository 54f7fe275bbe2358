// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for
// testability. Production code accepts a Clock instead of calling
// time.Now or time.Sleep directly: Real() gives standard library
// behavior, Fake() gives a deterministic clock that advances only
// when Advance is called. Audit entries and step durations are the
// main consumers — injecting Fake() makes their timestamps exact in
// tests.
package clock

import "time"

// Clock abstracts the time operations lackey uses. Every component
// that records a timestamp or measures a duration holds a Clock field
// rather than calling the time package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the elapsed time since t, per this clock's Now.
	Since(t time.Time) time.Duration

	// Sleep pauses the current goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                  { return time.Now() }
func (realClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (realClock) Sleep(d time.Duration)           { time.Sleep(d) }
