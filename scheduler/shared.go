// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package scheduler

import (
	"runtime"
	"sync"

	"github.com/juju/clock"
)

// The shared schedulers are the only global mutable state in the
// library: process-wide singletons created lazily under the mutex and
// torn down explicitly by ResetShared.
var (
	sharedMu       sync.Mutex
	sharedSingle   Scheduler
	sharedParallel Scheduler
)

// SharedSingle returns the process-wide single-goroutine scheduler,
// creating it on first use.
func SharedSingle() Scheduler {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedSingle == nil {
		s, err := NewSingle(clock.WallClock)
		if err != nil {
			// Only a nil clock can fail validation, and WallClock
			// is not nil.
			panic(err)
		}
		sharedSingle = s
	}
	return sharedSingle
}

// SharedParallel returns the process-wide parallel scheduler, sized
// to the runtime's processor count, creating it on first use.
func SharedParallel() Scheduler {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedParallel == nil {
		p, err := NewParallel(runtime.GOMAXPROCS(0), clock.WallClock)
		if err != nil {
			panic(err)
		}
		sharedParallel = p
	}
	return sharedParallel
}

// ResetShared stops any shared schedulers and clears them, so the
// next use starts fresh. Intended for tests and orderly shutdown.
func ResetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	for _, s := range []Scheduler{sharedSingle, sharedParallel} {
		if s == nil {
			continue
		}
		s.Kill()
		if err := s.Wait(); err != nil {
			logger.Warningf("shared scheduler shutdown: %v", err)
		}
	}
	sharedSingle = nil
	sharedParallel = nil
}
