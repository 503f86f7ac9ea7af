// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package drain implements the demand-tracking emission engine shared
// by every pull source. The engine serialises item delivery with an
// atomic missed-work counter rather than a lock: concurrent callers
// either become the drain executor or return immediately having
// recorded their contribution, so no operation ever blocks waiting for
// another, and a request made reentrantly from inside an OnItem
// delivery is indistinguishable from one made on another goroutine.
package drain

import (
	"sync/atomic"

	"github.com/juju/errors"

	"github.com/juju/freshet"
)

// Cursor is a pull position over a source's data. The engine only
// ever touches it from the single goroutine currently elected to
// drain, so implementations need no synchronisation of their own.
type Cursor[T any] interface {
	// Next consumes and returns the next item, ok=false once the
	// sequence is exhausted, or an error that terminates the
	// subscription.
	Next() (item T, ok bool, err error)

	// Done reports exhaustion without consuming, so the engine can
	// complete as soon as the last item has been delivered rather
	// than waiting for further demand.
	Done() bool
}

// Flow drives items from a cursor to a consumer under the demand
// accounting rules of the stream contract. It implements freshet.Flow
// and is granted to the consumer by the source's Attach.
type Flow[T any] struct {
	consumer freshet.Consumer[T]
	cursor   Cursor[T]

	demand    atomic.Int64
	work      atomic.Int64
	cancelled atomic.Bool
	finished  atomic.Bool
}

// New returns a flow delivering the cursor's items to consumer. Each
// attachment of a cold source constructs a fresh flow around a fresh
// cursor.
func New[T any](consumer freshet.Consumer[T], cursor Cursor[T]) *Flow[T] {
	return &Flow[T]{consumer: consumer, cursor: cursor}
}

// Request is part of the freshet.Flow interface. A non-positive n is
// a contract violation whose terminal error is delivered on the
// violator's own goroutine, outside the drain loop's serialisation: a
// violating consumer that is also receiving a concurrent delivery may
// observe the two signals concurrently.
func (f *Flow[T]) Request(n int64) {
	if n <= 0 {
		f.terminate(errors.Annotatef(freshet.ErrNonPositiveDemand, "requested %d", n))
		return
	}
	if f.finished.Load() || f.cancelled.Load() {
		return
	}
	for {
		current := f.demand.Load()
		next := freshet.Accumulate(current, n)
		if current == next || f.demand.CompareAndSwap(current, next) {
			break
		}
	}
	f.drain()
}

// Cancel is part of the freshet.Flow interface.
func (f *Flow[T]) Cancel() {
	f.cancelled.Store(true)
}

// Cancelled reports whether the consumer has withdrawn.
func (f *Flow[T]) Cancelled() bool {
	return f.cancelled.Load()
}

// drain elects a single executor for the emission loop. Whichever
// caller moves the work counter from zero owns the loop; everybody
// else has already recorded their trigger in the counter and returns.
// On exhausting demand or data the executor subtracts what it has
// observed; a non-zero remainder means another trigger arrived while
// draining, so the loop runs again rather than losing that work.
func (f *Flow[T]) drain() {
	if f.work.Add(1) != 1 {
		return
	}
	missed := int64(1)
	for {
		for {
			if f.cancelled.Load() || f.finished.Load() {
				return
			}
			if f.cursor.Done() {
				f.complete()
				return
			}
			if f.demand.Load() <= 0 {
				break
			}
			item, ok, err := f.cursor.Next()
			if err != nil {
				f.terminate(errors.Trace(err))
				return
			}
			if !ok {
				f.complete()
				return
			}
			if f.cancelled.Load() {
				return
			}
			f.consumer.OnItem(item)
			if f.demand.Load() != freshet.Unbounded {
				f.demand.Add(-1)
			}
		}
		if missed = f.work.Add(-missed); missed == 0 {
			return
		}
	}
}

func (f *Flow[T]) complete() {
	if f.cancelled.Load() {
		return
	}
	if f.finished.CompareAndSwap(false, true) {
		f.consumer.OnComplete()
	}
}

func (f *Flow[T]) terminate(err error) {
	if f.cancelled.Load() {
		return
	}
	if f.finished.CompareAndSwap(false, true) {
		f.consumer.OnError(err)
	}
}
