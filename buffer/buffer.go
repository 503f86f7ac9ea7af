// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package buffer bridges push-heavy producers to pull consumers. The
// buffering consumer prefetches a full buffer's worth of demand from
// upstream, replenishes as it delivers, and applies a configured
// policy when a producer outruns the buffer.
package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/juju/collections/deque"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/juju/freshet"
)

var logger = loggo.GetLogger("freshet.buffer")

// ErrOverflow is the terminal cause under the Reject policy when an
// item arrives on a full buffer.
const ErrOverflow = errors.ConstError("buffer capacity exceeded")

// OverflowPolicy selects what happens when an item arrives and the
// buffer is full.
type OverflowPolicy int

const (
	// DropOldest evicts the single oldest buffered item and admits
	// the arrival.
	DropOldest OverflowPolicy = iota
	// DropLatest silently discards the arrival.
	DropLatest
	// Reject signals an overflow error downstream and cancels
	// upstream.
	Reject
)

func (p OverflowPolicy) validate() error {
	switch p {
	case DropOldest, DropLatest, Reject:
		return nil
	}
	return errors.NotValidf("overflow policy %d", p)
}

// NewConsumer wraps downstream with a bounded FIFO of the given
// capacity. On its flow grant it requests a full buffer's worth from
// upstream; each time it drains k items downstream while upstream is
// live, it requests k more, keeping the buffer pre-filled without the
// downstream ever blocking. Completion is signalled downstream only
// once upstream has completed and the buffer has fully drained.
func NewConsumer[T any](downstream freshet.Consumer[T], capacity int, policy OverflowPolicy) (freshet.Consumer[T], error) {
	if downstream == nil {
		return nil, errors.NotValidf("nil downstream")
	}
	if capacity < 1 {
		return nil, errors.NotValidf("capacity %d", capacity)
	}
	if err := policy.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &bufConsumer[T]{
		down:     downstream,
		capacity: capacity,
		policy:   policy,
		items:    deque.New(),
	}, nil
}

// Pipe applies the buffering consumer as a pipeline stage over
// upstream.
func Pipe[T any](upstream freshet.Emitter[T], capacity int, policy OverflowPolicy) (freshet.Emitter[T], error) {
	if upstream == nil {
		return nil, errors.NotValidf("nil upstream")
	}
	if capacity < 1 {
		return nil, errors.NotValidf("capacity %d", capacity)
	}
	if err := policy.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return pipeEmitter[T]{upstream: upstream, capacity: capacity, policy: policy}, nil
}

type pipeEmitter[T any] struct {
	upstream freshet.Emitter[T]
	capacity int
	policy   OverflowPolicy
}

// Attach is part of the freshet.Emitter interface.
func (e pipeEmitter[T]) Attach(c freshet.Consumer[T]) {
	stage, err := NewConsumer(c, e.capacity, e.policy)
	if err != nil {
		// Config was validated at construction; this cannot happen.
		panic(err)
	}
	e.upstream.Attach(stage)
}

type bufConsumer[T any] struct {
	down     freshet.Consumer[T]
	capacity int
	policy   OverflowPolicy

	mu           sync.Mutex
	items        *deque.Deque
	demand       int64
	up           freshet.Flow
	upstreamDone bool
	cancelled    bool
	done         bool

	work atomic.Int64
}

// OnFlow is part of the freshet.Consumer interface.
func (b *bufConsumer[T]) OnFlow(up freshet.Flow) {
	b.mu.Lock()
	if b.up != nil {
		b.mu.Unlock()
		up.Cancel()
		b.fail(errors.Trace(freshet.ErrDuplicateFlow))
		return
	}
	b.up = up
	b.mu.Unlock()
	b.down.OnFlow(b)
	// Prefetch a full buffer.
	up.Request(int64(b.capacity))
}

// OnItem is part of the freshet.Consumer interface.
func (b *bufConsumer[T]) OnItem(item T) {
	b.mu.Lock()
	if b.done || b.cancelled {
		b.mu.Unlock()
		return
	}
	if b.items.Len() >= b.capacity {
		switch b.policy {
		case DropOldest:
			evicted, _ := b.items.PopFront()
			logger.Tracef("buffer full, evicting oldest item %v", evicted)
		case DropLatest:
			logger.Tracef("buffer full, discarding arrival %v", item)
			b.mu.Unlock()
			return
		case Reject:
			b.mu.Unlock()
			b.fail(errors.Trace(ErrOverflow))
			return
		}
	}
	b.items.PushBack(item)
	b.mu.Unlock()
	b.drain()
}

// OnError is part of the freshet.Consumer interface. Errors do not
// wait for the buffer: it is discarded and the failure propagated.
func (b *bufConsumer[T]) OnError(err error) {
	if err == nil {
		err = freshet.ErrNilCause
	}
	b.mu.Lock()
	if b.done || b.cancelled {
		b.mu.Unlock()
		return
	}
	b.done = true
	b.discardLocked()
	b.mu.Unlock()
	b.down.OnError(err)
}

// OnComplete is part of the freshet.Consumer interface.
func (b *bufConsumer[T]) OnComplete() {
	b.mu.Lock()
	if b.done || b.cancelled {
		b.mu.Unlock()
		return
	}
	b.upstreamDone = true
	b.mu.Unlock()
	// Completion reaches downstream through the drain, once the
	// buffer is empty.
	b.drain()
}

// Request is part of the freshet.Flow interface.
func (b *bufConsumer[T]) Request(n int64) {
	if n <= 0 {
		b.fail(errors.Annotatef(freshet.ErrNonPositiveDemand, "requested %d", n))
		return
	}
	b.mu.Lock()
	if b.done || b.cancelled {
		b.mu.Unlock()
		return
	}
	b.demand = freshet.Accumulate(b.demand, n)
	b.mu.Unlock()
	b.drain()
}

// Cancel is part of the freshet.Flow interface.
func (b *bufConsumer[T]) Cancel() {
	b.mu.Lock()
	b.cancelled = true
	b.discardLocked()
	up := b.up
	b.mu.Unlock()
	if up != nil {
		up.Cancel()
	}
}

func (b *bufConsumer[T]) fail(err error) {
	b.mu.Lock()
	if b.done || b.cancelled {
		b.mu.Unlock()
		return
	}
	b.done = true
	b.discardLocked()
	up := b.up
	b.mu.Unlock()
	if up != nil {
		up.Cancel()
	}
	b.down.OnError(err)
}

func (b *bufConsumer[T]) discardLocked() {
	for {
		if _, ok := b.items.PopFront(); !ok {
			return
		}
	}
}

// drain delivers buffered items while downstream demand lasts, using
// the missed-work counter to serialise executors, then replenishes
// upstream by however much it delivered.
func (b *bufConsumer[T]) drain() {
	if b.work.Add(1) != 1 {
		return
	}
	missed := int64(1)
	for {
		var delivered int64
		for {
			b.mu.Lock()
			if b.done || b.cancelled {
				b.mu.Unlock()
				return
			}
			if b.items.Len() == 0 {
				if b.upstreamDone {
					b.done = true
					b.mu.Unlock()
					b.replenish(delivered)
					b.down.OnComplete()
					return
				}
				b.mu.Unlock()
				break
			}
			if b.demand == 0 {
				b.mu.Unlock()
				break
			}
			front, _ := b.items.PopFront()
			if b.demand != freshet.Unbounded {
				b.demand--
			}
			b.mu.Unlock()
			delivered++
			b.down.OnItem(front.(T))
		}
		b.replenish(delivered)
		if missed = b.work.Add(-missed); missed == 0 {
			return
		}
	}
}

// replenish claims replacements for delivered items so the buffer
// stays pre-filled while upstream is live.
func (b *bufConsumer[T]) replenish(delivered int64) {
	if delivered == 0 {
		return
	}
	b.mu.Lock()
	live := !b.upstreamDone && !b.done && !b.cancelled
	up := b.up
	b.mu.Unlock()
	if live && up != nil {
		up.Request(delivered)
	}
}
