// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package pipe

import (
	"sync"
	"sync/atomic"

	"github.com/juju/collections/deque"
	"github.com/juju/errors"

	"github.com/juju/freshet"
	"github.com/juju/freshet/scheduler"
)

// DeliverOn returns an emitter that re-delivers every upstream signal
// on w. Upstream may emit from any goroutine; signals are queued and
// drained by a worker task elected through a missed-work counter, so
// downstream sees them in order, one goroutine at a time. Terminal
// signals travel through the queue behind the items they follow.
func DeliverOn[T any](upstream freshet.Emitter[T], w scheduler.Worker) (freshet.Emitter[T], error) {
	if upstream == nil {
		return nil, errors.NotValidf("nil upstream")
	}
	if w == nil {
		return nil, errors.NotValidf("nil worker")
	}
	return deliverEmitter[T]{upstream: upstream, w: w}, nil
}

type deliverEmitter[T any] struct {
	upstream freshet.Emitter[T]
	w        scheduler.Worker
}

// Attach is part of the freshet.Emitter interface.
func (e deliverEmitter[T]) Attach(c freshet.Consumer[T]) {
	e.upstream.Attach(&deliverStage[T]{
		down:  c,
		w:     e.w,
		queue: deque.New(),
	})
}

type signalKind int

const (
	signalItem signalKind = iota
	signalError
	signalComplete
)

type signal[T any] struct {
	kind signalKind
	item T
	err  error
}

type deliverStage[T any] struct {
	down freshet.Consumer[T]
	w    scheduler.Worker
	up   freshet.Flow

	mu    sync.Mutex
	queue *deque.Deque

	work      atomic.Int64
	enqueued  atomic.Bool // a terminal signal has been queued
	done      atomic.Bool // a terminal signal has been delivered
	cancelled atomic.Bool
}

// OnFlow is part of the freshet.Consumer interface.
func (s *deliverStage[T]) OnFlow(up freshet.Flow) {
	if s.up != nil {
		up.Cancel()
		s.enqueueTerminal(signal[T]{kind: signalError, err: errors.Trace(freshet.ErrDuplicateFlow)})
		return
	}
	s.up = up
	s.down.OnFlow(s)
}

// Request is part of the freshet.Flow interface. Demand accounting is
// untouched by the handoff, so requests go straight upstream; a
// violation is converted to a queued terminal error so that it is
// still delivered on the worker goroutine, after any queued items.
func (s *deliverStage[T]) Request(n int64) {
	if n <= 0 {
		s.up.Cancel()
		s.enqueueTerminal(signal[T]{kind: signalError, err: errors.Annotatef(freshet.ErrNonPositiveDemand, "requested %d", n)})
		return
	}
	s.up.Request(n)
}

// Cancel is part of the freshet.Flow interface. Queued signals are
// discarded: a cancelled consumer gets nothing further.
func (s *deliverStage[T]) Cancel() {
	s.cancelled.Store(true)
	s.up.Cancel()
	s.mu.Lock()
	for {
		if _, ok := s.queue.PopFront(); !ok {
			break
		}
	}
	s.mu.Unlock()
}

// OnItem is part of the freshet.Consumer interface.
func (s *deliverStage[T]) OnItem(item T) {
	if s.cancelled.Load() || s.enqueued.Load() {
		return
	}
	s.enqueue(signal[T]{kind: signalItem, item: item})
}

// OnError is part of the freshet.Consumer interface.
func (s *deliverStage[T]) OnError(err error) {
	if err == nil {
		err = freshet.ErrNilCause
	}
	s.enqueueTerminal(signal[T]{kind: signalError, err: err})
}

// OnComplete is part of the freshet.Consumer interface.
func (s *deliverStage[T]) OnComplete() {
	s.enqueueTerminal(signal[T]{kind: signalComplete})
}

func (s *deliverStage[T]) enqueueTerminal(sig signal[T]) {
	if s.cancelled.Load() || !s.enqueued.CompareAndSwap(false, true) {
		return
	}
	s.enqueue(sig)
}

// enqueue records the signal and elects a drain executor: only the
// caller that moves the work counter from zero schedules the drain
// task; concurrent callers have already recorded their signal in the
// counter and return.
func (s *deliverStage[T]) enqueue(sig signal[T]) {
	s.mu.Lock()
	s.queue.PushBack(sig)
	s.mu.Unlock()
	if s.work.Add(1) != 1 {
		return
	}
	if err := s.w.Schedule(s.drain); err != nil {
		// The worker is gone; there is no queue to deliver on, so the
		// terminal error goes straight down. Ordering on the worker
		// goroutine no longer applies to a disposed worker.
		s.up.Cancel()
		if s.done.CompareAndSwap(false, true) {
			s.down.OnError(errors.Annotate(err, "scheduling delivery"))
		}
	}
}

// drain runs on the worker goroutine. It delivers the signals it can
// see, subtracts what it observed, and loops while the counter shows
// work recorded after its snapshot.
func (s *deliverStage[T]) drain() {
	missed := s.work.Load()
	for {
		var delivered int64
		for delivered < missed {
			s.mu.Lock()
			front, ok := s.queue.PopFront()
			s.mu.Unlock()
			if !ok {
				// Cancellation emptied the queue; count the evicted
				// signals as handled.
				delivered = missed
				break
			}
			delivered++
			s.deliver(front.(signal[T]))
		}
		if missed = s.work.Add(-delivered); missed == 0 {
			return
		}
	}
}

func (s *deliverStage[T]) deliver(sig signal[T]) {
	if s.cancelled.Load() || s.done.Load() {
		return
	}
	switch sig.kind {
	case signalItem:
		s.down.OnItem(sig.item)
	case signalError:
		if s.done.CompareAndSwap(false, true) {
			s.down.OnError(sig.err)
		}
	case signalComplete:
		if s.done.CompareAndSwap(false, true) {
			s.down.OnComplete()
		}
	}
}
