// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package pipe

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"

	"github.com/juju/freshet"
	"github.com/juju/freshet/scheduler"
)

// AttachOn returns an emitter performing the upstream attachment as a
// task on w, so every signal originating from that attachment is
// delivered on the worker's goroutine. The downstream consumer is
// granted a relay flow immediately; requests and cancellations
// arriving before the handoff completes are accumulated and replayed
// once the upstream flow is available.
func AttachOn[T any](upstream freshet.Emitter[T], w scheduler.Worker) (freshet.Emitter[T], error) {
	if upstream == nil {
		return nil, errors.NotValidf("nil upstream")
	}
	if w == nil {
		return nil, errors.NotValidf("nil worker")
	}
	return attachEmitter[T]{upstream: upstream, w: w}, nil
}

type attachEmitter[T any] struct {
	upstream freshet.Emitter[T]
	w        scheduler.Worker
}

// Attach is part of the freshet.Emitter interface.
func (e attachEmitter[T]) Attach(c freshet.Consumer[T]) {
	stage := &attachStage[T]{down: c}
	stage.relay.stage = stage
	c.OnFlow(&stage.relay)
	if err := e.w.Schedule(func() {
		e.upstream.Attach(stage)
	}); err != nil {
		stage.fail(errors.Annotate(err, "scheduling attachment"))
	}
}

type attachStage[T any] struct {
	down  freshet.Consumer[T]
	relay relayFlow[T]
	done  atomic.Bool
}

// OnFlow is part of the freshet.Consumer interface. It arrives on the
// worker goroutine once the handoff has completed.
func (s *attachStage[T]) OnFlow(up freshet.Flow) {
	s.relay.bind(up)
}

// OnItem is part of the freshet.Consumer interface.
func (s *attachStage[T]) OnItem(item T) {
	if s.done.Load() {
		return
	}
	s.down.OnItem(item)
}

// OnError is part of the freshet.Consumer interface.
func (s *attachStage[T]) OnError(err error) {
	if err == nil {
		err = freshet.ErrNilCause
	}
	if s.done.CompareAndSwap(false, true) {
		s.down.OnError(err)
	}
}

// OnComplete is part of the freshet.Consumer interface.
func (s *attachStage[T]) OnComplete() {
	if s.done.CompareAndSwap(false, true) {
		s.down.OnComplete()
	}
}

func (s *attachStage[T]) fail(err error) {
	if !s.done.CompareAndSwap(false, true) {
		return
	}
	s.relay.Cancel()
	s.down.OnError(err)
}

// relayFlow fronts for the upstream flow until the handoff delivers
// it, accumulating demand and remembering cancellation for replay.
type relayFlow[T any] struct {
	stage *attachStage[T]

	mu        sync.Mutex
	up        freshet.Flow
	pending   int64
	cancelled bool
}

// Request is part of the freshet.Flow interface.
func (r *relayFlow[T]) Request(n int64) {
	if n <= 0 {
		r.mu.Lock()
		r.cancelled = true
		up := r.up
		r.mu.Unlock()
		if up != nil {
			up.Cancel()
		}
		r.stage.OnError(errors.Annotatef(freshet.ErrNonPositiveDemand, "requested %d", n))
		return
	}
	r.mu.Lock()
	if r.up == nil {
		r.pending = freshet.Accumulate(r.pending, n)
		r.mu.Unlock()
		return
	}
	up := r.up
	r.mu.Unlock()
	up.Request(n)
}

// Cancel is part of the freshet.Flow interface.
func (r *relayFlow[T]) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	up := r.up
	r.mu.Unlock()
	if up != nil {
		up.Cancel()
	}
}

func (r *relayFlow[T]) bind(up freshet.Flow) {
	r.mu.Lock()
	if r.up != nil {
		r.mu.Unlock()
		up.Cancel()
		r.stage.fail(errors.Trace(freshet.ErrDuplicateFlow))
		return
	}
	r.up = up
	replay := r.pending
	r.pending = 0
	cancelled := r.cancelled
	r.mu.Unlock()
	if cancelled {
		up.Cancel()
		return
	}
	if replay > 0 {
		up.Request(replay)
	}
}
