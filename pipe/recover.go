// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package pipe

import (
	"sync"

	"github.com/juju/errors"

	"github.com/juju/freshet"
)

// ResumeOnError returns an emitter that, when upstream fails,
// attaches the fallback emitter chosen by selector and continues from
// it, carrying over the outstanding (granted but unsatisfied) demand.
// A selector failure, or a nil fallback, terminates downstream with
// an error chaining the original cause. A failing fallback is not
// resumed again.
func ResumeOnError[T any](upstream freshet.Emitter[T], selector func(error) (freshet.Emitter[T], error)) (freshet.Emitter[T], error) {
	if upstream == nil {
		return nil, errors.NotValidf("nil upstream")
	}
	if selector == nil {
		return nil, errors.NotValidf("nil selector")
	}
	return resumeEmitter[T]{upstream: upstream, selector: selector}, nil
}

type resumeEmitter[T any] struct {
	upstream freshet.Emitter[T]
	selector func(error) (freshet.Emitter[T], error)
}

// Attach is part of the freshet.Emitter interface.
func (e resumeEmitter[T]) Attach(c freshet.Consumer[T]) {
	e.upstream.Attach(&resumeStage[T]{down: c, selector: e.selector})
}

// resumeStage remains the downstream flow across the switch from the
// original upstream to the fallback, so the downstream consumer never
// notices the re-subscription.
type resumeStage[T any] struct {
	down     freshet.Consumer[T]
	selector func(error) (freshet.Emitter[T], error)

	mu          sync.Mutex
	up          freshet.Flow
	granted     bool
	switched    bool
	outstanding int64
	cancelled   bool
	done        bool
}

// OnFlow is part of the freshet.Consumer interface. The first grant
// comes from the original upstream; a later one comes from the
// fallback and replays whatever demand is still outstanding.
func (s *resumeStage[T]) OnFlow(up freshet.Flow) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		up.Cancel()
		return
	}
	first := !s.granted
	s.granted = true
	s.up = up
	replay := s.outstanding
	s.mu.Unlock()
	if first {
		s.down.OnFlow(s)
		return
	}
	if replay > 0 {
		up.Request(replay)
	}
}

// Request is part of the freshet.Flow interface.
func (s *resumeStage[T]) Request(n int64) {
	if n <= 0 {
		s.fail(errors.Annotatef(freshet.ErrNonPositiveDemand, "requested %d", n))
		return
	}
	s.mu.Lock()
	if s.done || s.cancelled {
		s.mu.Unlock()
		return
	}
	s.outstanding = freshet.Accumulate(s.outstanding, n)
	up := s.up
	s.mu.Unlock()
	if up != nil {
		up.Request(n)
	}
}

// Cancel is part of the freshet.Flow interface.
func (s *resumeStage[T]) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	up := s.up
	s.mu.Unlock()
	if up != nil {
		up.Cancel()
	}
}

// OnItem is part of the freshet.Consumer interface.
func (s *resumeStage[T]) OnItem(item T) {
	s.mu.Lock()
	if s.done || s.cancelled {
		s.mu.Unlock()
		return
	}
	if s.outstanding != freshet.Unbounded && s.outstanding > 0 {
		s.outstanding--
	}
	s.mu.Unlock()
	s.down.OnItem(item)
}

// OnError is part of the freshet.Consumer interface.
func (s *resumeStage[T]) OnError(err error) {
	if err == nil {
		err = freshet.ErrNilCause
	}
	s.mu.Lock()
	if s.done || s.cancelled {
		s.mu.Unlock()
		return
	}
	if s.switched {
		s.done = true
		s.mu.Unlock()
		s.down.OnError(err)
		return
	}
	s.switched = true
	s.mu.Unlock()

	fallback, serr := s.selector(err)
	if serr != nil {
		s.terminate(errors.Annotatef(err, "selecting fallback failed: %v", serr))
		return
	}
	if fallback == nil {
		s.terminate(errors.Annotate(err, "fallback selector returned nil emitter"))
		return
	}
	fallback.Attach(s)
}

// OnComplete is part of the freshet.Consumer interface.
func (s *resumeStage[T]) OnComplete() {
	s.mu.Lock()
	if s.done || s.cancelled {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	s.down.OnComplete()
}

func (s *resumeStage[T]) fail(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	up := s.up
	s.mu.Unlock()
	if up != nil {
		up.Cancel()
	}
	s.down.OnError(err)
}

func (s *resumeStage[T]) terminate(err error) {
	s.mu.Lock()
	if s.done || s.cancelled {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	s.down.OnError(err)
}

// ReturnOnError returns an emitter that, when upstream fails,
// delivers exactly one substitute item computed from the failure and
// then completes. The substitute honours demand: with no outstanding
// demand it is held until the next request. A substitute failure, or a
// nil substitute of a nilable kind, terminates downstream with an
// error chaining the original cause.
func ReturnOnError[T any](upstream freshet.Emitter[T], substitute func(error) (T, error)) (freshet.Emitter[T], error) {
	if upstream == nil {
		return nil, errors.NotValidf("nil upstream")
	}
	if substitute == nil {
		return nil, errors.NotValidf("nil substitute")
	}
	return returnEmitter[T]{upstream: upstream, substitute: substitute}, nil
}

type returnEmitter[T any] struct {
	upstream   freshet.Emitter[T]
	substitute func(error) (T, error)
}

// Attach is part of the freshet.Emitter interface.
func (e returnEmitter[T]) Attach(c freshet.Consumer[T]) {
	e.upstream.Attach(&returnStage[T]{down: c, substitute: e.substitute})
}

type returnStage[T any] struct {
	down       freshet.Consumer[T]
	substitute func(error) (T, error)

	mu          sync.Mutex
	up          freshet.Flow
	outstanding int64
	pending     *T
	cancelled   bool
	done        bool
}

// OnFlow is part of the freshet.Consumer interface.
func (s *returnStage[T]) OnFlow(up freshet.Flow) {
	s.mu.Lock()
	if s.up != nil {
		s.mu.Unlock()
		up.Cancel()
		s.fail(errors.Trace(freshet.ErrDuplicateFlow))
		return
	}
	s.up = up
	s.mu.Unlock()
	s.down.OnFlow(s)
}

// Request is part of the freshet.Flow interface.
func (s *returnStage[T]) Request(n int64) {
	if n <= 0 {
		s.fail(errors.Annotatef(freshet.ErrNonPositiveDemand, "requested %d", n))
		return
	}
	s.mu.Lock()
	if s.done || s.cancelled {
		s.mu.Unlock()
		return
	}
	if s.pending != nil {
		item := *s.pending
		s.pending = nil
		s.done = true
		s.mu.Unlock()
		s.down.OnItem(item)
		s.down.OnComplete()
		return
	}
	s.outstanding = freshet.Accumulate(s.outstanding, n)
	up := s.up
	s.mu.Unlock()
	up.Request(n)
}

// Cancel is part of the freshet.Flow interface.
func (s *returnStage[T]) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.pending = nil
	up := s.up
	s.mu.Unlock()
	if up != nil {
		up.Cancel()
	}
}

// OnItem is part of the freshet.Consumer interface.
func (s *returnStage[T]) OnItem(item T) {
	s.mu.Lock()
	if s.done || s.cancelled {
		s.mu.Unlock()
		return
	}
	if s.outstanding != freshet.Unbounded && s.outstanding > 0 {
		s.outstanding--
	}
	s.mu.Unlock()
	s.down.OnItem(item)
}

// OnError is part of the freshet.Consumer interface.
func (s *returnStage[T]) OnError(err error) {
	if err == nil {
		err = freshet.ErrNilCause
	}
	s.mu.Lock()
	if s.done || s.cancelled {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	// The substitute callback runs outside the lock; a cancellation
	// racing it is caught again below before anything is delivered.
	item, serr := s.substitute(err)
	s.mu.Lock()
	if s.done || s.cancelled {
		s.mu.Unlock()
		return
	}
	if serr != nil {
		s.done = true
		s.mu.Unlock()
		s.down.OnError(errors.Annotatef(err, "substituting after failure: %v", serr))
		return
	}
	if freshet.IsNil(item) {
		s.done = true
		s.mu.Unlock()
		s.down.OnError(errors.Annotatef(freshet.ErrNilItem, "substituting after failure: %v", err))
		return
	}
	if s.outstanding > 0 {
		s.done = true
		s.mu.Unlock()
		s.down.OnItem(item)
		s.down.OnComplete()
		return
	}
	// No demand outstanding; hold the substitute for the next request.
	s.pending = &item
	s.mu.Unlock()
}

// OnComplete is part of the freshet.Consumer interface.
func (s *returnStage[T]) OnComplete() {
	s.mu.Lock()
	if s.done || s.cancelled {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	s.down.OnComplete()
}

func (s *returnStage[T]) fail(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	up := s.up
	s.mu.Unlock()
	if up != nil {
		up.Cancel()
	}
	s.down.OnError(err)
}
