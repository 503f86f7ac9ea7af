// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package pipe

import (
	"sync/atomic"

	"github.com/juju/errors"

	"github.com/juju/freshet"
)

// Map returns an emitter applying fn to every upstream item, one to
// one. Demand is forwarded unchanged, so the downstream consumer is
// granted the upstream flow directly. A transform failure, or a nil
// result of a nilable kind, cancels upstream and errors downstream.
func Map[In, Out any](upstream freshet.Emitter[In], fn func(In) (Out, error)) (freshet.Emitter[Out], error) {
	if upstream == nil {
		return nil, errors.NotValidf("nil upstream")
	}
	if fn == nil {
		return nil, errors.NotValidf("nil transform")
	}
	return mapEmitter[In, Out]{upstream: upstream, fn: fn}, nil
}

type mapEmitter[In, Out any] struct {
	upstream freshet.Emitter[In]
	fn       func(In) (Out, error)
}

// Attach is part of the freshet.Emitter interface.
func (e mapEmitter[In, Out]) Attach(c freshet.Consumer[Out]) {
	e.upstream.Attach(&mapStage[In, Out]{down: c, fn: e.fn})
}

type mapStage[In, Out any] struct {
	down freshet.Consumer[Out]
	fn   func(In) (Out, error)
	up   freshet.Flow
	done atomic.Bool
}

// OnFlow is part of the freshet.Consumer interface.
func (s *mapStage[In, Out]) OnFlow(up freshet.Flow) {
	if s.up != nil {
		// A second grant breaches the contract; refuse it rather than
		// splitting the subscription across two flows.
		up.Cancel()
		s.fail(errors.Trace(freshet.ErrDuplicateFlow))
		return
	}
	s.up = up
	s.down.OnFlow(up)
}

// OnItem is part of the freshet.Consumer interface.
func (s *mapStage[In, Out]) OnItem(item In) {
	if s.done.Load() {
		return
	}
	out, err := s.fn(item)
	if err != nil {
		s.fail(errors.Annotate(err, "map transform"))
		return
	}
	if freshet.IsNil(out) {
		s.fail(errors.Annotate(freshet.ErrNilItem, "map transform"))
		return
	}
	s.down.OnItem(out)
}

// OnError is part of the freshet.Consumer interface.
func (s *mapStage[In, Out]) OnError(err error) {
	if err == nil {
		err = freshet.ErrNilCause
	}
	if s.done.CompareAndSwap(false, true) {
		s.down.OnError(err)
	}
}

// OnComplete is part of the freshet.Consumer interface.
func (s *mapStage[In, Out]) OnComplete() {
	if s.done.CompareAndSwap(false, true) {
		s.down.OnComplete()
	}
}

func (s *mapStage[In, Out]) fail(err error) {
	if !s.done.CompareAndSwap(false, true) {
		return
	}
	if s.up != nil {
		s.up.Cancel()
	}
	s.down.OnError(err)
}
