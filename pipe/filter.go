// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package pipe

import (
	"sync/atomic"

	"github.com/juju/errors"

	"github.com/juju/freshet"
)

// Filter returns an emitter delivering only the upstream items pred
// accepts. The stage is itself the flow granted downstream: every
// rejected item has consumed one unit of upstream demand without
// producing output, so the stage requests one replacement item
// upstream per rejection. A downstream request for m items therefore
// eventually yields m accepted items, source permitting.
func Filter[T any](upstream freshet.Emitter[T], pred func(T) (bool, error)) (freshet.Emitter[T], error) {
	if upstream == nil {
		return nil, errors.NotValidf("nil upstream")
	}
	if pred == nil {
		return nil, errors.NotValidf("nil predicate")
	}
	return filterEmitter[T]{upstream: upstream, pred: pred}, nil
}

type filterEmitter[T any] struct {
	upstream freshet.Emitter[T]
	pred     func(T) (bool, error)
}

// Attach is part of the freshet.Emitter interface.
func (e filterEmitter[T]) Attach(c freshet.Consumer[T]) {
	e.upstream.Attach(&filterStage[T]{down: c, pred: e.pred})
}

type filterStage[T any] struct {
	down freshet.Consumer[T]
	pred func(T) (bool, error)
	up   freshet.Flow
	done atomic.Bool
}

// OnFlow is part of the freshet.Consumer interface.
func (s *filterStage[T]) OnFlow(up freshet.Flow) {
	if s.up != nil {
		up.Cancel()
		s.fail(errors.Trace(freshet.ErrDuplicateFlow))
		return
	}
	s.up = up
	s.down.OnFlow(s)
}

// Request is part of the freshet.Flow interface.
func (s *filterStage[T]) Request(n int64) {
	if n <= 0 {
		s.fail(errors.Annotatef(freshet.ErrNonPositiveDemand, "requested %d", n))
		return
	}
	s.up.Request(n)
}

// Cancel is part of the freshet.Flow interface.
func (s *filterStage[T]) Cancel() {
	s.up.Cancel()
}

// OnItem is part of the freshet.Consumer interface.
func (s *filterStage[T]) OnItem(item T) {
	if s.done.Load() {
		return
	}
	keep, err := s.pred(item)
	if err != nil {
		s.fail(errors.Annotate(err, "filter predicate"))
		return
	}
	if keep {
		s.down.OnItem(item)
		return
	}
	// The rejected item spent a unit of demand; claim a replacement.
	s.up.Request(1)
}

// OnError is part of the freshet.Consumer interface.
func (s *filterStage[T]) OnError(err error) {
	if err == nil {
		err = freshet.ErrNilCause
	}
	if s.done.CompareAndSwap(false, true) {
		s.down.OnError(err)
	}
}

// OnComplete is part of the freshet.Consumer interface.
func (s *filterStage[T]) OnComplete() {
	if s.done.CompareAndSwap(false, true) {
		s.down.OnComplete()
	}
}

func (s *filterStage[T]) fail(err error) {
	if !s.done.CompareAndSwap(false, true) {
		return
	}
	if s.up != nil {
		s.up.Cancel()
	}
	s.down.OnError(err)
}
