// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package pipe

import (
	"sync/atomic"

	"github.com/juju/errors"

	"github.com/juju/freshet"
)

// Take returns an emitter delivering at most limit upstream items.
// Forwarded demand is capped at the remaining quota, so upstream is
// never asked for more than will ever be used; delivering the
// limit-th item cancels upstream and completes downstream in the same
// turn. A zero limit completes on attachment.
func Take[T any](upstream freshet.Emitter[T], limit int64) (freshet.Emitter[T], error) {
	if upstream == nil {
		return nil, errors.NotValidf("nil upstream")
	}
	if limit < 0 {
		return nil, errors.NotValidf("limit %d", limit)
	}
	return takeEmitter[T]{upstream: upstream, limit: limit}, nil
}

type takeEmitter[T any] struct {
	upstream freshet.Emitter[T]
	limit    int64
}

// Attach is part of the freshet.Emitter interface.
func (e takeEmitter[T]) Attach(c freshet.Consumer[T]) {
	e.upstream.Attach(&takeStage[T]{down: c, limit: e.limit})
}

type takeStage[T any] struct {
	down  freshet.Consumer[T]
	limit int64
	up    freshet.Flow

	// requested is the quota already claimed from upstream; it only
	// ever grows towards limit, so concurrent requesters can never
	// over-claim between them.
	requested atomic.Int64
	emitted   int64
	done      atomic.Bool
}

// OnFlow is part of the freshet.Consumer interface.
func (s *takeStage[T]) OnFlow(up freshet.Flow) {
	if s.up != nil {
		up.Cancel()
		s.fail(errors.Trace(freshet.ErrDuplicateFlow))
		return
	}
	s.up = up
	s.down.OnFlow(s)
	if s.limit == 0 && s.done.CompareAndSwap(false, true) {
		up.Cancel()
		s.down.OnComplete()
	}
}

// Request is part of the freshet.Flow interface.
func (s *takeStage[T]) Request(n int64) {
	if n <= 0 {
		s.fail(errors.Annotatef(freshet.ErrNonPositiveDemand, "requested %d", n))
		return
	}
	for {
		current := s.requested.Load()
		if current >= s.limit {
			// Everything we will ever deliver is already claimed.
			return
		}
		want := freshet.Accumulate(current, n)
		if want > s.limit {
			want = s.limit
		}
		if s.requested.CompareAndSwap(current, want) {
			s.up.Request(want - current)
			return
		}
	}
}

// Cancel is part of the freshet.Flow interface.
func (s *takeStage[T]) Cancel() {
	s.up.Cancel()
}

// OnItem is part of the freshet.Consumer interface.
func (s *takeStage[T]) OnItem(item T) {
	if s.done.Load() {
		return
	}
	s.emitted++
	s.down.OnItem(item)
	if s.emitted >= s.limit && s.done.CompareAndSwap(false, true) {
		s.up.Cancel()
		s.down.OnComplete()
	}
}

// OnError is part of the freshet.Consumer interface.
func (s *takeStage[T]) OnError(err error) {
	if err == nil {
		err = freshet.ErrNilCause
	}
	if s.done.CompareAndSwap(false, true) {
		s.down.OnError(err)
	}
}

// OnComplete is part of the freshet.Consumer interface.
func (s *takeStage[T]) OnComplete() {
	if s.done.CompareAndSwap(false, true) {
		s.down.OnComplete()
	}
}

func (s *takeStage[T]) fail(err error) {
	if !s.done.CompareAndSwap(false, true) {
		return
	}
	if s.up != nil {
		s.up.Cancel()
	}
	s.down.OnError(err)
}
