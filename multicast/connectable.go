// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package multicast

import (
	"sync"

	"github.com/juju/errors"

	"github.com/juju/freshet"
)

// Connectable shares one upstream subscription between any number of
// consumers, deferring the upstream attachment until Connect (or, in
// the auto-connect form, until enough consumers have attached). Once
// connected it requests unbounded demand upstream and re-broadcasts
// through an internal hot broadcaster, so late attachers miss items
// already delivered.
type Connectable[T any] struct {
	upstream  freshet.Emitter[T]
	hot       *Hot[T]
	threshold int

	mu         sync.Mutex
	attached   int
	connected  bool
	disconnect func()
}

// NewConnectable returns a connectable around upstream that attaches
// only when Connect is called.
func NewConnectable[T any](upstream freshet.Emitter[T]) (*Connectable[T], error) {
	if upstream == nil {
		return nil, errors.NotValidf("nil upstream")
	}
	return &Connectable[T]{upstream: upstream, hot: NewHot[T]()}, nil
}

// NewAutoConnect returns a connectable that attaches upstream as soon
// as threshold consumers have attached to it.
func NewAutoConnect[T any](upstream freshet.Emitter[T], threshold int) (*Connectable[T], error) {
	if upstream == nil {
		return nil, errors.NotValidf("nil upstream")
	}
	if threshold < 1 {
		return nil, errors.NotValidf("threshold %d", threshold)
	}
	return &Connectable[T]{upstream: upstream, hot: NewHot[T](), threshold: threshold}, nil
}

// Attach is part of the freshet.Emitter interface.
func (c *Connectable[T]) Attach(consumer freshet.Consumer[T]) {
	c.hot.Attach(consumer)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached++
	if c.threshold > 0 && c.attached >= c.threshold && !c.connected {
		c.connectLocked()
	}
}

// Connect attaches to the upstream emitter and starts re-broadcasting.
// It is idempotent: repeated calls return the same disposer, which
// cancels the upstream subscription.
func (c *Connectable[T]) Connect() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		c.connectLocked()
	}
	return c.disconnect
}

func (c *Connectable[T]) connectLocked() {
	c.connected = true
	bridge := &hotBridge[T]{hot: c.hot}
	var once sync.Once
	c.disconnect = func() {
		once.Do(bridge.cancel)
	}
	// Attaching may deliver synchronously; the bridge touches only the
	// hot broadcaster, never this mutex.
	c.upstream.Attach(bridge)
}

// hotBridge consumes the upstream subscription and republishes every
// signal through the hot broadcaster.
type hotBridge[T any] struct {
	hot *Hot[T]

	mu   sync.Mutex
	up   freshet.Flow
	dead bool
}

func (b *hotBridge[T]) cancel() {
	b.mu.Lock()
	b.dead = true
	up := b.up
	b.mu.Unlock()
	if up != nil {
		up.Cancel()
	}
}

// OnFlow is part of the freshet.Consumer interface.
func (b *hotBridge[T]) OnFlow(up freshet.Flow) {
	b.mu.Lock()
	b.up = up
	dead := b.dead
	b.mu.Unlock()
	if dead {
		up.Cancel()
		return
	}
	up.Request(freshet.Unbounded)
}

// OnItem is part of the freshet.Consumer interface.
func (b *hotBridge[T]) OnItem(item T) {
	if err := b.hot.Emit(item); err != nil {
		logger.Debugf("dropping item after broadcast termination: %v", err)
	}
}

// OnError is part of the freshet.Consumer interface.
func (b *hotBridge[T]) OnError(err error) {
	if err := b.hot.Fail(err); err != nil {
		logger.Debugf("dropping error after broadcast termination: %v", err)
	}
}

// OnComplete is part of the freshet.Consumer interface.
func (b *hotBridge[T]) OnComplete() {
	if err := b.hot.Complete(); err != nil {
		logger.Debugf("dropping completion after broadcast termination: %v", err)
	}
}
