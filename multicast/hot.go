// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package multicast provides the sources that deviate from the pull
// contract: a hot broadcaster driven by an external producer rather
// than by consumer demand, and a connectable wrapper that defers its
// upstream attachment until explicitly connected.
package multicast

import (
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"

	"github.com/juju/freshet"
)

var logger = loggo.GetLogger("freshet.multicast")

// ErrTerminated is returned when emitting on a broadcaster that has
// already completed or failed.
const ErrTerminated = errors.ConstError("broadcast already terminated")

const signalTopic = "signal"

// Hot is a broadcaster: an emitter whose delivery rate is driven by
// the caller of Emit, not by consumer demand. Request on its flows is
// deliberately ignored, a documented exemption from the demand
// invariant; cancellation is still honoured. Consumers attaching
// after termination receive only the terminal signal.
//
// Fan-out is synchronous: Emit, Complete and Fail return once every
// attached, non-cancelled consumer has observed the signal, each on
// its own ordered subscription queue. Because they wait for the
// consumers, publications must not be made from within a consumer's
// own signal handler: the publication cannot finish until that handler
// returns, so a reentrant Emit deadlocks its caller.
type Hot[T any] struct {
	hub *pubsub.SimpleHub

	// emitMu serialises publications so that every consumer observes
	// the same signal order the producer used.
	emitMu sync.Mutex

	mu          sync.Mutex
	terminated  bool
	terminalErr error
}

// NewHot returns a broadcaster with no attached consumers.
func NewHot[T any]() *Hot[T] {
	return &Hot[T]{
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: logger.Child("hub"),
		}),
	}
}

type hotSignal[T any] struct {
	kind signalKind
	item T
	err  error
}

type signalKind int

const (
	signalItem signalKind = iota
	signalError
	signalComplete
)

// Attach is part of the freshet.Emitter interface.
func (h *Hot[T]) Attach(c freshet.Consumer[T]) {
	h.mu.Lock()
	if h.terminated {
		err := h.terminalErr
		h.mu.Unlock()
		c.OnFlow(&hotFlow[T]{})
		if err != nil {
			c.OnError(err)
		} else {
			c.OnComplete()
		}
		return
	}
	flow := &hotFlow[T]{consumer: c}
	flow.unsub = h.hub.Subscribe(signalTopic, flow.handle)
	h.mu.Unlock()
	c.OnFlow(flow)
}

// Emit broadcasts item to every attached consumer, returning once all
// of them have observed it.
func (h *Hot[T]) Emit(item T) error {
	return h.publish(hotSignal[T]{kind: signalItem, item: item})
}

// Complete terminates the broadcast successfully. Consumers attaching
// later receive an immediate completion.
func (h *Hot[T]) Complete() error {
	return h.publish(hotSignal[T]{kind: signalComplete})
}

// Fail terminates the broadcast with err. A nil err is replaced with
// ErrNilCause.
func (h *Hot[T]) Fail(err error) error {
	if err == nil {
		err = freshet.ErrNilCause
	}
	return h.publish(hotSignal[T]{kind: signalError, err: err})
}

func (h *Hot[T]) publish(sig hotSignal[T]) error {
	h.emitMu.Lock()
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		h.emitMu.Unlock()
		return errors.Trace(ErrTerminated)
	}
	if sig.kind != signalItem {
		h.terminated = true
		h.terminalErr = sig.err
	}
	h.mu.Unlock()
	done := h.hub.Publish(signalTopic, sig)
	// The signal is on every subscription queue; emitMu is released
	// before the wait so that only the publication order, not the
	// consumers' processing, is serialised by it.
	h.emitMu.Unlock()
	// Wait for every subscription queue to process the signal, so the
	// producer cannot outrun its consumers' ordering guarantees.
	done()
	return nil
}

// hotFlow is one consumer's attachment to the broadcaster.
type hotFlow[T any] struct {
	consumer  freshet.Consumer[T]
	unsub     func()
	cancelled atomic.Bool
	finished  atomic.Bool
}

// Request is part of the freshet.Flow interface. Demand is ignored:
// the broadcaster's delivery rate belongs to the producer.
func (f *hotFlow[T]) Request(n int64) {}

// Cancel is part of the freshet.Flow interface.
func (f *hotFlow[T]) Cancel() {
	if !f.cancelled.CompareAndSwap(false, true) {
		return
	}
	if f.unsub != nil {
		f.unsub()
	}
}

// handle runs on this subscription's pubsub queue, in publication
// order.
func (f *hotFlow[T]) handle(topic string, data interface{}) {
	if f.cancelled.Load() || f.finished.Load() {
		return
	}
	sig, ok := data.(hotSignal[T])
	if !ok {
		logger.Criticalf("programming error: expected hotSignal, got %T", data)
		return
	}
	switch sig.kind {
	case signalItem:
		f.consumer.OnItem(sig.item)
	case signalError:
		if f.finished.CompareAndSwap(false, true) {
			f.consumer.OnError(sig.err)
			f.unsub()
		}
	case signalComplete:
		if f.finished.CompareAndSwap(false, true) {
			f.consumer.OnComplete()
			f.unsub()
		}
	}
}
