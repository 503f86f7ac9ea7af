// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package streamtest provides helpers for exercising the stream
// contract in tests, in the manner of workertest: a recording consumer
// that captures every signal it receives, and a recording flow for
// probing the demand an operator forwards upstream.
package streamtest

import (
	"sync"
	"time"

	"github.com/juju/testing"
	gc "gopkg.in/check.v1"

	"github.com/juju/freshet"
)

// Recorder is a Consumer that records everything delivered to it.
// If autoRequest is non-zero, the recorder requests that much demand
// as soon as its flow is granted.
type Recorder[T any] struct {
	mu          sync.Mutex
	flow        freshet.Flow
	grants      int
	items       []T
	err         error
	completed   bool
	breaches    int
	autoRequest int64
	done        chan struct{}
}

// NewRecorder returns a recording consumer. Pass freshet.Unbounded to
// opt out of flow control, a smaller positive amount to exercise it,
// or zero to issue requests manually through Request.
func NewRecorder[T any](autoRequest int64) *Recorder[T] {
	return &Recorder[T]{
		autoRequest: autoRequest,
		done:        make(chan struct{}),
	}
}

// OnFlow is part of the freshet.Consumer interface.
func (r *Recorder[T]) OnFlow(f freshet.Flow) {
	r.mu.Lock()
	r.grants++
	r.flow = f
	n := r.autoRequest
	r.mu.Unlock()
	if n != 0 {
		f.Request(n)
	}
}

// OnItem is part of the freshet.Consumer interface.
func (r *Recorder[T]) OnItem(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
}

// OnError is part of the freshet.Consumer interface.
func (r *Recorder[T]) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminated() {
		r.breaches++
		return
	}
	r.err = err
	close(r.done)
}

// OnComplete is part of the freshet.Consumer interface.
func (r *Recorder[T]) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminated() {
		r.breaches++
		return
	}
	r.completed = true
	close(r.done)
}

func (r *Recorder[T]) terminated() bool {
	return r.completed || r.err != nil
}

// Request forwards demand through the recorded flow.
func (r *Recorder[T]) Request(n int64) {
	r.mu.Lock()
	f := r.flow
	r.mu.Unlock()
	if f != nil {
		f.Request(n)
	}
}

// Cancel withdraws through the recorded flow.
func (r *Recorder[T]) Cancel() {
	r.mu.Lock()
	f := r.flow
	r.mu.Unlock()
	if f != nil {
		f.Cancel()
	}
}

// Items returns a copy of the items delivered so far.
func (r *Recorder[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]T, len(r.items))
	copy(items, r.items)
	return items
}

// Err returns the terminal error, if any.
func (r *Recorder[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Completed reports whether OnComplete was delivered.
func (r *Recorder[T]) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// Grants reports how many times OnFlow was called. Anything other
// than one is a contract breach.
func (r *Recorder[T]) Grants() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grants
}

// Breaches reports how many signals arrived after a terminal one.
func (r *Recorder[T]) Breaches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breaches
}

// Done is closed on the first terminal signal.
func (r *Recorder[T]) Done() <-chan struct{} {
	return r.done
}

// Wait fails the test if no terminal signal arrives in time.
func (r *Recorder[T]) Wait(c *gc.C) {
	select {
	case <-r.done:
	case <-time.After(testing.LongWait):
		c.Fatalf("timed out waiting for terminal signal")
	}
}

// Pusher is an Emitter driven by hand: the test pushes whatever signal
// sequence it wants to exercise. The granted flow is a FlowRecorder, so
// the same pusher also observes the demand a stage sends upstream.
type Pusher[T any] struct {
	Flow *FlowRecorder

	mu       sync.Mutex
	consumer freshet.Consumer[T]
}

// NewPusher returns an unattached pusher.
func NewPusher[T any]() *Pusher[T] {
	return &Pusher[T]{Flow: &FlowRecorder{}}
}

// Attach is part of the freshet.Emitter interface.
func (p *Pusher[T]) Attach(c freshet.Consumer[T]) {
	p.mu.Lock()
	p.consumer = c
	p.mu.Unlock()
	c.OnFlow(p.Flow)
}

// Attached reports whether a consumer has attached yet.
func (p *Pusher[T]) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumer != nil
}

func (p *Pusher[T]) downstream(c *gc.C) freshet.Consumer[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.consumer == nil {
		c.Fatalf("pusher has no attached consumer")
	}
	return p.consumer
}

// Push delivers an item to the attached consumer.
func (p *Pusher[T]) Push(c *gc.C, item T) {
	p.downstream(c).OnItem(item)
}

// Finish delivers completion to the attached consumer.
func (p *Pusher[T]) Finish(c *gc.C) {
	p.downstream(c).OnComplete()
}

// FailWith delivers a terminal error to the attached consumer.
func (p *Pusher[T]) FailWith(c *gc.C, err error) {
	p.downstream(c).OnError(err)
}

// FlowRecorder is a Flow that records the demand requested of it and
// whether it was cancelled, for probing a stage from upstream.
type FlowRecorder struct {
	mu        sync.Mutex
	requests  []int64
	cancelled bool
}

// Request is part of the freshet.Flow interface.
func (f *FlowRecorder) Request(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, n)
}

// Cancel is part of the freshet.Flow interface.
func (f *FlowRecorder) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
}

// Requests returns a copy of the requested amounts, in order.
func (f *FlowRecorder) Requests() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	requests := make([]int64, len(f.requests))
	copy(requests, f.requests)
	return requests
}

// Total returns the saturating sum of all requested demand.
func (f *FlowRecorder) Total() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, n := range f.requests {
		total = freshet.Accumulate(total, n)
	}
	return total
}

// Cancelled reports whether Cancel was called.
func (f *FlowRecorder) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}
