// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package source provides the elementary emitters. All of them are
// cold: every attachment gets a fresh cursor inside a fresh drain
// flow, so independent consumers never share position state.
package source

import (
	"github.com/juju/errors"

	"github.com/juju/freshet"
	"github.com/juju/freshet/drain"
)

// Array returns an emitter over a fixed sequence of items.
func Array[T any](items ...T) freshet.Emitter[T] {
	return array[T]{items: items}
}

type array[T any] struct {
	items []T
}

// Attach is part of the freshet.Emitter interface.
func (a array[T]) Attach(c freshet.Consumer[T]) {
	c.OnFlow(drain.New[T](c, &arrayCursor[T]{items: a.items}))
}

type arrayCursor[T any] struct {
	items []T
	pos   int
}

// Next is part of the drain.Cursor interface.
func (cur *arrayCursor[T]) Next() (T, bool, error) {
	if cur.Done() {
		var zero T
		return zero, false, nil
	}
	item := cur.items[cur.pos]
	cur.pos++
	return item, true, nil
}

// Done is part of the drain.Cursor interface.
func (cur *arrayCursor[T]) Done() bool {
	return cur.pos >= len(cur.items)
}

// Range returns an emitter over count consecutive integers starting
// at start.
func Range(start, count int) (freshet.Emitter[int], error) {
	if count < 0 {
		return nil, errors.NotValidf("count %d", count)
	}
	return rangeEmitter{start: start, count: count}, nil
}

type rangeEmitter struct {
	start, count int
}

// Attach is part of the freshet.Emitter interface.
func (r rangeEmitter) Attach(c freshet.Consumer[int]) {
	c.OnFlow(drain.New[int](c, &rangeCursor{start: r.start, count: r.count}))
}

type rangeCursor struct {
	start, count, pos int
}

// Next is part of the drain.Cursor interface.
func (cur *rangeCursor) Next() (int, bool, error) {
	if cur.Done() {
		return 0, false, nil
	}
	item := cur.start + cur.pos
	cur.pos++
	return item, true, nil
}

// Done is part of the drain.Cursor interface.
func (cur *rangeCursor) Done() bool {
	return cur.pos >= cur.count
}

// Empty returns an emitter that completes on the first valid request
// without delivering any items.
func Empty[T any]() freshet.Emitter[T] {
	return empty[T]{}
}

type empty[T any] struct{}

// Attach is part of the freshet.Emitter interface.
func (empty[T]) Attach(c freshet.Consumer[T]) {
	c.OnFlow(drain.New[T](c, emptyCursor[T]{}))
}

type emptyCursor[T any] struct{}

// Next is part of the drain.Cursor interface.
func (emptyCursor[T]) Next() (T, bool, error) {
	var zero T
	return zero, false, nil
}

// Done is part of the drain.Cursor interface.
func (emptyCursor[T]) Done() bool {
	return true
}

// Fail returns an emitter that signals err immediately after the flow
// grant. Terminal-only sources do not wait for demand, since no item
// delivery is involved. A nil err is replaced with ErrNilCause.
func Fail[T any](err error) freshet.Emitter[T] {
	if err == nil {
		err = freshet.ErrNilCause
	}
	return failed[T]{err: err}
}

type failed[T any] struct {
	err error
}

// Attach is part of the freshet.Emitter interface.
func (f failed[T]) Attach(c freshet.Consumer[T]) {
	flow := &inertFlow{}
	c.OnFlow(flow)
	if !flow.Cancelled() {
		c.OnError(f.err)
	}
}

// Deferred returns an emitter that invokes compute lazily, exactly
// once, on the first valid request; the computed value is delivered
// and completion follows in the same turn. A compute failure, or a
// nil value of a nilable kind, becomes the terminal error instead.
func Deferred[T any](compute func() (T, error)) (freshet.Emitter[T], error) {
	if compute == nil {
		return nil, errors.NotValidf("nil compute function")
	}
	return deferred[T]{compute: compute}, nil
}

type deferred[T any] struct {
	compute func() (T, error)
}

// Attach is part of the freshet.Emitter interface.
func (d deferred[T]) Attach(c freshet.Consumer[T]) {
	c.OnFlow(drain.New[T](c, &deferredCursor[T]{compute: d.compute}))
}

type deferredCursor[T any] struct {
	compute func() (T, error)
	spent   bool
}

// Next is part of the drain.Cursor interface.
func (cur *deferredCursor[T]) Next() (T, bool, error) {
	var zero T
	if cur.spent {
		return zero, false, nil
	}
	cur.spent = true
	item, err := cur.compute()
	if err != nil {
		return zero, false, errors.Annotate(err, "deferred computation")
	}
	if freshet.IsNil(item) {
		return zero, false, errors.Annotate(freshet.ErrNilItem, "deferred computation")
	}
	return item, true, nil
}

// Done is part of the drain.Cursor interface.
func (cur *deferredCursor[T]) Done() bool {
	return cur.spent
}
