// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package freshet

import (
	"math"
	"reflect"
)

// Unbounded is the saturating sentinel for demand: a consumer that
// requests Unbounded items has opted out of flow control for the rest
// of the subscription. Demand arithmetic clamps here and never wraps.
const Unbounded int64 = math.MaxInt64

// Flow is the handle granted to a Consumer when it attaches to an
// Emitter. It is bound to exactly one consumer for its lifetime.
type Flow interface {
	// Request grants the emitter permission to deliver up to n more
	// items. Demand accumulates across calls, saturating at Unbounded.
	// Requesting a non-positive amount is a contract violation: the
	// subscription is terminated with an error carrying
	// ErrNonPositiveDemand, and the violation is never silently
	// ignored. Request may legally be called from within an OnItem
	// delivery.
	Request(n int64)

	// Cancel withdraws the consumer from the subscription. It is safe
	// to call from any goroutine, repeatedly, and from within a signal
	// handler; once observed it is permanent, and no further signals
	// are delivered.
	Cancel()
}

// Consumer receives the signals of one subscription.
type Consumer[T any] interface {
	// OnFlow hands the consumer its flow handle. It is called exactly
	// once per attachment, before any other signal.
	OnFlow(f Flow)

	// OnItem delivers one item. Cumulative deliveries never exceed
	// cumulative granted demand, except for multicast sources, which
	// document their exemption.
	OnItem(item T)

	// OnError terminates the subscription with a failure. The cause is
	// never nil; stages substitute ErrNilCause for a nil cause.
	OnError(err error)

	// OnComplete terminates the subscription successfully.
	OnComplete()
}

// Emitter is a source of items. Attach never returns an error: any
// failure to begin the subscription arrives as a terminal signal on
// the consumer, after the flow grant.
type Emitter[T any] interface {
	Attach(c Consumer[T])
}

// Stage is an operator: a consumer to its upstream and an emitter to
// its downstream. A stage exists for the lifetime of one subscription
// and is never reused across attachments.
type Stage[In, Out any] interface {
	Consumer[In]
	Emitter[Out]
}

// Accumulate adds n to the current demand, saturating at Unbounded.
// The result is never negative and never wraps.
func Accumulate(current, n int64) int64 {
	if current == Unbounded || n == Unbounded {
		return Unbounded
	}
	sum := current + n
	if sum < 0 {
		return Unbounded
	}
	return sum
}

// IsNil reports whether item is a nil value of a nilable kind. Value
// kinds can never be nil and always pass. A nil item is a contract
// violation: stages that synthesize items use this to terminate with
// ErrNilItem instead of delivering it.
func IsNil(item any) bool {
	if item == nil {
		return true
	}
	v := reflect.ValueOf(item)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	}
	return false
}
