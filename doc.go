// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package freshet implements an asynchronous, pull-based streaming
// protocol: a bounded or unbounded sequence of values moves from an
// emitter to a consumer under explicit flow control, so that a slow
// consumer is never overrun by a fast producer.
//
// The contract has four roles. An Emitter is a source of items; a
// Consumer attaches to it and receives signals; a Flow is the handle
// through which the consumer expresses demand and withdraws; a Stage
// is simultaneously a consumer of its upstream and an emitter to its
// downstream, which is how operators compose.
//
// Per attachment the signal order is always:
//
//	OnFlow, exactly once,
//	then zero or more OnItem calls, never exceeding granted demand,
//	then at most one of OnError or OnComplete.
//
// Nothing follows a terminal signal, and nothing at all follows an
// observed cancellation. Emitters are cold unless documented otherwise:
// each attachment gets an independent state machine, so attaching twice
// to the same emitter yields two independent subscriptions.
//
// Subpackages provide the building blocks: drain holds the non-blocking
// demand-tracking emission engine shared by pull sources; source holds
// array, range, empty, failed and deferred emitters; pipe holds the
// operators (map, filter, take, error recovery, and the goroutine
// handoff stages); scheduler provides the worker abstraction the
// handoff stages run on; multicast provides hot and connectable
// sources; buffer bridges push-heavy producers to pull consumers.
package freshet
