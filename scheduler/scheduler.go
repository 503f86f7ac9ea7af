// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

// Package scheduler provides the execution abstraction the handoff
// stages run on. A Scheduler owns zero or more goroutines and mints
// Workers; a Worker serialises the tasks scheduled on it, in FIFO
// order, onto exactly one goroutine. Workers minted from the same
// parallel scheduler may run concurrently with one another, but a
// single worker never runs two tasks at once.
//
// Schedulers and workers implement worker.Worker: Kill stops
// acceptance of new tasks and is idempotent; Wait blocks until the
// resources are released. A worker that is never killed holds its
// share of the scheduler's queue for the scheduler's lifetime.
package scheduler

import (
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/worker/v4"
)

var logger = loggo.GetLogger("freshet.scheduler")

// ErrDisposed is returned when scheduling on a killed worker or a
// killed scheduler.
const ErrDisposed = errors.ConstError("scheduler disposed")

// Task is a unit of work for a worker.
type Task func()

// Worker serialises tasks onto a single goroutine.
type Worker interface {
	worker.Worker

	// Schedule queues task for execution. Tasks scheduled on one
	// worker run one at a time, in the order scheduled.
	Schedule(task Task) error

	// ScheduleAfter queues task for execution once delay has elapsed.
	// Delayed tasks take their queue position at expiry, not at
	// scheduling time.
	ScheduleAfter(delay time.Duration, task Task) error
}

// Scheduler mints workers bound to its execution resources.
type Scheduler interface {
	worker.Worker

	// NewWorker returns a worker pinned to one of the scheduler's
	// goroutines.
	NewWorker() (Worker, error)
}

// run executes a task, containing any panic so that a broken task
// cannot take the scheduling goroutine down with it.
func run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Criticalf("scheduled task panicked: %v", r)
		}
	}()
	task()
}
