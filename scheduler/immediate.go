// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
)

// Immediate returns a scheduler whose workers run tasks synchronously
// on the calling goroutine. It owns no resources; Kill and Wait exist
// only to satisfy the contract and to stop acceptance.
func Immediate() Scheduler {
	return &immediate{clock: clock.WallClock}
}

type immediate struct {
	clock    clock.Clock
	disposed atomic.Bool
}

// NewWorker is part of the Scheduler interface.
func (s *immediate) NewWorker() (Worker, error) {
	if s.disposed.Load() {
		return nil, errors.Trace(ErrDisposed)
	}
	return &immediateWorker{scheduler: s}, nil
}

// Kill is part of the worker.Worker interface.
func (s *immediate) Kill() {
	s.disposed.Store(true)
}

// Wait is part of the worker.Worker interface.
func (s *immediate) Wait() error {
	return nil
}

type immediateWorker struct {
	scheduler *immediate
	disposed  atomic.Bool
}

// Schedule is part of the Worker interface.
func (w *immediateWorker) Schedule(task Task) error {
	if w.disposed.Load() || w.scheduler.disposed.Load() {
		return errors.Trace(ErrDisposed)
	}
	run(task)
	return nil
}

// ScheduleAfter is part of the Worker interface. The calling
// goroutine is the execution resource, so the delay blocks it.
func (w *immediateWorker) ScheduleAfter(delay time.Duration, task Task) error {
	if w.disposed.Load() || w.scheduler.disposed.Load() {
		return errors.Trace(ErrDisposed)
	}
	<-w.scheduler.clock.After(delay)
	run(task)
	return nil
}

// Kill is part of the worker.Worker interface.
func (w *immediateWorker) Kill() {
	w.disposed.Store(true)
}

// Wait is part of the worker.Worker interface.
func (w *immediateWorker) Wait() error {
	return nil
}
