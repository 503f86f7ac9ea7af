// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/deque"
	"github.com/juju/errors"
	"gopkg.in/tomb.v2"
)

// NewSingle returns a scheduler owning one goroutine. Every worker it
// mints shares that goroutine, so tasks scheduled on any of its
// workers run strictly one at a time; the queue as a whole is FIFO,
// which preserves FIFO per worker.
func NewSingle(clk clock.Clock) (Scheduler, error) {
	if clk == nil {
		return nil, errors.NotValidf("nil Clock")
	}
	s := &single{
		clock: clk,
		queue: deque.New(),
		stir:  make(chan struct{}, 1),
	}
	s.tomb.Go(s.loop)
	return s, nil
}

type single struct {
	tomb  tomb.Tomb
	clock clock.Clock

	mu    sync.Mutex
	queue *deque.Deque
	stir  chan struct{}
}

type queued struct {
	worker *boundWorker
	task   Task
}

// NewWorker is part of the Scheduler interface.
func (s *single) NewWorker() (Worker, error) {
	select {
	case <-s.tomb.Dying():
		return nil, errors.Trace(ErrDisposed)
	default:
	}
	return &boundWorker{scheduler: s, done: make(chan struct{})}, nil
}

// Kill is part of the worker.Worker interface.
func (s *single) Kill() {
	s.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (s *single) Wait() error {
	return s.tomb.Wait()
}

func (s *single) loop() error {
	for {
		select {
		case <-s.tomb.Dying():
			return tomb.ErrDying
		case <-s.stir:
		}
		for {
			s.mu.Lock()
			front, ok := s.queue.PopFront()
			s.mu.Unlock()
			if !ok {
				break
			}
			entry := front.(queued)
			// Tasks queued by a worker disposed since are dropped;
			// disposal stops future delivery, not just acceptance.
			if entry.worker.disposed.Load() {
				continue
			}
			run(entry.task)
		}
	}
}

func (s *single) enqueue(w *boundWorker, task Task) error {
	select {
	case <-s.tomb.Dying():
		return errors.Trace(ErrDisposed)
	default:
	}
	s.mu.Lock()
	s.queue.PushBack(queued{worker: w, task: task})
	s.mu.Unlock()
	select {
	case s.stir <- struct{}{}:
	default:
	}
	return nil
}

func (s *single) enqueueAfter(w *boundWorker, delay time.Duration, task Task) error {
	select {
	case <-s.tomb.Dying():
		return errors.Trace(ErrDisposed)
	default:
	}
	// A plain goroutine rather than tomb.Go: the timer must be free to
	// outlive nothing and die silently once the scheduler is dying,
	// and tomb.Go cannot be called on a tomb that may already be dead.
	go func() {
		select {
		case <-s.tomb.Dying():
		case <-s.clock.After(delay):
			if err := s.enqueue(w, task); err != nil {
				logger.Debugf("dropping delayed task: %v", err)
			}
		}
	}()
	return nil
}

type boundWorker struct {
	scheduler *single
	disposed  atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// Schedule is part of the Worker interface.
func (w *boundWorker) Schedule(task Task) error {
	if w.disposed.Load() {
		return errors.Trace(ErrDisposed)
	}
	return w.scheduler.enqueue(w, task)
}

// ScheduleAfter is part of the Worker interface.
func (w *boundWorker) ScheduleAfter(delay time.Duration, task Task) error {
	if w.disposed.Load() {
		return errors.Trace(ErrDisposed)
	}
	return w.scheduler.enqueueAfter(w, delay, task)
}

// Kill is part of the worker.Worker interface.
func (w *boundWorker) Kill() {
	w.disposed.Store(true)
	w.once.Do(func() {
		close(w.done)
	})
}

// Wait is part of the worker.Worker interface.
func (w *boundWorker) Wait() error {
	<-w.done
	return nil
}
