// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package scheduler

import (
	"sync/atomic"

	"github.com/juju/clock"
	"github.com/juju/errors"
)

// NewParallel returns a scheduler owning a fixed pool of size
// goroutines. Each minted worker is pinned round-robin to one of
// them, so a worker's own tasks are still serialised even though
// workers on different goroutines run concurrently.
func NewParallel(size int, clk clock.Clock) (Scheduler, error) {
	if size < 1 {
		return nil, errors.NotValidf("pool size %d", size)
	}
	if clk == nil {
		return nil, errors.NotValidf("nil Clock")
	}
	p := &parallel{shards: make([]Scheduler, size)}
	for i := range p.shards {
		shard, err := NewSingle(clk)
		if err != nil {
			// Unwind the shards already started.
			p.Kill()
			_ = p.Wait()
			return nil, errors.Trace(err)
		}
		p.shards[i] = shard
	}
	return p, nil
}

type parallel struct {
	shards []Scheduler
	next   atomic.Uint64
}

// NewWorker is part of the Scheduler interface.
func (p *parallel) NewWorker() (Worker, error) {
	shard := p.shards[(p.next.Add(1)-1)%uint64(len(p.shards))]
	w, err := shard.NewWorker()
	return w, errors.Trace(err)
}

// Kill is part of the worker.Worker interface.
func (p *parallel) Kill() {
	for _, shard := range p.shards {
		if shard != nil {
			shard.Kill()
		}
	}
}

// Wait is part of the worker.Worker interface.
func (p *parallel) Wait() error {
	var first error
	for _, shard := range p.shards {
		if shard == nil {
			continue
		}
		if err := shard.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return errors.Trace(first)
}
