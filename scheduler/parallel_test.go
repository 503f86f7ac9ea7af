// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package scheduler_test

import (
	"sync"

	"github.com/juju/clock"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/juju/freshet/scheduler"
)

type ParallelSuite struct{}

var _ = gc.Suite(&ParallelSuite{})

func (*ParallelSuite) TestInvalidSize(c *gc.C) {
	_, err := scheduler.NewParallel(0, clock.WallClock)
	c.Check(err, jc.ErrorIs, errors.NotValid)
	c.Check(err, gc.ErrorMatches, "pool size 0 not valid")
}

func (*ParallelSuite) TestNilClockNotValid(c *gc.C) {
	_, err := scheduler.NewParallel(2, nil)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (*ParallelSuite) TestEachWorkerSerialisesItsTasks(c *gc.C) {
	sched, err := scheduler.NewParallel(4, clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, sched)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		w, err := sched.NewWorker()
		c.Assert(err, jc.ErrorIsNil)

		var log runLog
		wg.Add(1)
		for j := 0; j < 50; j++ {
			j := j
			c.Assert(w.Schedule(func() { log.add(j) }), jc.ErrorIsNil)
		}
		c.Assert(w.Schedule(func() {
			defer wg.Done()
			values := log.snapshot()
			c.Check(values, gc.HasLen, 50)
			for k, v := range values {
				c.Check(v, gc.Equals, k)
			}
		}), jc.ErrorIsNil)
	}
	wg.Wait()
}

func (*ParallelSuite) TestKillStopsAllShards(c *gc.C) {
	sched, err := scheduler.NewParallel(2, clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)
	w, err := sched.NewWorker()
	c.Assert(err, jc.ErrorIsNil)
	workertest.CleanKill(c, sched)

	err = w.Schedule(func() {})
	c.Check(err, jc.ErrorIs, scheduler.ErrDisposed)
	_, err = sched.NewWorker()
	c.Check(err, jc.ErrorIs, scheduler.ErrDisposed)
}
