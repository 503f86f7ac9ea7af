// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package scheduler_test

import (
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/freshet/scheduler"
)

type ImmediateSuite struct{}

var _ = gc.Suite(&ImmediateSuite{})

func (*ImmediateSuite) TestRunsOnCallingGoroutine(c *gc.C) {
	w, err := scheduler.Immediate().NewWorker()
	c.Assert(err, jc.ErrorIsNil)

	ran := false
	c.Assert(w.Schedule(func() { ran = true }), jc.ErrorIsNil)
	c.Check(ran, jc.IsTrue)
}

func (*ImmediateSuite) TestContainsPanic(c *gc.C) {
	w, err := scheduler.Immediate().NewWorker()
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(w.Schedule(func() { panic("broken task") }), jc.ErrorIsNil)

	// The worker survives a panicking task.
	ran := false
	c.Assert(w.Schedule(func() { ran = true }), jc.ErrorIsNil)
	c.Check(ran, jc.IsTrue)
}

func (*ImmediateSuite) TestKilledWorkerRefusesTasks(c *gc.C) {
	w, err := scheduler.Immediate().NewWorker()
	c.Assert(err, jc.ErrorIsNil)
	w.Kill()
	c.Assert(w.Wait(), jc.ErrorIsNil)

	err = w.Schedule(func() { c.Fatalf("task ran on killed worker") })
	c.Check(err, jc.ErrorIs, scheduler.ErrDisposed)
}

func (*ImmediateSuite) TestKilledSchedulerRefusesWorkers(c *gc.C) {
	sched := scheduler.Immediate()
	w, err := sched.NewWorker()
	c.Assert(err, jc.ErrorIsNil)
	sched.Kill()
	c.Assert(sched.Wait(), jc.ErrorIsNil)

	_, err = sched.NewWorker()
	c.Check(err, jc.ErrorIs, scheduler.ErrDisposed)
	err = w.Schedule(func() {})
	c.Check(err, jc.ErrorIs, scheduler.ErrDisposed)
}
