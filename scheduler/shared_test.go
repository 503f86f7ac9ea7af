// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package scheduler_test

import (
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/juju/freshet/scheduler"
)

type SharedSuite struct{}

var _ = gc.Suite(&SharedSuite{})

func (*SharedSuite) TearDownTest(c *gc.C) {
	scheduler.ResetShared()
}

func (*SharedSuite) TestSharedSingleIsSingleton(c *gc.C) {
	first := scheduler.SharedSingle()
	second := scheduler.SharedSingle()
	c.Check(first, gc.Equals, second)
	workertest.CheckAlive(c, first)
}

func (*SharedSuite) TestSharedParallelIsSingleton(c *gc.C) {
	first := scheduler.SharedParallel()
	second := scheduler.SharedParallel()
	c.Check(first, gc.Equals, second)
}

func (*SharedSuite) TestResetSharedStartsFresh(c *gc.C) {
	first := scheduler.SharedSingle()
	scheduler.ResetShared()

	second := scheduler.SharedSingle()
	c.Check(first, gc.Not(gc.Equals), second)
	workertest.CheckAlive(c, second)

	// The first instance is dead.
	w, err := first.NewWorker()
	c.Check(w, gc.IsNil)
	c.Check(err, jc.ErrorIs, scheduler.ErrDisposed)
}
