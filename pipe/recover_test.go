// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package pipe_test

import (
	"sync/atomic"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/freshet"
	"github.com/juju/freshet/pipe"
	"github.com/juju/freshet/source"
	"github.com/juju/freshet/streamtest"
)

type ResumeSuite struct{}

var _ = gc.Suite(&ResumeSuite{})

func (*ResumeSuite) TestContinuesFromFallback(c *gc.C) {
	pusher := streamtest.NewPusher[int]()
	emitter, err := pipe.ResumeOnError(pusher, func(error) (freshet.Emitter[int], error) {
		return source.Array(7, 8, 9), nil
	})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](5)
	emitter.Attach(rec)
	pusher.Push(c, 1)
	pusher.Push(c, 2)
	pusher.FailWith(c, errors.Errorf("boom"))

	// The fallback inherits the three units of unsatisfied demand, and
	// the downstream consumer never sees a second flow grant.
	c.Check(rec.Items(), jc.DeepEquals, []int{1, 2, 7, 8, 9})
	c.Check(rec.Completed(), jc.IsTrue)
	c.Check(rec.Grants(), gc.Equals, 1)
	c.Check(rec.Err(), jc.ErrorIsNil)
}

func (*ResumeSuite) TestFallbackHonoursRemainingDemand(c *gc.C) {
	pusher := streamtest.NewPusher[int]()
	emitter, err := pipe.ResumeOnError(pusher, func(error) (freshet.Emitter[int], error) {
		return source.Array(7, 8, 9), nil
	})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](3)
	emitter.Attach(rec)
	pusher.Push(c, 1)
	pusher.Push(c, 2)
	pusher.FailWith(c, errors.Errorf("boom"))

	c.Check(rec.Items(), jc.DeepEquals, []int{1, 2, 7})
	c.Check(rec.Completed(), jc.IsFalse)

	rec.Request(5)
	c.Check(rec.Items(), jc.DeepEquals, []int{1, 2, 7, 8, 9})
	c.Check(rec.Completed(), jc.IsTrue)
}

func (*ResumeSuite) TestSelectorErrorChainsOriginal(c *gc.C) {
	emitter, err := pipe.ResumeOnError(source.Fail[int](errors.Errorf("boom")),
		func(error) (freshet.Emitter[int], error) {
			return nil, errors.Errorf("pick failed")
		})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](0)
	emitter.Attach(rec)
	c.Check(rec.Err(), gc.ErrorMatches, "selecting fallback failed: pick failed: boom")
}

func (*ResumeSuite) TestNilFallbackChainsOriginal(c *gc.C) {
	emitter, err := pipe.ResumeOnError(source.Fail[int](errors.Errorf("boom")),
		func(error) (freshet.Emitter[int], error) {
			return nil, nil
		})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](0)
	emitter.Attach(rec)
	c.Check(rec.Err(), gc.ErrorMatches, "fallback selector returned nil emitter: boom")
}

func (*ResumeSuite) TestFailingFallbackIsNotResumedAgain(c *gc.C) {
	var calls atomic.Int64
	emitter, err := pipe.ResumeOnError(source.Fail[int](errors.Errorf("first")),
		func(error) (freshet.Emitter[int], error) {
			calls.Add(1)
			return source.Fail[int](errors.Errorf("second")), nil
		})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](0)
	emitter.Attach(rec)
	c.Check(rec.Err(), gc.ErrorMatches, "second")
	c.Check(calls.Load(), gc.Equals, int64(1))
	c.Check(rec.Breaches(), gc.Equals, 0)
}

func (*ResumeSuite) TestCompletionPassesThrough(c *gc.C) {
	emitter, err := pipe.ResumeOnError(source.Array(1, 2), func(error) (freshet.Emitter[int], error) {
		c.Fatalf("selector must not run on completion")
		return nil, nil
	})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](freshet.Unbounded)
	emitter.Attach(rec)
	c.Check(rec.Items(), jc.DeepEquals, []int{1, 2})
	c.Check(rec.Completed(), jc.IsTrue)
}

type ReturnSuite struct{}

var _ = gc.Suite(&ReturnSuite{})

func (*ReturnSuite) TestSubstitutesAndCompletes(c *gc.C) {
	pusher := streamtest.NewPusher[int]()
	emitter, err := pipe.ReturnOnError(pusher, func(error) (int, error) {
		return -1, nil
	})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](3)
	emitter.Attach(rec)
	pusher.Push(c, 1)
	pusher.FailWith(c, errors.Errorf("boom"))

	c.Check(rec.Items(), jc.DeepEquals, []int{1, -1})
	c.Check(rec.Completed(), jc.IsTrue)
	c.Check(rec.Err(), jc.ErrorIsNil)
}

func (*ReturnSuite) TestSubstituteWaitsForDemand(c *gc.C) {
	emitter, err := pipe.ReturnOnError(source.Fail[int](errors.Errorf("boom")),
		func(error) (int, error) {
			return 99, nil
		})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](0)
	emitter.Attach(rec)
	c.Check(rec.Items(), gc.HasLen, 0)
	c.Check(rec.Completed(), jc.IsFalse)

	rec.Request(1)
	c.Check(rec.Items(), jc.DeepEquals, []int{99})
	c.Check(rec.Completed(), jc.IsTrue)
}

func (*ReturnSuite) TestSubstituteErrorChainsOriginal(c *gc.C) {
	emitter, err := pipe.ReturnOnError(source.Fail[int](errors.Errorf("boom")),
		func(error) (int, error) {
			return 0, errors.Errorf("no substitute")
		})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](freshet.Unbounded)
	emitter.Attach(rec)
	c.Check(rec.Err(), gc.ErrorMatches, "substituting after failure: no substitute: boom")
}

func (*ReturnSuite) TestNilSubstituteIsContractViolation(c *gc.C) {
	emitter, err := pipe.ReturnOnError(source.Fail[*int](errors.Errorf("boom")),
		func(error) (*int, error) {
			return nil, nil
		})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[*int](freshet.Unbounded)
	emitter.Attach(rec)
	c.Check(rec.Items(), gc.HasLen, 0)
	c.Check(rec.Err(), jc.ErrorIs, freshet.ErrNilItem)
	c.Check(rec.Err(), gc.ErrorMatches, "substituting after failure: boom: nil item")
	c.Check(rec.Completed(), jc.IsFalse)
}

func (*ReturnSuite) TestSubstituteSkippedAfterCancel(c *gc.C) {
	var calls atomic.Int64
	pusher := streamtest.NewPusher[int]()
	emitter, err := pipe.ReturnOnError(pusher, func(error) (int, error) {
		calls.Add(1)
		return -1, nil
	})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](3)
	emitter.Attach(rec)
	rec.Cancel()
	pusher.FailWith(c, errors.Errorf("boom"))

	c.Check(calls.Load(), gc.Equals, int64(0))
	c.Check(rec.Items(), gc.HasLen, 0)
	c.Check(rec.Err(), jc.ErrorIsNil)
	c.Check(rec.Completed(), jc.IsFalse)
}

func (*ReturnSuite) TestCancelDropsHeldSubstitute(c *gc.C) {
	emitter, err := pipe.ReturnOnError(source.Fail[int](errors.Errorf("boom")),
		func(error) (int, error) {
			return 99, nil
		})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](0)
	emitter.Attach(rec)
	rec.Cancel()
	rec.Request(1)
	c.Check(rec.Items(), gc.HasLen, 0)
	c.Check(rec.Completed(), jc.IsFalse)
}
