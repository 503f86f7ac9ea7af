// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package pipe_test

import (
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/freshet"
	"github.com/juju/freshet/pipe"
	"github.com/juju/freshet/source"
	"github.com/juju/freshet/streamtest"
)

type FilterSuite struct{}

var _ = gc.Suite(&FilterSuite{})

func isEven(n int) (bool, error) {
	return n%2 == 0, nil
}

func (*FilterSuite) TestKeepsAcceptedItems(c *gc.C) {
	emitter, err := pipe.Filter(source.Array(1, 2, 3, 4, 5, 6), isEven)
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](freshet.Unbounded)
	emitter.Attach(rec)
	c.Check(rec.Items(), jc.DeepEquals, []int{2, 4, 6})
	c.Check(rec.Completed(), jc.IsTrue)
}

func (*FilterSuite) TestRequestYieldsRequestedAcceptedItems(c *gc.C) {
	// Two units of demand must produce two accepted items even though
	// the source interleaves rejected ones.
	emitter, err := pipe.Filter(source.Array(1, 2, 3, 4, 5, 6), isEven)
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](2)
	emitter.Attach(rec)
	c.Check(rec.Items(), jc.DeepEquals, []int{2, 4})
	c.Check(rec.Completed(), jc.IsFalse)
}

func (*FilterSuite) TestRejectionClaimsReplacement(c *gc.C) {
	pusher := streamtest.NewPusher[int]()
	emitter, err := pipe.Filter(pusher, isEven)
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](0)
	emitter.Attach(rec)
	rec.Request(2)
	c.Check(pusher.Flow.Requests(), jc.DeepEquals, []int64{2})

	pusher.Push(c, 1)
	c.Check(pusher.Flow.Requests(), jc.DeepEquals, []int64{2, 1})
	pusher.Push(c, 2)
	c.Check(pusher.Flow.Requests(), jc.DeepEquals, []int64{2, 1})
	c.Check(rec.Items(), jc.DeepEquals, []int{2})
}

func (*FilterSuite) TestPredicateErrorCancelsUpstream(c *gc.C) {
	pusher := streamtest.NewPusher[int]()
	emitter, err := pipe.Filter(pusher, func(n int) (bool, error) {
		return false, errors.Errorf("cannot judge %d", n)
	})
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](freshet.Unbounded)
	emitter.Attach(rec)
	pusher.Push(c, 1)

	c.Check(rec.Err(), gc.ErrorMatches, "filter predicate: cannot judge 1")
	c.Check(pusher.Flow.Cancelled(), jc.IsTrue)
}

func (*FilterSuite) TestNonPositiveRequest(c *gc.C) {
	pusher := streamtest.NewPusher[int]()
	emitter, err := pipe.Filter(pusher, isEven)
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](0)
	emitter.Attach(rec)
	rec.Request(0)
	c.Check(rec.Err(), jc.ErrorIs, freshet.ErrNonPositiveDemand)
	c.Check(pusher.Flow.Cancelled(), jc.IsTrue)
}

func (*FilterSuite) TestNilPredicateNotValid(c *gc.C) {
	_, err := pipe.Filter[int](source.Array(1), nil)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}
