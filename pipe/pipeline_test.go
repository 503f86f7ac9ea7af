// Copyright 2026 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package pipe_test

import (
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/freshet"
	"github.com/juju/freshet/pipe"
	"github.com/juju/freshet/source"
	"github.com/juju/freshet/streamtest"
)

type PipelineSuite struct{}

var _ = gc.Suite(&PipelineSuite{})

func (*PipelineSuite) TestMapFilterTake(c *gc.C) {
	src, err := source.Range(1, 10)
	c.Assert(err, jc.ErrorIsNil)
	doubled, err := pipe.Map(src, func(n int) (int, error) { return n * 2, nil })
	c.Assert(err, jc.ErrorIsNil)
	big, err := pipe.Filter(doubled, func(n int) (bool, error) { return n > 10, nil })
	c.Assert(err, jc.ErrorIsNil)
	emitter, err := pipe.Take(big, 3)
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](freshet.Unbounded)
	emitter.Attach(rec)
	c.Check(rec.Items(), jc.DeepEquals, []int{12, 14, 16})
	c.Check(rec.Completed(), jc.IsTrue)
	c.Check(rec.Grants(), gc.Equals, 1)
	c.Check(rec.Breaches(), gc.Equals, 0)
}

func (*PipelineSuite) TestTakeAfterFilterCountsAcceptedItems(c *gc.C) {
	src, err := source.Range(1, 10)
	c.Assert(err, jc.ErrorIsNil)
	evens, err := pipe.Filter(src, isEven)
	c.Assert(err, jc.ErrorIsNil)
	emitter, err := pipe.Take(evens, 2)
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](freshet.Unbounded)
	emitter.Attach(rec)
	c.Check(rec.Items(), jc.DeepEquals, []int{2, 4})
	c.Check(rec.Completed(), jc.IsTrue)
}

func (*PipelineSuite) TestFilterAfterTakeCountsRawItems(c *gc.C) {
	src, err := source.Range(1, 10)
	c.Assert(err, jc.ErrorIsNil)
	taken, err := pipe.Take(src, 4)
	c.Assert(err, jc.ErrorIsNil)
	emitter, err := pipe.Filter(taken, isEven)
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](freshet.Unbounded)
	emitter.Attach(rec)
	c.Check(rec.Items(), jc.DeepEquals, []int{2, 4})
	c.Check(rec.Completed(), jc.IsTrue)
}

func (*PipelineSuite) TestBoundedDemandThroughChain(c *gc.C) {
	doubled, err := pipe.Map(source.Array(1, 2, 3, 4, 5, 6), func(n int) (int, error) { return n * 2, nil })
	c.Assert(err, jc.ErrorIsNil)
	emitter, err := pipe.Filter(doubled, func(n int) (bool, error) { return n%4 == 0, nil })
	c.Assert(err, jc.ErrorIsNil)

	rec := streamtest.NewRecorder[int](2)
	emitter.Attach(rec)
	c.Check(rec.Items(), jc.DeepEquals, []int{4, 8})
	c.Check(rec.Completed(), jc.IsFalse)

	rec.Request(2)
	c.Check(rec.Items(), jc.DeepEquals, []int{4, 8, 12})
	c.Check(rec.Completed(), jc.IsTrue)
}
