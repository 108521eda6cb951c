package poll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/connect-extensions/internal/domain/poll"
)

func TestUntil(t *testing.T) {
	Convey("Given a bounded poll", t, func() {
		ctx := context.Background()

		Convey("It stops as soon as the check is done", func() {
			calls := 0
			err := poll.Until(ctx, 5, time.Millisecond, func(context.Context) (bool, error) {
				calls++
				return calls == 3, nil
			})
			So(err, ShouldBeNil)
			So(calls, ShouldEqual, 3)
		})

		Convey("It gives up after the attempt budget", func() {
			calls := 0
			err := poll.Until(ctx, 4, time.Millisecond, func(context.Context) (bool, error) {
				calls++
				return false, nil
			})
			So(errors.Is(err, poll.ErrExhausted), ShouldBeTrue)
			So(calls, ShouldEqual, 4)
		})

		Convey("Check errors end the loop", func() {
			boom := errors.New("boom")
			calls := 0
			err := poll.Until(ctx, 4, time.Millisecond, func(context.Context) (bool, error) {
				calls++
				return false, boom
			})
			So(errors.Is(err, boom), ShouldBeTrue)
			So(calls, ShouldEqual, 1)
		})

		Convey("Cancellation interrupts the sleep", func() {
			cctx, cancel := context.WithCancel(ctx)
			start := time.Now()
			err := poll.Until(cctx, 10, time.Hour, func(context.Context) (bool, error) {
				cancel()
				return false, nil
			})
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(time.Since(start), ShouldBeLessThan, time.Second)
		})

		Convey("Zero attempts still checks once", func() {
			calls := 0
			_ = poll.Until(ctx, 0, time.Millisecond, func(context.Context) (bool, error) {
				calls++
				return false, nil
			})
			So(calls, ShouldEqual, 1)
		})
	})
}
