package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/connect-extensions/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryTracker(t *testing.T) {
	Convey("Given a new tracker", t, func() {
		ctx := context.Background()
		tr := dedupe.NewInMemoryTracker()
		So(tr.Len(), ShouldEqual, 0)

		Convey("A new key is claimed", func() {
			So(tr.Claim(ctx, "c1/k1"), ShouldBeTrue)
			So(tr.Len(), ShouldEqual, 1)

			Convey("And cannot be claimed again while in flight", func() {
				So(tr.Claim(ctx, "c1/k1"), ShouldBeFalse)
				So(tr.Len(), ShouldEqual, 1)
			})

			Convey("And can be claimed again once released", func() {
				tr.Release(ctx, "c1/k1")
				So(tr.Len(), ShouldEqual, 0)
				So(tr.Claim(ctx, "c1/k1"), ShouldBeTrue)
			})
		})

		Convey("Releasing an unknown key is a no-op", func() {
			tr.Release(ctx, "nope")
			So(tr.Len(), ShouldEqual, 0)
		})
	})
}

func TestBoundedTracker(t *testing.T) {
	Convey("Given a tracker bounded to two keys", t, func() {
		ctx := context.Background()
		tr := dedupe.NewInMemoryTracker(dedupe.WithMaxSize(2))

		So(tr.Claim(ctx, "a"), ShouldBeTrue)
		So(tr.Claim(ctx, "b"), ShouldBeTrue)
		So(tr.Claim(ctx, "c"), ShouldBeTrue)

		Convey("The oldest claim is dropped", func() {
			So(tr.Len(), ShouldEqual, 2)
			So(tr.Claim(ctx, "a"), ShouldBeTrue)
			So(tr.Claim(ctx, "c"), ShouldBeFalse)
		})
	})

	Convey("Given an unbounded tracker", t, func() {
		ctx := context.Background()
		tr := dedupe.NewInMemoryTracker(dedupe.WithMaxSize(0))
		for i := range 10000 {
			tr.Claim(ctx, fmt.Sprintf("k%d", i))
		}
		So(tr.Len(), ShouldEqual, 10000)
	})
}

func TestConcurrentClaims(t *testing.T) {
	Convey("Given many goroutines claiming the same keys", t, func() {
		ctx := context.Background()
		tr := dedupe.NewInMemoryTracker()
		var won atomic.Int32
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := range 10 {
					if tr.Claim(ctx, fmt.Sprintf("job-%d", k)) {
						won.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		Convey("Each key is claimed exactly once", func() {
			So(won.Load(), ShouldEqual, 10)
			So(tr.Len(), ShouldEqual, 10)
		})
	})
}
