package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/connect-extensions/internal/adapters/mq/queue"
	"github.com/okian/connect-extensions/internal/adapters/mq/worker"
	"github.com/okian/connect-extensions/internal/domain/poll"
	logging "github.com/okian/connect-extensions/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// mockKiller records requests and fails for configured job keys.
type mockKiller struct {
	mu     sync.Mutex
	killed []string
	errs   map[string]error
}

func newMockKiller() *mockKiller {
	return &mockKiller{errs: make(map[string]error)}
}

func (m *mockKiller) Kill(_ context.Context, r queue.KillRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errs[r.JobKey]; ok {
		return err
	}
	m.killed = append(m.killed, r.JobKey)
	return nil
}

func (m *mockKiller) setError(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[key] = err
}

func (m *mockKiller) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.killed)
}

type results struct {
	mu   sync.Mutex
	errs map[string]error
}

func (r *results) handle(_ context.Context, req queue.KillRequest, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[req.JobKey] = err
}

func (r *results) get(key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err, ok := r.errs[key]
	return ok, err
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading a queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		killer := newMockKiller()
		res := &results{errs: map[string]error{}}
		w := worker.NewInMemoryWorker(q, killer, worker.WithName("test-worker"), worker.WithResultHandler(res.handle))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a request succeeds", func() {
			convey.So(q.Enqueue(ctx, queue.KillRequest{ContentGUID: "c1", JobKey: "k1"}), convey.ShouldBeNil)

			convey.Convey("Then the result handler sees no error", func() {
				convey.So(waitFor(func() bool { ok, _ := res.get("k1"); return ok }), convey.ShouldBeTrue)
				_, err := res.get("k1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(killer.count(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When polling runs out", func() {
			killer.setError("slow", fmt.Errorf("still running: %w", poll.ErrExhausted))
			convey.So(q.Enqueue(ctx, queue.KillRequest{ContentGUID: "c1", JobKey: "slow"}), convey.ShouldBeNil)

			convey.Convey("Then the error reaches the result handler", func() {
				convey.So(waitFor(func() bool { ok, _ := res.get("slow"); return ok }), convey.ShouldBeTrue)
				_, err := res.get("slow")
				convey.So(errors.Is(err, poll.ErrExhausted), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		killer := newMockKiller()

		convey.Convey("When created with a non-positive count", func() {
			p := worker.NewPool(0, q, killer)
			convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("When processing many requests", func() {
			p := worker.NewPool(4, q, killer)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p.Start(ctx)

			for i := 0; i < 20; i++ {
				convey.So(q.Enqueue(ctx, queue.KillRequest{ContentGUID: "c", JobKey: fmt.Sprintf("k%d", i)}), convey.ShouldBeNil)
			}

			convey.So(waitFor(func() bool { return killer.count() == 20 }), convey.ShouldBeTrue)

			convey.Convey("Then shutdown closes the queue", func() {
				convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
