package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/picup/internal/adapters/mq/queue"
	worker "github.com/okian/picup/internal/adapters/mq/worker"
	model "github.com/okian/picup/internal/domain/model"
	logging "github.com/okian/picup/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(_ context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(j queue.Job) {
	mq.jobs <- j
}

type mockUploader struct {
	mu       sync.Mutex
	uploaded map[string]string
	errors   map[string]error
	delay    time.Duration
}

func newMockUploader() *mockUploader {
	return &mockUploader{uploaded: map[string]string{}, errors: map[string]error{}}
}

func (mu *mockUploader) UploadOne(ctx context.Context, backend string, img *model.UploadImage) error {
	if mu.delay > 0 {
		select {
		case <-time.After(mu.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	mu.mu.Lock()
	defer mu.mu.Unlock()
	if err, ok := mu.errors[img.Filename.Final]; ok {
		return err
	}
	mu.uploaded[img.Filename.Final] = backend
	return nil
}

func (mu *mockUploader) setError(name string, err error) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	mu.errors[name] = err
}

func (mu *mockUploader) backendOf(name string) (string, bool) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	b, ok := mu.uploaded[name]
	return b, ok
}

func newJob(name, backend string) queue.Job {
	return queue.Job{ID: name, Backend: backend, Image: model.NewUploadImage(name, ""), Result: make(chan error, 1)}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		uploader := newMockUploader()

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, uploader, worker.WithName("test-worker"))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, uploader)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			convey.Convey("And when processing a job", func() {
				j := newJob("a.png", "alist")
				q.add(j)

				convey.Convey("Then the result should be reported and the image uploaded", func() {
					convey.So(<-j.Result, convey.ShouldBeNil)
					backend, ok := uploader.backendOf("a.png")
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(backend, convey.ShouldEqual, "alist")
					convey.So(w.Processed(), convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And when the upload fails", func() {
				boom := errors.New("upload error")
				uploader.setError("b.png", boom)
				j := newJob("b.png", "github")
				q.add(j)

				convey.Convey("Then the error should be reported to the submitter", func() {
					convey.So(<-j.Result, convey.ShouldEqual, boom)
					convey.So(w.Failed(), convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And when a job has no image", func() {
				j := queue.Job{ID: "empty", Result: make(chan error, 1)}
				q.add(j)

				convey.Convey("Then it should fail without calling the uploader", func() {
					convey.So(<-j.Result, convey.ShouldNotBeNil)
				})
			})

			convey.Convey("And when a job carries a completion hook", func() {
				uploader.setError("f.png", errors.New("upload error"))
				var ok, failed atomic.Bool
				good := newJob("g.png", "github")
				good.Done = func() { ok.Store(true) }
				bad := newJob("f.png", "github")
				bad.Done = func() { failed.Store(true) }
				q.add(good)
				q.add(bad)

				convey.Convey("Then the hook should run before the result is delivered", func() {
					convey.So(<-good.Result, convey.ShouldBeNil)
					convey.So(ok.Load(), convey.ShouldBeTrue)
					convey.So(<-bad.Result, convey.ShouldNotBeNil)
					convey.So(failed.Load(), convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when a job has no result channel", func() {
				q.add(queue.Job{ID: "fire", Backend: "github", Image: model.NewUploadImage("c.png", "")})
				follow := newJob("d.png", "github")
				q.add(follow)

				convey.Convey("Then the worker should move on to the next job", func() {
					convey.So(<-follow.Result, convey.ShouldBeNil)
					_, ok := uploader.backendOf("c.png")
					convey.So(ok, convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				convey.Convey("Then it should shutdown gracefully and twice is harmless", func() {
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the queue is closed", func() {
			w := worker.NewInMemoryWorker(q, uploader)
			j := newJob("e.png", "github")
			q.add(j)
			_ = q.Close()
			go w.Run(context.Background())

			convey.Convey("Then queued jobs should still be processed before it stops", func() {
				convey.So(<-j.Result, convey.ShouldBeNil)
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new worker pool", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		uploader := newMockUploader()

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, q, uploader)

			convey.Convey("Then it should have at least one worker", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		convey.Convey("When started with jobs queued", func() {
			pool := worker.NewPool(3, q, uploader)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			jobs := []queue.Job{newJob("1.png", "github"), newJob("2.png", "github"), newJob("3.png", "alist")}
			for _, j := range jobs {
				q.add(j)
			}

			convey.Convey("Then every job should complete and shutdown should drain cleanly", func() {
				for _, j := range jobs {
					convey.So(<-j.Result, convey.ShouldBeNil)
				}
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

				processed, failed := pool.Stats()
				convey.So(processed, convey.ShouldEqual, 3)
				convey.So(failed, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When shutdown runs out of time", func() {
			uploader.delay = time.Second
			pool := worker.NewPool(1, q, uploader)
			pool.Start(context.Background())
			q.add(newJob("slow.png", "github"))
			time.Sleep(20 * time.Millisecond)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			convey.Convey("Then it should report the timeout", func() {
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldNotBeNil)
			})
		})
	})
}
