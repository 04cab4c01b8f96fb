package worker_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/firasghr/GoChallengeEngine/worker"
)

func collect(wp *worker.WorkerPool) []worker.Result {
	var out []worker.Result
	for r := range wp.Results() {
		out = append(out, r)
	}
	return out
}

func TestWorkerPool_ExecutesAllJobs(t *testing.T) {
	const jobs = 500
	wp := worker.NewWorkerPool(10)

	var counter atomic.Int64
	wp.Start(context.Background(), func(_ context.Context, w int, job worker.Job) worker.Result {
		counter.Add(1)
		return worker.Result{Job: job, SessionID: w, Status: 200}
	})

	go func() {
		for i := 0; i < jobs; i++ {
			if err := wp.Submit(context.Background(), worker.Job{Index: i, URL: "https://example-site.dev/"}); err != nil {
				t.Errorf("Submit: %v", err)
			}
		}
		wp.Stop()
	}()

	results := collect(wp)
	if len(results) != jobs {
		t.Fatalf("expected %d results, got %d", jobs, len(results))
	}
	if counter.Load() != jobs {
		t.Errorf("expected %d jobs executed, got %d", jobs, counter.Load())
	}
	seen := make(map[int]bool)
	for _, r := range results {
		if r.SessionID < 0 || r.SessionID >= 10 {
			t.Errorf("worker number out of range: %d", r.SessionID)
		}
		seen[r.Job.Index] = true
	}
	if len(seen) != jobs {
		t.Errorf("expected %d distinct jobs, got %d", jobs, len(seen))
	}
}

func TestWorkerPool_ZeroWorkersFallsBackToOne(t *testing.T) {
	wp := worker.NewWorkerPool(0)
	if wp.Size() != 1 {
		t.Fatalf("expected 1 worker, got %d", wp.Size())
	}
	wp.Start(context.Background(), func(_ context.Context, _ int, job worker.Job) worker.Result {
		return worker.Result{Job: job}
	})
	if err := wp.Submit(context.Background(), worker.Job{}); err != nil {
		t.Fatal(err)
	}
	wp.Stop()
	wp.Stop()
	if got := len(collect(wp)); got != 1 {
		t.Errorf("expected the job to run once, ran %d", got)
	}
}

func TestWorkerPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wp := worker.NewWorkerPool(2)
	var called atomic.Bool
	wp.Start(ctx, func(_ context.Context, _ int, job worker.Job) worker.Result {
		called.Store(true)
		return worker.Result{Job: job}
	})
	if err := wp.Submit(context.Background(), worker.Job{Index: 7}); err != nil {
		t.Fatal(err)
	}
	wp.Stop()

	results := collect(wp)
	if len(results) != 1 || results[0].Err != context.Canceled || results[0].Job.Index != 7 {
		t.Errorf("expected a cancelled result for job 7, got %+v", results)
	}
	if called.Load() {
		t.Error("handler must not run after the context ended")
	}
}

func TestWorkerPool_SubmitHonoursContext(t *testing.T) {
	wp := worker.NewWorkerPool(1)
	// Not started: the queue fills up and Submit must give up.
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 4; i++ {
		if err := wp.Submit(ctx, worker.Job{Index: i}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	cancel()
	if err := wp.Submit(ctx, worker.Job{Index: 4}); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
