// Package worker provides a bounded goroutine pool that executes fetch jobs
// and streams their results.
package worker

import (
	"context"
	"sync"
	"time"
)

// Job is one request of a batch.
type Job struct {
	// Index is the position of the job in its batch.
	Index  int
	Method string
	URL    string
}

// Result is the outcome of a Job.
type Result struct {
	Job       Job
	SessionID int
	Status    int
	Body      []byte
	Elapsed   time.Duration
	Err       error
}

// Handler executes job on behalf of worker number worker.
type Handler func(ctx context.Context, worker int, job Job) Result

// WorkerPool runs a fixed number of goroutines that drain a shared job
// queue.
//
// The queue holds workerCount*4 jobs, so Submit blocks only when workers fall
// behind.  Results are buffered the same way and must be drained by the
// caller, or the workers stall.
type WorkerPool struct {
	workerCount int
	jobQueue    chan Job
	results     chan Result
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// NewWorkerPool creates a WorkerPool with workerCount goroutines.  Values
// below 1 mean one worker.
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &WorkerPool{
		workerCount: workerCount,
		jobQueue:    make(chan Job, workerCount*4),
		results:     make(chan Result, workerCount*4),
	}
}

// Size returns the number of workers.
func (wp *WorkerPool) Size() int { return wp.workerCount }

// Start launches the workers.  It must be called exactly once before any job
// is submitted.  Jobs still queued when ctx ends are answered with ctx's
// error without calling h.
func (wp *WorkerPool) Start(ctx context.Context, h Handler) {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go func(worker int) {
			defer wp.wg.Done()
			for job := range wp.jobQueue {
				if err := ctx.Err(); err != nil {
					wp.results <- Result{Job: job, SessionID: -1, Err: err}
					continue
				}
				wp.results <- h(ctx, worker, job)
			}
		}(i)
	}
	go func() {
		wp.wg.Wait()
		close(wp.results)
	}()
}

// Submit enqueues job, blocking while the queue is full.  It returns ctx's
// error if ctx ends first.  Submit must not be called after Stop.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the result stream.  It is closed once Stop has been called
// and every queued job has finished.
func (wp *WorkerPool) Results() <-chan Result { return wp.results }

// Stop closes the queue.  Workers finish what is queued and exit.  Stop is
// idempotent.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() { close(wp.jobQueue) })
}
