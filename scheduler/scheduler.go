// Package scheduler fans a batch of requests out over the sessions of an
// engine through a worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/firasghr/GoChallengeEngine/metrics"
	"github.com/firasghr/GoChallengeEngine/session"
	"github.com/firasghr/GoChallengeEngine/worker"
)

// DefaultMaxBody caps the bytes of each response body kept in a Result.
const DefaultMaxBody = 4 << 20

// Scheduler bridges the SessionManager and the WorkerPool.
//
// Worker i always uses session i modulo the session count, so a session's
// requests are spread over as few workers as possible.
type Scheduler struct {
	sessionManager *session.SessionManager
	workers        int
	metrics        *metrics.Metrics
	log            *zap.Logger

	// MaxBody caps each kept body.  Zero means DefaultMaxBody.
	MaxBody int64
}

// NewScheduler creates a Scheduler running workers goroutines per batch.
// m and log may be nil.
func NewScheduler(sm *session.SessionManager, workers int, m *metrics.Metrics, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{sessionManager: sm, workers: workers, metrics: m, log: log}
}

// Dispatch requests every URL with method and returns one Result per URL in
// input order.  Per-request failures are reported in Result.Err; the
// returned error is only set when nothing could be dispatched.
func (sc *Scheduler) Dispatch(ctx context.Context, method string, urls []string) ([]worker.Result, error) {
	sessions := sc.sessionManager.Sessions()
	if len(sessions) == 0 {
		return nil, errors.New("scheduler: no sessions")
	}
	if len(urls) == 0 {
		return nil, nil
	}

	wp := worker.NewWorkerPool(sc.workers)
	wp.Start(ctx, func(ctx context.Context, w int, job worker.Job) worker.Result {
		return sc.run(ctx, sessions[w%len(sessions)], job)
	})

	go func() {
		defer wp.Stop()
		for i, u := range urls {
			if err := wp.Submit(ctx, worker.Job{Index: i, Method: method, URL: u}); err != nil {
				return
			}
		}
	}()

	results := make([]worker.Result, len(urls))
	done := make([]bool, len(urls))
	for r := range wp.Results() {
		if r.SessionID < 0 {
			// Skipped by the pool after ctx ended.
			sc.record(r)
		}
		results[r.Job.Index] = r
		done[r.Job.Index] = true
	}
	// Jobs never submitted because ctx ended.
	for i, ok := range done {
		if !ok {
			results[i] = worker.Result{Job: worker.Job{Index: i, Method: method, URL: urls[i]}, SessionID: -1, Err: ctx.Err()}
			sc.record(results[i])
		}
	}
	return results, nil
}

func (sc *Scheduler) run(ctx context.Context, s *session.Session, job worker.Job) worker.Result {
	res := worker.Result{Job: job, SessionID: s.ID}
	start := time.Now()

	resp, err := s.ExecuteRequest(ctx, job.Method, job.URL, nil)
	if err != nil {
		res.Err = err
		res.Elapsed = time.Since(start)
		sc.record(res)
		return res
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	limit := sc.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	res.Body, res.Err = io.ReadAll(io.LimitReader(resp.Body, limit))
	if res.Err != nil {
		res.Err = fmt.Errorf("read body: %w", res.Err)
	}
	res.Elapsed = time.Since(start)
	sc.record(res)
	return res
}

func (sc *Scheduler) record(r worker.Result) {
	ok := r.Err == nil && r.Status < 400
	if ok {
		sc.log.Debug("request done", zap.Int("session", r.SessionID), zap.String("url", r.Job.URL),
			zap.Int("status", r.Status), zap.Duration("elapsed", r.Elapsed))
	} else {
		sc.log.Warn("request failed", zap.Int("session", r.SessionID), zap.String("url", r.Job.URL),
			zap.Int("status", r.Status), zap.Error(r.Err))
	}
	if sc.metrics == nil {
		return
	}
	sc.metrics.IncrementTotal()
	if ok {
		sc.metrics.IncrementSuccess()
	} else {
		sc.metrics.IncrementFailed()
	}
}
