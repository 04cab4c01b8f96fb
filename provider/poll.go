package provider

import (
	"context"
	"errors"
	"time"
)

// errPollTimeout is returned by poll when the provider's own deadline
// elapsed.
var errPollTimeout = errors.New("poll timeout")

// checkFunc asks the remote service for the job result.  It returns done ==
// false while the job is still being worked on.
type checkFunc func(ctx context.Context) (result string, done bool, err error)

// poll waits interval, calls check, and repeats until check reports done or
// fails, timeout elapses, or ctx is done.  An elapsed timeout yields
// errPollTimeout; a done ctx yields ctx.Err().
func poll(ctx context.Context, interval, timeout time.Duration, check checkFunc) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", errPollTimeout
		case <-tick.C:
		}

		result, done, err := check(ctx)
		if err != nil {
			return "", err
		}
		if done {
			return result, nil
		}
	}
}

// pollJob runs poll and maps deadline failures to *TimeoutError after
// invoking report.  report runs on a context detached from ctx so it still
// reaches the service when the caller's deadline is what fired.
func pollJob(ctx context.Context, s settings, name, jobID string, check checkFunc, report func(ctx context.Context) error) (string, error) {
	result, err := poll(ctx, s.pollInterval, s.timeout, check)
	if err == nil {
		return result, nil
	}

	timedOut := errors.Is(err, errPollTimeout) || errors.Is(err, context.DeadlineExceeded)
	if !timedOut {
		return "", err
	}
	if report != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		if rerr := report(rctx); rerr != nil {
			s.logger.Sugar().Debugf("%s: report bad job %s: %v", name, jobID, rerr)
		}
		cancel()
	}
	te := &TimeoutError{Provider: name, JobID: jobID}
	if !errors.Is(err, errPollTimeout) {
		te.Err = err
	}
	return "", te
}
