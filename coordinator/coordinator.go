// Package coordinator drives a response through the challenge pipeline:
// classify it, solve the challenge it carries, submit the proof, follow the
// redirect the vendor answers with, and repeat until a real response comes
// back or loop protection fires.
//
// The coordinator performs no I/O of its own.  Every request goes through the
// caller's SubmitFunc, so cookies, proxies and TLS fingerprints stay under the
// caller's control.
//
// # Flow
//
//	Handle(resp)
//	  └─ Classify ─┬─ None                → return resp
//	               ├─ FirewallBlocked     → ErrBlocked
//	               ├─ V2 / V3             → ErrUnsupported
//	               └─ IUAM / captcha / Turnstile
//	                    ├─ loop protection check
//	                    ├─ extract + solve (evaluator or proof provider)
//	                    ├─ submit proof (no redirects)  → Handle(...)
//	                    └─ 3xx → same method to Location → Handle(...)
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/firasghr/GoChallengeEngine/challenge"
	"github.com/firasghr/GoChallengeEngine/client"
	"github.com/firasghr/GoChallengeEngine/jschallenge"
	"github.com/firasghr/GoChallengeEngine/provider"
)

// SubmitFunc performs one HTTP request for the coordinator.  It must not
// handle challenges itself.
type SubmitFunc func(ctx context.Context, req *http.Request, opts RequestOptions) (*http.Response, error)

// RequestOptions tells the SubmitFunc how to perform a request.
type RequestOptions struct {
	// FollowRedirects lets the transport follow 3xx responses.  Proof
	// submissions are sent with FollowRedirects false so the coordinator
	// can preserve the original method on the follow-up request.
	FollowRedirects bool
}

// Coordinator is safe for concurrent use as long as every logical request
// brings its own RetryState.
type Coordinator struct {
	opts      Options
	evaluator jschallenge.Evaluator
	log       *zap.Logger
	observer  Observer
	sleep     func(ctx context.Context, d time.Duration) error
}

// New validates opts and resolves the configured evaluator and provider.
func New(opts Options) (*Coordinator, error) {
	if opts.SolveDepth < 1 {
		return nil, fmt.Errorf("coordinator: solve depth must be at least 1, got %d", opts.SolveDepth)
	}
	if opts.Delay != nil && *opts.Delay < 0 {
		return nil, fmt.Errorf("coordinator: negative delay %s", *opts.Delay)
	}
	if opts.Evaluator == "" {
		opts.Evaluator = jschallenge.NativeName
	}
	ev, err := jschallenge.Get(opts.Evaluator)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	if opts.Provider != nil {
		if _, err := provider.Get(opts.Provider.Name); err != nil {
			return nil, fmt.Errorf("coordinator: %w", err)
		}
	}

	c := &Coordinator{
		opts:      opts,
		evaluator: ev,
		log:       opts.Logger,
		observer:  opts.Observer,
		sleep:     sleepContext,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	return c, nil
}

// Options returns the options the coordinator was built with.
func (c *Coordinator) Options() Options { return c.opts }

// NewRetryState returns a fresh state using the configured solve depth.
func (c *Coordinator) NewRetryState() *RetryState {
	return NewRetryState(c.opts.SolveDepth)
}

// Do performs req through submit and runs the response through Handle.
func (c *Coordinator) Do(ctx context.Context, req *http.Request, state *RetryState, submit SubmitFunc) (*http.Response, error) {
	if state == nil {
		state = c.NewRetryState()
	}
	return c.do(withRequestID(ctx), req, RequestOptions{FollowRedirects: true}, state, submit)
}

// Handle inspects resp and, when it is a challenge, solves it and returns the
// response obtained after submitting the proof.  Responses whose status and
// Server header rule out a challenge are returned untouched, body stream
// included.  Possible challenge pages are read and decoded before
// classification; one that cannot be decoded is returned as it arrived.
//
// resp.Request must be the request that produced resp.  A nil state gets a
// fresh one.  On error resp's body has already been consumed.
func (c *Coordinator) Handle(ctx context.Context, resp *http.Response, state *RetryState, submit SubmitFunc) (*http.Response, error) {
	if resp == nil || resp.Request == nil || resp.Request.URL == nil {
		return nil, errors.New("coordinator: response carries no originating request")
	}
	if submit == nil {
		return nil, errors.New("coordinator: no submit function")
	}
	if state == nil {
		state = c.NewRetryState()
	}
	ctx = withRequestID(ctx)

	kind, body, err := classify(resp)
	if err != nil {
		return nil, err
	}
	if kind == challenge.None {
		settle(resp, state)
		return resp, nil
	}

	log := c.log.With(
		zap.String("request_id", RequestID(ctx)),
		zap.Stringer("kind", kind),
		zap.Int("status", resp.StatusCode),
		zap.String("url", resp.Request.URL.String()),
		zap.Int("depth", state.Depth),
	)
	log.Info("challenge detected")
	c.observer.ChallengeDetected(kind)

	start := time.Now()
	sub, early, err := c.solve(ctx, log, kind, resp, body, state, submit)
	if err != nil {
		c.fail(log, kind, err)
		return nil, err
	}
	if early != nil {
		return early, nil
	}
	c.observer.ChallengeSolved(kind, time.Since(start))
	log.Debug("proof ready", zap.Duration("elapsed", time.Since(start)), zap.String("action", sub.action))

	return c.submitProof(ctx, log, sub, resp.Request, state, submit)
}

// classify reads and classifies resp when it may be a challenge.  A body
// that cannot be decoded is restored and classified None.
func classify(resp *http.Response) (challenge.Kind, []byte, error) {
	if !challenge.MayChallenge(resp.StatusCode, resp.Header) {
		return challenge.None, nil, nil
	}
	body, err := client.DecodeResponse(resp)
	if errors.Is(err, client.ErrContentEncoding) {
		return challenge.None, nil, nil
	}
	if err != nil {
		return challenge.None, nil, fmt.Errorf("coordinator: %w", err)
	}
	return challenge.Classify(resp.StatusCode, resp.Header, body), body, nil
}

// settle resets the depth counter after a response that ends a challenge
// chain.  Redirects and throttled answers keep it.
func settle(resp *http.Response, state *RetryState) {
	if !challenge.IsRedirect(resp.StatusCode, resp.Header) && !challenge.IsThrottled(resp.StatusCode) {
		state.Reset()
	}
}

func (c *Coordinator) fail(log *zap.Logger, kind challenge.Kind, err error) {
	log.Warn("challenge failed", zap.Error(err))
	c.observer.ChallengeFailed(kind, err)
}

// do performs one request and re-enters the pipeline with its response.
func (c *Coordinator) do(ctx context.Context, req *http.Request, opts RequestOptions, state *RetryState, submit SubmitFunc) (*http.Response, error) {
	resp, err := submit(ctx, req, opts)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	if resp.Request == nil {
		resp.Request = req
	}
	return c.Handle(ctx, resp, state, submit)
}

// submitProof posts the proof without following redirects, rejects a 400
// answer and follows a redirect with the method of orig.
func (c *Coordinator) submitProof(ctx context.Context, log *zap.Logger, sub *submission, orig *http.Request, state *RetryState, submit SubmitFunc) (*http.Response, error) {
	req, err := sub.request(ctx, orig)
	if err != nil {
		err = challenge.NewError(challenge.ErrExtraction, sub.kind, "build submission", err)
		c.fail(log, sub.kind, err)
		return nil, err
	}

	resp, err := c.do(ctx, req, RequestOptions{FollowRedirects: false}, state, submit)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusBadRequest {
		drain(resp)
		err := challenge.NewError(challenge.ErrSolveRejected, sub.kind, "submit",
			fmt.Errorf("%s %s answered 400", req.Method, req.URL.Redacted()))
		c.fail(log, sub.kind, err)
		return nil, err
	}
	if !challenge.IsRedirect(resp.StatusCode, resp.Header) {
		return resp, nil
	}

	// resp.Request is the submission itself unless the transport followed
	// something, so Location resolves against what was actually requested.
	base := resp.Request.URL
	next, err := base.Parse(resp.Header.Get("Location"))
	drain(resp)
	if err != nil {
		return nil, challenge.NewError(challenge.ErrExtraction, sub.kind, "resolve redirect", err)
	}
	log.Debug("following submission redirect", zap.String("location", next.String()), zap.String("method", orig.Method))

	follow, err := cloneRequest(ctx, orig, next)
	if err != nil {
		return nil, fmt.Errorf("coordinator: build redirect request: %w", err)
	}
	follow.Header.Set("Referer", base.String())
	return c.do(ctx, follow, RequestOptions{FollowRedirects: true}, state, submit)
}

// cloneRequest rebuilds orig for target, keeping its method, headers and
// replayable body.
func cloneRequest(ctx context.Context, orig *http.Request, target *url.URL) (*http.Request, error) {
	var body io.ReadCloser
	if orig.GetBody != nil {
		b, err := orig.GetBody()
		if err != nil {
			return nil, err
		}
		body = b
	}
	req, err := http.NewRequestWithContext(ctx, orig.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	req.GetBody = orig.GetBody
	req.ContentLength = orig.ContentLength
	req.Header = cloneHeader(orig.Header)
	return req, nil
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	return h.Clone()
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ── Request ids ─────────────────────────────────────────────────────────────

type requestIDKey struct{}

// WithRequestID returns ctx carrying id.  Requests entering the pipeline
// without one get a random id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func withRequestID(ctx context.Context) context.Context {
	if RequestID(ctx) != "" {
		return ctx
	}
	return WithRequestID(ctx, uuid.NewString())
}
