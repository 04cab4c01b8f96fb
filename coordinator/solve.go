package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/firasghr/GoChallengeEngine/challenge"
	"github.com/firasghr/GoChallengeEngine/extractor"
	"github.com/firasghr/GoChallengeEngine/provider"
)

// submission is a computed proof ready to be sent.
type submission struct {
	kind   challenge.Kind
	method string
	action string
	fields extractor.Fields
	page   *url.URL
}

// request builds the proof request.  Headers are copied from orig, and
// Origin and Referer point at the challenge page.
func (s *submission) request(ctx context.Context, orig *http.Request) (*http.Request, error) {
	target, err := url.Parse(s.action)
	if err != nil {
		return nil, err
	}
	encoded := s.fields.Encode()

	var req *http.Request
	if s.method == http.MethodGet {
		if target.RawQuery != "" {
			target.RawQuery += "&" + encoded
		} else {
			target.RawQuery = encoded
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, s.method, target.String(), strings.NewReader(encoded))
	}
	if err != nil {
		return nil, err
	}

	req.Header = cloneHeader(orig.Header)
	req.Header.Del("Content-Length")
	if s.method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Origin", s.page.Scheme+"://"+s.page.Host)
	req.Header.Set("Referer", s.page.String())
	return req, nil
}

// solve turns a classified challenge into a submission.  A non-nil response
// instead of a submission ends handling early: the double-down request was
// not a captcha any more, or the caller asked for captcha pages back.
func (c *Coordinator) solve(ctx context.Context, log *zap.Logger, kind challenge.Kind, resp *http.Response, body []byte, state *RetryState, submit SubmitFunc) (*submission, *http.Response, error) {
	switch kind {
	case challenge.FirewallBlocked:
		return nil, nil, challenge.NewError(challenge.ErrBlocked, kind, "classify", nil)
	case challenge.UnsupportedV2Challenge, challenge.UnsupportedV2Captcha, challenge.V3VmChallenge:
		return nil, nil, challenge.NewError(challenge.ErrUnsupported, kind, "classify", nil)
	case challenge.Turnstile:
		if c.opts.Provider == nil {
			return nil, nil, challenge.NewError(challenge.ErrUnsupported, kind, "classify",
				errors.New("turnstile requires a proof provider"))
		}
	}

	if err := state.enter(kind); err != nil {
		return nil, nil, err
	}

	switch kind {
	case challenge.IuamV1:
		sub, err := c.solveIUAM(ctx, log, resp, body, state)
		return sub, nil, err
	case challenge.CaptchaV1:
		return c.solveCaptcha(ctx, log, resp, body, state, submit)
	case challenge.Turnstile:
		return c.solveTurnstile(ctx, resp, body)
	}
	return nil, nil, challenge.NewError(challenge.ErrUnsupported, kind, "classify", nil)
}

// ── IUAM ────────────────────────────────────────────────────────────────────

func (c *Coordinator) solveIUAM(ctx context.Context, log *zap.Logger, resp *http.Response, body []byte, state *RetryState) (*submission, error) {
	const kind = challenge.IuamV1
	page := resp.Request.URL

	delay, err := c.delay(body, state)
	if err != nil {
		return nil, err
	}
	if delay > 0 {
		log.Debug("waiting before submission", zap.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("coordinator: wait before submission: %w", err)
		}
	}

	iuam, err := extractor.ExtractIUAM(body, page)
	if err != nil {
		return nil, err
	}
	answer, err := c.evaluator.Eval(ctx, iuam.Env, iuam.Script)
	if err != nil {
		return nil, asChallengeError(err, challenge.ErrSolve, kind, "evaluate with "+c.evaluator.Name())
	}

	fields := iuam.Form.Fields.Clone()
	fields.Set("jschl_answer", answer)
	return &submission{
		kind:   kind,
		method: http.MethodPost,
		action: iuam.Form.Action,
		fields: fields,
		page:   page,
	}, nil
}

// delay returns the wait before an IUAM submission: the configured delay, or
// the one extracted from the first page and cached on state.
func (c *Coordinator) delay(body []byte, state *RetryState) (time.Duration, error) {
	if c.opts.Delay != nil {
		return *c.opts.Delay, nil
	}
	if d, ok := state.CachedDelay(); ok {
		return d, nil
	}
	secs, err := extractor.ExtractDelay(body)
	if err != nil {
		return 0, err
	}
	d := time.Duration(secs * float64(time.Second))
	state.cacheDelay(d)
	return d, nil
}

// ── Captcha ─────────────────────────────────────────────────────────────────

func (c *Coordinator) solveCaptcha(ctx context.Context, log *zap.Logger, resp *http.Response, body []byte, state *RetryState, submit SubmitFunc) (*submission, *http.Response, error) {
	const kind = challenge.CaptchaV1
	page := resp.Request.URL

	if c.opts.DoubleDown {
		again, againKind, err := c.repeat(ctx, resp.Request, submit)
		if err != nil {
			return nil, nil, err
		}
		switch againKind {
		case kind:
		case challenge.None:
			log.Debug("captcha cleared on repeat")
			settle(again, state)
			return nil, again, nil
		default:
			// Another challenge replaced the captcha; it goes through the
			// pipeline like any other response.
			out, err := c.Handle(ctx, again, state, submit)
			return nil, out, err
		}
		drain(again)
	}

	if c.opts.Provider == nil {
		return nil, nil, challenge.NewError(challenge.ErrMissingProviderConfig, kind, "select provider", nil)
	}
	if c.opts.Provider.Name == provider.ReturnResponse {
		return nil, resp, nil
	}

	cp, err := extractor.ExtractCaptcha(body, page)
	if err != nil {
		return nil, nil, err
	}
	token, err := c.proof(ctx, kind, provider.Task{
		Type:      provider.CaptchaType(cp.Type),
		PageURL:   page.String(),
		SiteKey:   cp.SiteKey,
		UserAgent: resp.Request.Header.Get("User-Agent"),
	})
	if errors.Is(err, provider.ErrReturnResponse) {
		return nil, resp, nil
	}
	if err != nil {
		return nil, nil, err
	}

	fields := cp.Form.Fields.Clone()
	fields.Set("id", cp.RayID)
	fields.Set("g-recaptcha-response", token)
	if cp.Type == extractor.CaptchaTypeHCaptcha {
		fields.Set("h-captcha-response", token)
	}
	return &submission{
		kind:   kind,
		method: http.MethodPost,
		action: cp.Form.Action,
		fields: fields,
		page:   page,
	}, nil, nil
}

// repeat sends orig once more and classifies the answer.  Only the
// classification is used; the caller discards the body unless the
// challenge is gone.
func (c *Coordinator) repeat(ctx context.Context, orig *http.Request, submit SubmitFunc) (*http.Response, challenge.Kind, error) {
	req, err := cloneRequest(ctx, orig, orig.URL)
	if err != nil {
		return nil, challenge.None, fmt.Errorf("coordinator: build repeat request: %w", err)
	}
	resp, err := submit(ctx, req, RequestOptions{FollowRedirects: true})
	if err != nil {
		return nil, challenge.None, fmt.Errorf("coordinator: repeat %s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	if resp.Request == nil {
		resp.Request = req
	}
	kind, _, err := classify(resp)
	if err != nil {
		return nil, challenge.None, err
	}
	return resp, kind, nil
}


// ── Turnstile ───────────────────────────────────────────────────────────────

func (c *Coordinator) solveTurnstile(ctx context.Context, resp *http.Response, body []byte) (*submission, *http.Response, error) {
	const kind = challenge.Turnstile
	page := resp.Request.URL

	if c.opts.Provider.Name == provider.ReturnResponse {
		return nil, resp, nil
	}
	tp, err := extractor.ExtractTurnstile(body, page)
	if err != nil {
		return nil, nil, err
	}
	token, err := c.proof(ctx, kind, provider.Task{
		Type:      provider.Turnstile,
		PageURL:   page.String(),
		SiteKey:   tp.SiteKey,
		UserAgent: resp.Request.Header.Get("User-Agent"),
	})
	if errors.Is(err, provider.ErrReturnResponse) {
		return nil, resp, nil
	}
	if err != nil {
		return nil, nil, err
	}

	fields := tp.Form.Fields.Clone()
	fields.Set("cf-turnstile-response", token)
	return &submission{
		kind:   kind,
		method: tp.Form.Method,
		action: tp.Form.Action,
		fields: fields,
		page:   page,
	}, nil, nil
}

// ── Providers ───────────────────────────────────────────────────────────────

// providerSentinels are checked in order to pick the sentinel that best
// describes a provider failure.
var providerSentinels = []error{
	challenge.ErrMissingParameter,
	challenge.ErrProviderTimeout,
	challenge.ErrServiceUnavailable,
	challenge.ErrUnsupported,
	challenge.ErrUnknownProvider,
}

func (c *Coordinator) proof(ctx context.Context, kind challenge.Kind, task provider.Task) (string, error) {
	params := *c.opts.Provider
	token, err := provider.Solve(ctx, task, params)
	if errors.Is(err, provider.ErrReturnResponse) {
		return "", err
	}
	step := "solve with provider " + params.Name
	if err != nil {
		sentinel := challenge.ErrProvider
		for _, s := range providerSentinels {
			if errors.Is(err, s) {
				sentinel = s
				break
			}
		}
		return "", challenge.NewError(sentinel, kind, step, err)
	}
	if token == "" {
		return "", challenge.NewError(challenge.ErrProvider, kind, step, errors.New("empty token"))
	}
	return token, nil
}

// asChallengeError keeps a *challenge.Error as is and wraps anything else
// with sentinel.
func asChallengeError(err, sentinel error, kind challenge.Kind, step string) error {
	var ce *challenge.Error
	if errors.As(err, &ce) {
		return err
	}
	return challenge.NewError(sentinel, kind, step, err)
}
